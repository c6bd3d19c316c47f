/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package protocol

import (
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"github.com/loqalabs/loqa-player-go/internal/session"
)

// ExitMessage is the acknowledgment sent to the client that issued quit
const ExitMessage = "Exiting..."

// Dispatcher executes command lines against a playback session
type Dispatcher struct {
	session *session.Session
	onQuit  func()
}

// NewDispatcher creates a dispatcher for s. onQuit is invoked when a client
// sends quit; it may be nil.
func NewDispatcher(s *session.Session, onQuit func()) *Dispatcher {
	return &Dispatcher{
		session: s,
		onQuit:  onQuit,
	}
}

// SetQuitHandler replaces the function invoked on quit
func (d *Dispatcher) SetQuitHandler(onQuit func()) {
	d.onQuit = onQuit
}

// Execute runs one command line and writes the whole reply to w in a single
// Write call.
func (d *Dispatcher) Execute(line string, w io.Writer) error {
	var out strings.Builder
	d.dispatch(ParseCommand(line), &out)

	if _, err := io.WriteString(w, out.String()); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (d *Dispatcher) dispatch(cmd Command, out *strings.Builder) {
	switch cmd.Verb {
	case "status":
		d.writeStatus(out)

	case "time":
		cursor, duration := d.session.Cursor()
		fmt.Fprintf(out, "%f\n%f\n", cursor, duration)

	case "seek":
		if err := d.session.Seek(ParseLenient(cmd.Args)); err != nil {
			out.WriteString("invalid time\n")
			return
		}
		d.writeStatus(out)

	case "loop":
		if d.session.ToggleLoop() {
			out.WriteString("loop on\n")
		} else {
			out.WriteString("loop off\n")
		}

	case "play":
		path := cmd.Args
		if err := d.session.Play(path); err != nil {
			log.Printf("⚠️ %v", err)
			fmt.Fprintf(out, "cant load file \"%s\"\n", path)
		}
		d.writeStatus(out)

	case "pitch":
		if cmd.Args == "" {
			fmt.Fprintf(out, "pitch %.3f%%\n", d.session.Pitch())
			return
		}
		if err := d.session.SetPitch(ParseLenient(cmd.Args)); err != nil {
			out.WriteString("invalid percent\n")
			return
		}
		fmt.Fprintf(out, "pitch %.3f%%\n", d.session.Pitch())

	case "pause":
		_ = d.session.TogglePause() // Without a track the status still reads stopped
		d.writeStatus(out)

	case "volume":
		if cmd.Args == "" {
			fmt.Fprintf(out, "volume %.3f%%\n", d.session.Volume())
			return
		}
		if err := d.session.SetVolume(ParseLenient(cmd.Args)); err != nil {
			out.WriteString("invalid percent\n")
			return
		}
		fmt.Fprintf(out, "volume %.3f%%\n", d.session.Volume())

	case "quit":
		out.WriteString(ExitMessage + "\n")
		log.Println("👋 Quit requested, stopping after this round")
		if d.onQuit != nil {
			d.onQuit()
		}

	default:
		fmt.Fprintf(out, "invalid command: %s\n", cmd.Line)
	}
}

// Status returns the one-line playback status
func (d *Dispatcher) Status() string {
	var out strings.Builder
	d.writeStatus(&out)
	return strings.TrimSuffix(out.String(), "\n")
}

func (d *Dispatcher) writeStatus(out *strings.Builder) {
	if !d.session.Playing() {
		out.WriteString("stopped\n")
		return
	}

	name := d.session.Track()
	if name == "" {
		name = "unnamed"
	}

	cursor, duration := d.session.Cursor()
	fmt.Fprintf(out, "[%s/%s] - %s", formatClock(cursor), formatClock(duration), name)
	if d.session.Loop() {
		out.WriteString(" loop")
	}
	out.WriteString("\n")
}

// formatClock renders seconds as mm:ss, with minutes wrapping at an hour
func formatClock(seconds float64) string {
	minutes := int(math.Mod(seconds/60, 60))
	secs := int(math.Mod(seconds, 60))
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
