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

package session

import (
	"errors"
	"fmt"
	"path/filepath"
)

const (
	DefaultPitch  = 100.0
	DefaultVolume = 100.0
	MaxPitch      = 300.0
	MaxVolume     = 100.0
)

var (
	ErrInvalidTime    = errors.New("invalid time")
	ErrInvalidPercent = errors.New("invalid percent")
	ErrNoTrack        = errors.New("no track loaded")
)

// Session holds the playback settings that outlive a single track.
// Loop, pitch and volume are re-applied to every newly loaded track.
//
// A Session is not safe for concurrent use; it is owned by the reactor
// goroutine.
type Session struct {
	engine Engine

	track  string
	loop   bool
	pitch  float64
	volume float64
}

// New creates a session with loop off and pitch and volume at 100%
func New(engine Engine) *Session {
	return &Session{
		engine: engine,
		pitch:  DefaultPitch,
		volume: DefaultVolume,
	}
}

// Engine returns the engine the session forwards to
func (s *Session) Engine() Engine {
	return s.engine
}

// Track returns the displayed name of the loaded track, or "" when none is loaded
func (s *Session) Track() string {
	return s.track
}

// Loaded reports whether a track is currently loaded
func (s *Session) Loaded() bool {
	return s.track != ""
}

// Playing reports whether a loaded track is producing output
func (s *Session) Playing() bool {
	return s.Loaded() && s.engine.IsPlaying()
}

func (s *Session) Loop() bool      { return s.loop }
func (s *Session) Pitch() float64  { return s.pitch }
func (s *Session) Volume() float64 { return s.volume }

// Play unloads the current track and loads path in its place.
// On failure no track is left loaded and the persisted settings are untouched.
func (s *Session) Play(path string) error {
	s.engine.Unload()
	s.track = ""

	if err := s.engine.Load(path); err != nil {
		return fmt.Errorf("failed to load %q: %w", path, err)
	}

	s.engine.SetLoop(s.loop)
	s.engine.SetPitch(s.pitch)
	s.engine.SetVolume(s.volume)
	s.track = filepath.Base(path)
	s.engine.Start()
	return nil
}

// Seek moves the cursor, starting playback first when stopped.
// seconds must lie within [0, duration].
func (s *Session) Seek(seconds float64) error {
	if seconds < 0 || seconds > s.engine.DurationSeconds() {
		return ErrInvalidTime
	}

	// Start rewinds a finished track, so it has to precede the seek
	wasPlaying := s.engine.IsPlaying()
	if !wasPlaying {
		s.engine.Start()
	}
	if err := s.engine.Seek(seconds); err != nil {
		if !wasPlaying {
			s.engine.Stop()
		}
		return fmt.Errorf("%w: %w", ErrInvalidTime, err)
	}
	return nil
}

// ToggleLoop flips the persisted loop flag, applies it and returns the new value
func (s *Session) ToggleLoop() bool {
	s.loop = !s.loop
	s.engine.SetLoop(s.loop)
	return s.loop
}

// SetPitch validates 0 < percent <= 300 before persisting and applying it
func (s *Session) SetPitch(percent float64) error {
	if percent <= 0 || percent > MaxPitch {
		return ErrInvalidPercent
	}
	s.pitch = percent
	s.engine.SetPitch(percent)
	return nil
}

// SetVolume validates 0 <= percent <= 100 before persisting and applying it
func (s *Session) SetVolume(percent float64) error {
	if percent < 0 || percent > MaxVolume {
		return ErrInvalidPercent
	}
	s.volume = percent
	s.engine.SetVolume(percent)
	return nil
}

// TogglePause starts a stopped track or stops a playing one
func (s *Session) TogglePause() error {
	if !s.Loaded() {
		return ErrNoTrack
	}
	if s.engine.IsPlaying() {
		s.engine.Stop()
	} else {
		s.engine.Start()
	}
	return nil
}

// Cursor returns the cursor and duration of the current track in seconds
func (s *Session) Cursor() (cursor, duration float64) {
	return s.engine.CursorSeconds(), s.engine.DurationSeconds()
}
