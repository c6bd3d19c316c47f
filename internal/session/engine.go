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

// Engine is the playback engine the session drives.
// All calls are expected to return quickly; none of them may block on I/O
// for longer than a poll cycle.
type Engine interface {
	// Load opens a track and makes it current. The track starts stopped.
	Load(path string) error

	// Unload releases the current track, if any
	Unload()

	// Start resumes output of the current track
	Start()

	// Stop pauses output of the current track, keeping the cursor
	Stop()

	// IsPlaying reports whether the current track is producing output
	IsPlaying() bool

	// Seek moves the cursor of the current track
	Seek(seconds float64) error

	// CursorSeconds returns the cursor of the current track
	CursorSeconds() float64

	// DurationSeconds returns the length of the current track
	DurationSeconds() float64

	SetLoop(loop bool)
	Loop() bool

	// SetPitch sets the playback rate as a percentage of normal speed
	SetPitch(percent float64)
	Pitch() float64

	// SetVolume sets the linear output gain as a percentage
	SetVolume(percent float64)
	Volume() float64
}
