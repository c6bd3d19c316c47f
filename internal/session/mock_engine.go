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
	"fmt"
	"sync"
)

// MockEngine implements Engine for testing without audio hardware.
// Tracks are registered up front with their duration; time never advances
// on its own, so the cursor only moves through Seek or SetCursor.
type MockEngine struct {
	mu       sync.Mutex
	tracks   map[string]float64
	current  string
	loaded   bool
	playing  bool
	cursor   float64
	duration float64
	loop     bool
	pitch    float64
	volume   float64
	loadErr  error
	seekErr  error
	loads    []string
}

// NewMockEngine creates a mock engine with no known tracks
func NewMockEngine() *MockEngine {
	return &MockEngine{
		tracks: make(map[string]float64),
		pitch:  DefaultPitch,
		volume: DefaultVolume,
	}
}

// AddTrack makes path loadable with the given duration in seconds
func (m *MockEngine) AddTrack(path string, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[path] = duration
}

// SetLoadError configures the engine to fail every Load
func (m *MockEngine) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetSeekError configures the engine to fail every Seek
func (m *MockEngine) SetSeekError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekErr = err
}

// SetCursor moves the cursor as if playback had advanced
func (m *MockEngine) SetCursor(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = seconds
}

// Current returns the path of the loaded track
func (m *MockEngine) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.loaded
}

// Loads returns every path passed to Load, in order
func (m *MockEngine) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.loads))
	copy(result, m.loads)
	return result
}

func (m *MockEngine) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads = append(m.loads, path)
	if m.loadErr != nil {
		return m.loadErr
	}

	duration, ok := m.tracks[path]
	if !ok {
		return fmt.Errorf("mock engine: no such track %q", path)
	}

	m.current = path
	m.loaded = true
	m.playing = false
	m.cursor = 0
	m.duration = duration
	return nil
}

func (m *MockEngine) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
	m.loaded = false
	m.playing = false
	m.cursor = 0
	m.duration = 0
}

func (m *MockEngine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		m.playing = true
	}
}

func (m *MockEngine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
}

func (m *MockEngine) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *MockEngine) Seek(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seekErr != nil {
		return m.seekErr
	}
	if !m.loaded {
		return nil
	}
	m.cursor = seconds
	return nil
}

func (m *MockEngine) CursorSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *MockEngine) DurationSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *MockEngine) SetLoop(loop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop = loop
}

func (m *MockEngine) Loop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loop
}

func (m *MockEngine) SetPitch(percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pitch = percent
}

func (m *MockEngine) Pitch() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pitch
}

func (m *MockEngine) SetVolume(percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = percent
}

func (m *MockEngine) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}
