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

package audio

import (
	"fmt"
	"sync"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies.
// Nothing runs the stream callbacks on its own; tests drive them with Pump.
type MockAudioBackend struct {
	mu                sync.Mutex
	initialized       bool
	streams           []*MockStream
	initError         error
	terminateError    error
	createStreamError error
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetTerminateError configures the backend to return an error on Terminate()
func (m *MockAudioBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetCreateStreamError configures the backend to return an error on stream creation
func (m *MockAudioBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// IsInitialized reports whether Initialize succeeded and Terminate has not run
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Streams returns every stream opened so far, closed ones included
func (m *MockAudioBackend) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*MockStream, len(m.streams))
	copy(result, m.streams)
	return result
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate closes every open stream and shuts the mock subsystem down
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		err := m.terminateError
		m.mu.Unlock()
		return err
	}
	streams := make([]*MockStream, len(m.streams))
	copy(streams, m.streams)
	m.initialized = false
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Close() // Ignore errors during cleanup
	}
	return nil
}

// OpenOutputStream creates a mock output stream
func (m *MockAudioBackend) OpenOutputStream(params StreamParams) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}

	if m.createStreamError != nil {
		return nil, m.createStreamError
	}

	if params.Callback == nil {
		return nil, fmt.Errorf("output stream requires a callback")
	}

	stream := &MockStream{
		id:     fmt.Sprintf("output_%d", len(m.streams)),
		params: params,
		isOpen: true,
	}
	m.streams = append(m.streams, stream)
	return stream, nil
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu         sync.Mutex
	id         string
	params     StreamParams
	isOpen     bool
	isActive   bool
	startError error
	stopError  error
}

// ID returns the stream's name within its backend
func (m *MockStream) ID() string {
	return m.id
}

// Params returns the parameters the stream was opened with
func (m *MockStream) Params() StreamParams {
	return m.params
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetStopError configures the stream to return an error on Stop()
func (m *MockStream) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopError = err
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}
	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}
	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopError != nil {
		return m.stopError
	}
	m.isActive = false
	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isOpen = false
	m.isActive = false
	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// IsOpen returns false once the stream has been closed
func (m *MockStream) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOpen
}

// Pump runs the callback once for frames frames, the way the device would,
// and returns the interleaved samples it produced. An inactive stream
// produces nothing.
func (m *MockStream) Pump(frames int) []float32 {
	m.mu.Lock()
	active := m.isActive
	params := m.params
	m.mu.Unlock()

	if !active {
		return nil
	}

	out := make([]float32, frames*params.Channels)
	params.Callback(out)
	return out
}
