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
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

var errNilStream = errors.New("stream is nil")

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// OpenOutputStream opens the default output device. PortAudio calls
// params.Callback with an interleaved buffer of BufferSize frames.
func (p *PortAudioBackend) OpenOutputStream(params StreamParams) (StreamInterface, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}
	if params.Callback == nil {
		return nil, fmt.Errorf("output stream requires a callback")
	}

	stream, err := portaudio.OpenDefaultStream(
		0,               // input channels (none for output stream)
		params.Channels, // output channels
		params.SampleRate,
		params.BufferSize,
		func(out []float32) { params.Callback(out) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioStream{stream: stream}, nil
}

// PortAudioStream implements StreamInterface using PortAudio streams
type PortAudioStream struct {
	stream *portaudio.Stream
	active atomic.Bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	if p.stream == nil {
		return errNilStream
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.active.Store(true)
	return nil
}

// Stop stops the audio stream
func (p *PortAudioStream) Stop() error {
	if p.stream == nil {
		return errNilStream
	}
	p.active.Store(false)
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	if p.stream == nil {
		return errNilStream
	}
	p.active.Store(false)
	return p.stream.Close()
}

// IsActive reports whether Start succeeded and Stop has not been called since
func (p *PortAudioStream) IsActive() bool {
	return p.stream != nil && p.active.Load()
}
