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
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

const (
	// OutputChannels is fixed at stereo; mono sources are duplicated by the decoders
	OutputChannels = 2

	// DefaultSampleRate is the output device rate
	DefaultSampleRate = 44100

	// DefaultFramesPerBuffer matches the PortAudio buffer used by the puck
	DefaultFramesPerBuffer = 1024

	resampleQuality = 4
)

// Player decodes one track at a time and feeds it to an output stream.
// The stream runs for the player's whole lifetime and outputs silence while
// nothing is playing. Control calls and the stream callback share one mutex.
type Player struct {
	mu sync.Mutex

	backend    AudioBackend
	stream     StreamInterface
	sampleRate beep.SampleRate
	frames     int

	current *trackState
	playing bool
	loop    bool
	pitch   float64
	volume  float64

	buf [][2]float64
}

// trackState is the effect chain built over one decoded file:
// decoder -> looper -> resampler (pitch) -> gain (volume)
type trackState struct {
	decoded   *decodedFile
	looper    *looper
	resampler *beep.Resampler
	gain      *effects.Gain
}

// NewPlayer creates a player that outputs through backend. Zero values pick the defaults.
func NewPlayer(backend AudioBackend, sampleRate float64, framesPerBuffer int) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Player{
		backend:    backend,
		sampleRate: beep.SampleRate(int(sampleRate)),
		frames:     framesPerBuffer,
		pitch:      100,
		volume:     100,
		buf:        make([][2]float64, framesPerBuffer),
	}
}

// Open initializes the backend and starts the output stream
func (p *Player) Open() error {
	if err := p.backend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	stream, err := p.backend.OpenOutputStream(StreamParams{
		SampleRate: float64(p.sampleRate),
		Channels:   OutputChannels,
		BufferSize: p.frames,
		Callback:   p.fill,
	})
	if err != nil {
		_ = p.backend.Terminate()
		return err
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = p.backend.Terminate()
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	p.stream = stream
	log.Printf("🔊 Audio output started: %d Hz, %d frames per buffer", p.sampleRate, p.frames)
	return nil
}

// Close stops output, releases the current track and terminates the backend
func (p *Player) Close() error {
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			log.Printf("⚠️ Failed to stop output stream: %v", err)
		}
		if err := p.stream.Close(); err != nil {
			log.Printf("⚠️ Failed to close output stream: %v", err)
		}
		p.stream = nil
	}

	p.Unload()
	return p.backend.Terminate()
}

// Load decodes path and makes it the current track, stopped at its start
func (p *Player) Load(path string) error {
	decoded, err := decodeFile(path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked()
	p.current = p.buildChain(decoded)
	p.playing = false
	return nil
}

// Unload releases the current track, if any
func (p *Player) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Player) releaseLocked() {
	if p.current != nil {
		p.current.decoded.Close()
		p.current = nil
	}
	p.playing = false
}

func (p *Player) buildChain(decoded *decodedFile) *trackState {
	t := &trackState{
		decoded: decoded,
		looper:  &looper{source: decoded.streamer, loop: p.loop},
	}
	t.resampler = beep.ResampleRatio(resampleQuality, p.ratio(decoded.format), t.looper)
	t.gain = &effects.Gain{Streamer: t.resampler, Gain: gainFor(p.volume)}
	return t
}

// ratio converts between the file and device rates and applies pitch
func (p *Player) ratio(format beep.Format) float64 {
	return float64(format.SampleRate) / float64(p.sampleRate) * p.pitch / 100
}

// gainFor maps a linear volume percentage to effects.Gain, which scales by 1+Gain
func gainFor(volume float64) float64 {
	return volume/100 - 1
}

// Start resumes output of the current track, rewinding it if it had ended
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	src := p.current.decoded.streamer
	if src.Len() > 0 && src.Position() >= src.Len() {
		if err := p.seekLocked(0); err != nil {
			log.Printf("⚠️ Failed to rewind track: %v", err)
		}
	}
	p.playing = true
}

// Stop pauses output, keeping the cursor
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// IsPlaying reports whether the current track is producing output
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Seek moves the cursor, clamped to the track length
func (p *Player) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	format := p.current.decoded.format
	return p.seekLocked(format.SampleRate.N(time.Duration(seconds * float64(time.Second))))
}

func (p *Player) seekLocked(pos int) error {
	src := p.current.decoded.streamer
	if pos < 0 {
		pos = 0
	}
	if pos > src.Len() {
		pos = src.Len()
	}
	if err := src.Seek(pos); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	// The resampler buffers input ahead; rebuild it so output resumes at pos
	p.current = p.buildChain(p.current.decoded)
	return nil
}

// CursorSeconds returns the decoder position of the current track
func (p *Player) CursorSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return 0
	}
	d := p.current.decoded
	return d.format.SampleRate.D(d.streamer.Position()).Seconds()
}

// DurationSeconds returns the length of the current track
func (p *Player) DurationSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return 0
	}
	d := p.current.decoded
	return d.format.SampleRate.D(d.streamer.Len()).Seconds()
}

func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loop = loop
	if p.current != nil {
		p.current.looper.loop = loop
	}
}

func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// SetPitch sets the playback rate. Non-positive values are ignored.
func (p *Player) SetPitch(percent float64) {
	if percent <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pitch = percent
	if p.current != nil {
		p.current.resampler.SetRatio(p.ratio(p.current.decoded.format))
	}
}

func (p *Player) Pitch() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pitch
}

func (p *Player) SetVolume(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = percent
	if p.current != nil {
		p.current.gain.Gain = gainFor(percent)
	}
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// fill is the stream callback. It writes interleaved stereo frames and
// pads with silence; reaching the end of a non-looping track stops playback.
func (p *Player) fill(out []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frames := len(out) / OutputChannels
	filled := 0

	if p.playing && p.current != nil {
		if len(p.buf) < frames {
			p.buf = make([][2]float64, frames)
		}

		n, ok := p.current.gain.Stream(p.buf[:frames])
		for i := 0; i < n; i++ {
			out[i*OutputChannels] = float32(p.buf[i][0])
			out[i*OutputChannels+1] = float32(p.buf[i][1])
		}
		filled = n

		if !ok || n < frames {
			if err := p.current.looper.Err(); err != nil {
				log.Printf("⚠️ Playback error: %v", err)
			}
			p.playing = false
		}
	}

	for i := filled * OutputChannels; i < len(out); i++ {
		out[i] = 0
	}
}

// looper rewinds its source at the end while loop is set. The flag is
// read on every Stream call so toggling takes effect mid-track.
type looper struct {
	source beep.StreamSeeker
	loop   bool
	err    error
}

func (l *looper) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	rewound := false

	for filled < len(samples) {
		n, ok := l.source.Stream(samples[filled:])
		filled += n
		if n > 0 {
			rewound = false
		}
		if ok && n > 0 {
			continue
		}

		if !ok {
			if err := l.source.Err(); err != nil {
				l.err = err
				break
			}
		}

		// An empty source would rewind forever
		if !l.loop || rewound || l.source.Len() == 0 {
			break
		}
		if err := l.source.Seek(0); err != nil {
			l.err = err
			break
		}
		rewound = true
	}

	return filled, filled > 0
}

func (l *looper) Err() error {
	if l.err != nil {
		return l.err
	}
	return l.source.Err()
}
