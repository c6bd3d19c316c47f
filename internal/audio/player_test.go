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
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-player-go/internal/session"
)

const testRate = 8000

var _ session.Engine = (*Player)(nil)

// constStreamer yields a fixed number of frames at a constant level
type constStreamer struct {
	left  int
	value float64
}

func (c *constStreamer) Stream(samples [][2]float64) (int, bool) {
	if c.left <= 0 {
		return 0, false
	}
	n := min(len(samples), c.left)
	for i := range samples[:n] {
		samples[i] = [2]float64{c.value, c.value}
	}
	c.left -= n
	return n, true
}

func (c *constStreamer) Err() error { return nil }

// writeWAV encodes frames of a constant tone at testRate
func writeWAV(t *testing.T, name string, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	format := beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2}
	require.NoError(t, wav.Encode(f, &constStreamer{left: frames, value: 0.5}, format))
	return path
}

func newTestPlayer(t *testing.T) (*Player, *MockStream) {
	t.Helper()
	backend := NewMockAudioBackend()
	player := NewPlayer(backend, testRate, 256)
	require.NoError(t, player.Open())
	t.Cleanup(func() { _ = player.Close() })

	streams := backend.Streams()
	require.Len(t, streams, 1)
	return player, streams[0]
}

func silent(samples []float32) bool {
	for _, s := range samples {
		if s != 0 {
			return false
		}
	}
	return true
}

func TestPlayer_Open(t *testing.T) {
	t.Run("stream_parameters", func(t *testing.T) {
		_, stream := newTestPlayer(t)

		params := stream.Params()
		assert.Equal(t, float64(testRate), params.SampleRate)
		assert.Equal(t, OutputChannels, params.Channels)
		assert.Equal(t, 256, params.BufferSize)
		assert.True(t, stream.IsActive(), "output runs for the player's lifetime")
	})

	t.Run("defaults", func(t *testing.T) {
		player := NewPlayer(NewMockAudioBackend(), 0, 0)
		assert.Equal(t, beep.SampleRate(DefaultSampleRate), player.sampleRate)
		assert.Equal(t, DefaultFramesPerBuffer, player.frames)
		assert.Equal(t, 100.0, player.Pitch())
		assert.Equal(t, 100.0, player.Volume())
	})

	t.Run("init_error", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetInitError(errors.New("no device"))

		err := NewPlayer(backend, testRate, 256).Open()
		assert.ErrorContains(t, err, "no device")
	})

	t.Run("stream_error_terminates_backend", func(t *testing.T) {
		backend := NewMockAudioBackend()
		backend.SetCreateStreamError(errors.New("device busy"))

		err := NewPlayer(backend, testRate, 256).Open()
		assert.ErrorContains(t, err, "device busy")
		assert.False(t, backend.IsInitialized())
	})

	t.Run("close_releases_stream", func(t *testing.T) {
		backend := NewMockAudioBackend()
		player := NewPlayer(backend, testRate, 256)
		require.NoError(t, player.Open())

		require.NoError(t, player.Close())
		assert.False(t, backend.Streams()[0].IsOpen())
		assert.False(t, backend.IsInitialized())
	})
}

func TestPlayer_Load(t *testing.T) {
	t.Run("unsupported_extension", func(t *testing.T) {
		player, _ := newTestPlayer(t)

		err := player.Load(filepath.Join(t.TempDir(), "notes.txt"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing_file", func(t *testing.T) {
		player, _ := newTestPlayer(t)

		err := player.Load(filepath.Join(t.TempDir(), "missing.wav"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("corrupt_file", func(t *testing.T) {
		player, _ := newTestPlayer(t)
		path := filepath.Join(t.TempDir(), "broken.wav")
		require.NoError(t, os.WriteFile(path, []byte("not a riff header"), 0o600))

		assert.Error(t, player.Load(path))
		assert.Zero(t, player.DurationSeconds())
	})

	t.Run("loaded_stopped", func(t *testing.T) {
		player, stream := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))

		assert.InDelta(t, 1.0, player.DurationSeconds(), 0.001)
		assert.Zero(t, player.CursorSeconds())
		assert.False(t, player.IsPlaying())
		assert.True(t, silent(stream.Pump(256)), "a stopped track outputs silence")
	})

	t.Run("unload", func(t *testing.T) {
		player, _ := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))
		player.Start()

		player.Unload()
		assert.False(t, player.IsPlaying())
		assert.Zero(t, player.DurationSeconds())

		player.Start()
		assert.False(t, player.IsPlaying(), "start without a track is a no-op")
		assert.NoError(t, player.Seek(1))
	})
}

func TestPlayer_Playback(t *testing.T) {
	t.Run("start_produces_output", func(t *testing.T) {
		player, stream := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))

		player.Start()
		out := stream.Pump(256)

		assert.False(t, silent(out))
		assert.Greater(t, player.CursorSeconds(), 0.0)
		assert.True(t, player.IsPlaying())
	})

	t.Run("stop_keeps_cursor", func(t *testing.T) {
		player, stream := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))
		player.Start()
		stream.Pump(256)

		player.Stop()
		cursor := player.CursorSeconds()
		assert.True(t, silent(stream.Pump(256)))
		assert.Equal(t, cursor, player.CursorSeconds())
	})

	t.Run("seek", func(t *testing.T) {
		player, _ := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))

		require.NoError(t, player.Seek(0.5))
		assert.InDelta(t, 0.5, player.CursorSeconds(), 0.001)

		require.NoError(t, player.Seek(5))
		assert.InDelta(t, 1.0, player.CursorSeconds(), 0.001, "clamped to the track length")
	})

	t.Run("end_of_track_stops", func(t *testing.T) {
		player, stream := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "short.wav", 100)))
		player.Start()

		out := stream.Pump(256)
		assert.False(t, player.IsPlaying())
		assert.True(t, silent(out[len(out)-2*OutputChannels:]), "padded with silence")

		player.Start()
		assert.True(t, player.IsPlaying())
		assert.Zero(t, player.CursorSeconds(), "restart after the end rewinds")
	})

	t.Run("loop_keeps_playing", func(t *testing.T) {
		player, stream := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "short.wav", 100)))
		player.SetLoop(true)
		player.Start()

		for i := 0; i < 4; i++ {
			stream.Pump(256)
		}
		assert.True(t, player.IsPlaying())
		assert.True(t, player.Loop())

		player.SetLoop(false)
		for i := 0; i < 4 && player.IsPlaying(); i++ {
			stream.Pump(256)
		}
		assert.False(t, player.IsPlaying(), "clearing loop lets the track end")
	})
}

func TestPlayer_Volume(t *testing.T) {
	player, stream := newTestPlayer(t)
	require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))
	player.Start()

	full := stream.Pump(256)

	require.NoError(t, player.Seek(0))
	player.SetVolume(50)
	half := stream.Pump(256)

	require.Len(t, half, len(full))
	for i := range full {
		assert.InDelta(t, full[i]*0.5, half[i], 1e-6)
	}
	assert.Equal(t, 50.0, player.Volume())

	require.NoError(t, player.Seek(0))
	player.SetVolume(0)
	assert.True(t, silent(stream.Pump(256)))
}

func TestPlayer_Pitch(t *testing.T) {
	consumed := func(t *testing.T, pitch float64) float64 {
		player, stream := newTestPlayer(t)
		require.NoError(t, player.Load(writeWAV(t, "long.wav", 2*testRate)))
		player.SetPitch(pitch)
		player.Start()
		for i := 0; i < 16; i++ {
			stream.Pump(256)
		}
		return player.CursorSeconds()
	}

	normal := consumed(t, 100)
	fast := consumed(t, 200)
	assert.Greater(t, fast, normal+0.3, "double pitch consumes the source about twice as fast")

	player, _ := newTestPlayer(t)
	player.SetPitch(150)
	player.SetPitch(0)
	player.SetPitch(-5)
	assert.Equal(t, 150.0, player.Pitch(), "non-positive pitch is ignored")
}

func TestPlayer_SettingsApplyToNextTrack(t *testing.T) {
	player, _ := newTestPlayer(t)
	player.SetLoop(true)
	player.SetPitch(120)
	player.SetVolume(30)

	require.NoError(t, player.Load(writeWAV(t, "tone.wav", testRate)))

	assert.True(t, player.current.looper.loop)
	assert.InDelta(t, gainFor(30), player.current.gain.Gain, 1e-9)
}

func TestSupportedFormat(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"track.mp3", true},
		{"TRACK.MP3", true},
		{"a/b/c.wav", true},
		{"song.flac", true},
		{"song.ogg", true},
		{"song.oga", true},
		{"song.m4a", false},
		{"noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SupportedFormat(tt.path))
		})
	}
}
