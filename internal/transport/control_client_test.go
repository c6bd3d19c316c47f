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

package transport

import (
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMockPlayer serves a tiny line protocol on a Unix socket:
// "quit" replies and hangs up, "mute" never replies, anything else is echoed.
func createMockPlayer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "player.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				handleMockConnection(conn)
			}()
		}
	}()

	return path
}

func handleMockConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	buf := make([]byte, 256)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		line := strings.TrimSpace(string(buf[:n]))
		switch line {
		case "quit":
			_, _ = conn.Write([]byte("Exiting...\n"))
			return
		case "mute":
		case "time":
			// Two writes, one reply
			_, _ = conn.Write([]byte("1.000000\n"))
			_, _ = conn.Write([]byte("30.000000\n"))
		default:
			_, _ = conn.Write([]byte("ok " + line + "\n"))
		}
	}
}

func TestNewControlClient(t *testing.T) {
	client := NewControlClient("/tmp/player.sock", 0)

	assert.Equal(t, "/tmp/player.sock", client.socketPath)
	assert.Equal(t, DefaultTimeout, client.timeout)
	assert.False(t, client.IsConnected())
}

func TestControlClient_Connect(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client := NewControlClient(createMockPlayer(t), time.Second)

		require.NoError(t, client.Connect())
		assert.True(t, client.IsConnected())
		assert.NoError(t, client.Connect(), "connecting twice is a no-op")

		client.Disconnect()
		assert.False(t, client.IsConnected())
	})

	t.Run("player_not_running", func(t *testing.T) {
		client := NewControlClient(filepath.Join(t.TempDir(), "absent.sock"), time.Second)

		err := client.Connect()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to player")
		assert.False(t, client.IsConnected())
	})
}

func TestControlClient_Send(t *testing.T) {
	client := NewControlClient(createMockPlayer(t), 500*time.Millisecond)

	_, err := client.Send("status")
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, client.Connect())
	defer client.Disconnect()

	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"adds_newline", "status", "ok status\n"},
		{"keeps_single_newline", "volume 50\n", "ok volume 50\n"},
		{"multi_part_reply", "time", "1.000000\n30.000000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := client.Send(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestControlClient_SendNoReply(t *testing.T) {
	client := NewControlClient(createMockPlayer(t), 100*time.Millisecond)
	require.NoError(t, client.Connect())

	_, err := client.Send("mute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reply")
	assert.False(t, client.IsConnected(), "a timed out connection is dropped")
}

func TestControlClient_Quit(t *testing.T) {
	client := NewControlClient(createMockPlayer(t), time.Second)
	require.NoError(t, client.Connect())

	reply, err := client.Send("quit")
	require.NoError(t, err)
	assert.Equal(t, "Exiting...\n", reply)

	_, err = client.Send("status")
	assert.Error(t, err, "player hung up")
	assert.False(t, client.IsConnected())
}

func TestControlClient_ConcurrentSends(t *testing.T) {
	client := NewControlClient(createMockPlayer(t), time.Second)
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	var wg sync.WaitGroup
	replies := make([]string, 8)
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i], _ = client.Send("status")
		}(i)
	}
	wg.Wait()

	for _, reply := range replies {
		assert.Equal(t, "ok status\n", reply, "serialized sends never interleave replies")
	}
}
