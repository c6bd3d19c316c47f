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
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNotConnected is returned by Send before Connect or after Disconnect
var ErrNotConnected = errors.New("not connected to player")

const (
	// DefaultTimeout bounds the wait for the first byte of a reply
	DefaultTimeout = 5 * time.Second

	// replyIdleGap ends a reply once no more bytes arrive for this long
	replyIdleGap = 50 * time.Millisecond

	readChunkSize = 512
)

// ControlClient talks to a running player over its control socket.
// The player handles one command per read, so sends are serialized and a
// reply is collected before the next command goes out.
type ControlClient struct {
	mu         sync.Mutex
	socketPath string
	timeout    time.Duration
	conn       net.Conn
}

// NewControlClient creates a client for the socket at socketPath
func NewControlClient(socketPath string, timeout time.Duration) *ControlClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ControlClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Connect opens the control socket
func (c *ControlClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to player at %s: %w", c.socketPath, err)
	}

	c.conn = conn
	log.Printf("🔗 Connected to player at %s", c.socketPath)
	return nil
}

// Send writes one command line and returns the player's reply
func (c *ControlClient) Send(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrNotConnected
	}

	line := strings.TrimRight(command, "\r\n") + "\n"
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.conn, line); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	reply, err := c.readReplyLocked()
	if err != nil {
		c.dropLocked()
		return "", err
	}
	return reply, nil
}

// readReplyLocked waits for the first chunk, then keeps reading until the
// connection goes quiet or the player hangs up.
func (c *ControlClient) readReplyLocked() (string, error) {
	var reply bytes.Buffer
	buf := make([]byte, readChunkSize)

	deadline := time.Now().Add(c.timeout)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return "", err
		}

		n, err := c.conn.Read(buf)
		reply.Write(buf[:n])

		switch {
		case err == nil:
			deadline = time.Now().Add(replyIdleGap)
		case errors.Is(err, io.EOF):
			if reply.Len() == 0 {
				return "", fmt.Errorf("player closed the connection: %w", err)
			}
			return reply.String(), nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			if reply.Len() == 0 {
				return "", fmt.Errorf("no reply within %v: %w", c.timeout, err)
			}
			return reply.String(), nil
		default:
			return "", fmt.Errorf("failed to read reply: %w", err)
		}
	}
}

func (c *ControlClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Disconnect closes the control socket
func (c *ControlClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.dropLocked()
		log.Println("🔌 Disconnected from player")
	}
}

// IsConnected returns whether the client currently holds a connection
func (c *ControlClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
