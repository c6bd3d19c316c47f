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

package reactor

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultReadBufferSize is the most a single read event may carry
const DefaultReadBufferSize = 256

// Executor runs one command line and writes its reply
type Executor interface {
	Execute(line string, w io.Writer) error
}

// ClientTask reads one buffer per readiness event and runs it as a command.
//
// Framing is one read, one command: bytes beyond the buffer, or a second
// line arriving in the same read, are not carried over to the next event.
// A command split across two reads is not reassembled.
type ClientTask struct {
	registry *Registry
	executor Executor
	sink     SinkFunc
	buf      []byte
	read     func(fd int, p []byte) (int, error)
}

// NewClientTask creates a handler whose replies go to a duplicate of the
// client descriptor.
func NewClientTask(registry *Registry, executor Executor, bufferSize int) *ClientTask {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}
	return &ClientTask{
		registry: registry,
		executor: executor,
		sink:     DupSink,
		buf:      make([]byte, bufferSize),
		read:     unix.Read,
	}
}

// Handle reads and executes at most one command
func (c *ClientTask) Handle(fd int) Result {
	n, err := c.read(fd, c.buf)
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return NoMoreData
		case errors.Is(err, unix.EINTR):
			return MoreData
		}
		log.Printf("⚠️ Read from client %d failed: %v", fd, err)
		c.registry.MarkForDeletion(fd)
		return NoMoreData
	}

	if n == 0 {
		log.Printf("🔌 Client %d disconnected", fd)
		c.registry.MarkForDeletion(fd)
		return NoMoreData
	}

	c.execute(fd, commandLine(c.buf[:n]))
	return NoMoreData
}

func (c *ClientTask) execute(fd int, line string) {
	w, err := c.sink(fd)
	if err != nil {
		log.Printf("⚠️ No reply handle for client %d: %v", fd, err)
		c.registry.MarkForDeletion(fd)
		return
	}

	if err := c.executor.Execute(line, w); err != nil {
		log.Printf("⚠️ Failed to reply to client %d: %v", fd, err)
		c.registry.MarkForDeletion(fd)
	}

	if err := w.Close(); err != nil {
		log.Printf("⚠️ Failed to close reply handle for client %d: %v", fd, err)
	}
}

// commandLine stops at the first NUL and strips leading whitespace
func commandLine(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return strings.TrimLeft(string(data), " \t\r\n")
}
