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
	"fmt"
	"io"
	"log"

	"golang.org/x/sys/unix"
)

// StdinTask reads commands from an input descriptor and writes replies to
// out. Unlike a socket client it runs input line by line, so a script piped
// in with one write runs every command. A line longer than the read buffer
// is split at the buffer size.
//
// The descriptor is put in non-blocking mode while registered; Close
// restores its original flags and leaves it open.
type StdinTask struct {
	*ClientTask
	flags   int
	pending []byte

	// OnClose, if set, runs after the task is compacted out (EOF or shutdown)
	OnClose func()
}

// RegisterStdin registers fd (normally 0) as a command source replying to out
func RegisterStdin(registry *Registry, fd int, executor Executor, bufferSize int, out io.Writer) (*StdinTask, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read flags of descriptor %d: %w", fd, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("failed to set descriptor %d non-blocking: %w", fd, err)
	}

	client := NewClientTask(registry, executor, bufferSize)
	client.sink = WriterSink(out)
	task := &StdinTask{ClientTask: client, flags: flags}

	if err := registry.Register(fd, task); err != nil {
		_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags)
		return nil, err
	}
	return task, nil
}

// Handle runs one buffered line, or reads more input when no complete line
// is buffered. It reports MoreData while lines remain.
func (s *StdinTask) Handle(fd int) Result {
	if line, ok := s.nextLine(false); ok {
		s.execute(fd, line)
		return MoreData
	}

	n, err := s.read(fd, s.buf)
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return NoMoreData
		case errors.Is(err, unix.EINTR):
			return MoreData
		}
		log.Printf("⚠️ Read from standard input failed: %v", err)
		s.registry.MarkForDeletion(fd)
		return NoMoreData
	}

	if n == 0 {
		// A last line without a terminator still runs
		if line, ok := s.nextLine(true); ok {
			s.execute(fd, line)
		}
		log.Println("🔌 Standard input closed")
		s.registry.MarkForDeletion(fd)
		return NoMoreData
	}

	s.pending = append(s.pending, s.buf[:n]...)
	return MoreData
}

// nextLine pops the next non-blank line from the pending input. Without a
// newline, a full buffer's worth of input counts as a line, as does any
// remainder when final is set.
func (s *StdinTask) nextLine(final bool) (string, bool) {
	s.pending = bytes.TrimLeft(s.pending, " \t\r\n")
	if len(s.pending) == 0 {
		return "", false
	}

	end := bytes.IndexByte(s.pending, '\n') + 1
	switch {
	case end > 0:
	case final, len(s.pending) >= len(s.buf):
		end = min(len(s.pending), len(s.buf))
	default:
		return "", false
	}

	line := commandLine(s.pending[:end])
	s.pending = s.pending[end:]
	return line, true
}

// Close restores the descriptor's original file status flags
func (s *StdinTask) Close(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, s.flags)
	if s.OnClose != nil {
		s.OnClose()
	}
	return err
}
