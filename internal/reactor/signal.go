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
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// SignalTask turns process signals into a cooperative stop.
// Signals are written into a pipe by a forwarding goroutine; the read end is
// polled like any other task so the stop happens on the reactor goroutine.
type SignalTask struct {
	registry *Registry
	stop     func()
	signals  chan os.Signal
	buf      [16]byte
}

// RegisterSignals registers a task that calls stop when one of sigs arrives
func RegisterSignals(registry *Registry, stop func(), sigs ...os.Signal) error {
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		return fmt.Errorf("failed to create signal pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return fmt.Errorf("failed to set signal pipe non-blocking: %w", err)
		}
	}

	task := &SignalTask{
		registry: registry,
		stop:     stop,
		signals:  make(chan os.Signal, 1),
	}

	if err := registry.Register(p[0], task); err != nil {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
		return err
	}

	signal.Notify(task.signals, sigs...)
	go forwardSignals(task.signals, p[1])
	return nil
}

// forwardSignals owns the write end of the pipe
func forwardSignals(signals <-chan os.Signal, fd int) {
	defer func() { _ = unix.Close(fd) }()
	for sig := range signals {
		log.Printf("🛑 Received %v", sig)
		// A full pipe already holds a pending wakeup
		_, _ = unix.Write(fd, []byte{1})
	}
}

// Handle drains pending wakeups and stops the reactor
func (s *SignalTask) Handle(fd int) Result {
	n, err := unix.Read(fd, s.buf[:])
	switch {
	case err == nil && n > 0:
		s.stop()
		return MoreData
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return NoMoreData
	default:
		s.registry.MarkForDeletion(fd)
		return NoMoreData
	}
}

// Close stops signal delivery and closes the read end. The forwarding
// goroutine closes the write end once the channel is closed.
func (s *SignalTask) Close(fd int) error {
	signal.Stop(s.signals)
	close(s.signals)
	return unix.Close(fd)
}
