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

// Package reactor implements a single-threaded, poll-driven event loop over
// a fixed-capacity registry of non-blocking descriptors.
package reactor

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/sys/unix"
)

// ErrFatal is wrapped by Run when a handler returned Fatal
var ErrFatal = errors.New("fatal task failure")

// State of the event loop
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Reactor waits for readiness on every registered descriptor and drains the
// ready ones. It is not safe for concurrent use: handlers, Stop and the
// registry are all driven from the goroutine calling Run.
type Reactor struct {
	registry *Registry
	running  bool
	state    State
	poll     func(fds []unix.PollFd, timeout int) (int, error)
}

// New creates a reactor over registry
func New(registry *Registry) *Reactor {
	return &Reactor{
		registry: registry,
		running:  true,
		state:    Running,
		poll:     unix.Poll,
	}
}

// Registry returns the registry the reactor polls
func (r *Reactor) Registry() *Registry {
	return r.registry
}

// Stop requests shutdown. The current round completes first.
func (r *Reactor) Stop() {
	r.running = false
}

// State returns the loop state
func (r *Reactor) State() State {
	return r.state
}

// Run loops until Stop is called, the registry empties, or a fatal error
// occurs. All remaining descriptors are closed before it returns. A
// cooperative stop returns nil.
func (r *Reactor) Run() error {
	defer r.shutdown()

	for r.running {
		tasks := r.registry.Tasks()
		if len(tasks) == 0 {
			log.Println("🛑 No tasks left to poll")
			return nil
		}

		fds := make([]unix.PollFd, len(tasks))
		for i, t := range tasks {
			fds[i] = unix.PollFd{Fd: int32(t.FD), Events: unix.POLLIN} //nolint:gosec // G115: descriptors fit in int32
		}

		if _, err := r.poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Printf("❌ Poll failed: %v", err)
			return fmt.Errorf("poll failed: %w", err)
		}

		err := r.dispatch(tasks, fds)
		r.registry.Compact()
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatch drains every ready task of one poll round
func (r *Reactor) dispatch(tasks []*Task, fds []unix.PollFd) error {
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}

		t := tasks[i]
		if t.PendingDeletion() {
			continue
		}

		if pfd.Revents&unix.POLLNVAL != 0 {
			log.Printf("⚠️ Descriptor %d is not open, dropping task", t.FD)
			t.deleted = true
			continue
		}

		if err := r.drain(t); err != nil {
			return err
		}
	}
	return nil
}

// drain invokes the handler until it has nothing more to do
func (r *Reactor) drain(t *Task) error {
	for {
		switch t.Handler.Handle(t.FD) {
		case MoreData:
			if t.PendingDeletion() {
				return nil
			}
		case Fatal:
			return fmt.Errorf("task on descriptor %d: %w", t.FD, ErrFatal)
		default:
			return nil
		}
	}
}

func (r *Reactor) shutdown() {
	r.running = false
	r.state = Stopped
	closed := r.registry.CloseAll()
	log.Printf("🛑 Reactor stopped, closed %d descriptors", closed)
}
