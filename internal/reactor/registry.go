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
	"log"

	"golang.org/x/sys/unix"
)

// ErrCapacityExceeded is returned by Register when every slot is taken
var ErrCapacityExceeded = errors.New("task registry capacity exceeded")

// Result tells the reactor whether to invoke a handler again
type Result int

const (
	// NoMoreData means the descriptor is drained for this round
	NoMoreData Result = iota
	// MoreData asks the reactor to invoke the handler again right away
	MoreData
	// Fatal stops the reactor
	Fatal
)

// Handler is invoked by the reactor when its descriptor is readable
type Handler interface {
	Handle(fd int) Result
}

// Closer lets a handler take over closing its descriptor during compaction
type Closer interface {
	Close(fd int) error
}

// Task is a registered descriptor and the handler bound to it
type Task struct {
	FD      int
	Handler Handler
	deleted bool
}

// PendingDeletion reports whether the task will be removed at the next compaction
func (t *Task) PendingDeletion() bool {
	return t.deleted
}

// Registry is a bounded, order-preserving set of tasks keyed by descriptor.
// Removal is deferred: MarkForDeletion flags a task and Compact removes it,
// so the slice is never reshaped while the reactor iterates over it.
type Registry struct {
	tasks    []*Task
	capacity int
	closeFD  func(fd int) error
}

// NewRegistry creates a registry holding at most capacity tasks
func NewRegistry(capacity int) *Registry {
	return &Registry{
		tasks:    make([]*Task, 0, capacity),
		capacity: capacity,
		closeFD:  unix.Close,
	}
}

// Register adds a task for fd. On failure the caller still owns fd.
func (r *Registry) Register(fd int, handler Handler) error {
	if len(r.tasks) >= r.capacity {
		return ErrCapacityExceeded
	}
	r.tasks = append(r.tasks, &Task{FD: fd, Handler: handler})
	return nil
}

// Find returns the task registered for fd
func (r *Registry) Find(fd int) (*Task, bool) {
	for _, t := range r.tasks {
		if t.FD == fd {
			return t, true
		}
	}
	return nil, false
}

// MarkForDeletion flags the task for fd. Unknown descriptors are ignored.
func (r *Registry) MarkForDeletion(fd int) {
	if t, ok := r.Find(fd); ok {
		t.deleted = true
	}
}

// Compact closes and removes every task marked for deletion, shifting the
// survivors down in their original order. It returns the number removed.
// It must not be called while a handler is running.
func (r *Registry) Compact() int {
	kept := 0
	for _, t := range r.tasks {
		if !t.deleted {
			r.tasks[kept] = t
			kept++
			continue
		}
		r.close(t)
	}

	removed := len(r.tasks) - kept
	for i := kept; i < len(r.tasks); i++ {
		r.tasks[i] = nil
	}
	r.tasks = r.tasks[:kept]
	return removed
}

// CloseAll marks every task and compacts, leaving the registry empty
func (r *Registry) CloseAll() int {
	for _, t := range r.tasks {
		t.deleted = true
	}
	return r.Compact()
}

// Tasks returns a snapshot of the registered tasks in registration order
func (r *Registry) Tasks() []*Task {
	snapshot := make([]*Task, len(r.tasks))
	copy(snapshot, r.tasks)
	return snapshot
}

// Len returns the number of registered tasks, including those pending deletion
func (r *Registry) Len() int {
	return len(r.tasks)
}

// Capacity returns the fixed number of slots
func (r *Registry) Capacity() int {
	return r.capacity
}

func (r *Registry) close(t *Task) {
	var err error
	if c, ok := t.Handler.(Closer); ok {
		err = c.Close(t.FD)
	} else {
		err = r.closeFD(t.FD)
	}
	if err != nil {
		log.Printf("⚠️ Failed to close descriptor %d: %v", t.FD, err)
	}
}
