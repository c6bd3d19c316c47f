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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedHandler returns results from a script, then NoMoreData forever
type scriptedHandler struct {
	script []Result
	calls  int
	onCall func(fd int)
}

func (h *scriptedHandler) Handle(fd int) Result {
	h.calls++
	if h.onCall != nil {
		h.onCall(fd)
	}
	if h.calls <= len(h.script) {
		return h.script[h.calls-1]
	}
	return NoMoreData
}

type closingHandler struct {
	scriptedHandler
	closed []int
}

func (h *closingHandler) Close(fd int) error {
	h.closed = append(h.closed, fd)
	return nil
}

// newFakeRegistry records closed descriptors instead of closing them
func newFakeRegistry(capacity int) (*Registry, *[]int) {
	closed := &[]int{}
	r := NewRegistry(capacity)
	r.closeFD = func(fd int) error {
		*closed = append(*closed, fd)
		return nil
	}
	return r, closed
}

func fds(tasks []*Task) []int {
	result := make([]int, len(tasks))
	for i, t := range tasks {
		result[i] = t.FD
	}
	return result
}

func TestRegistry_Register(t *testing.T) {
	r, _ := newFakeRegistry(3)

	for fd := 10; fd < 13; fd++ {
		require.NoError(t, r.Register(fd, &scriptedHandler{}))
	}
	assert.Equal(t, 3, r.Len())

	err := r.Register(13, &scriptedHandler{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 3, r.Len())
	_, found := r.Find(13)
	assert.False(t, found, "failed registration must not leave a slot behind")
}

func TestRegistry_Find(t *testing.T) {
	r, _ := newFakeRegistry(4)
	h := &scriptedHandler{}
	require.NoError(t, r.Register(7, h))

	task, ok := r.Find(7)
	require.True(t, ok)
	assert.Equal(t, 7, task.FD)
	assert.Same(t, h, task.Handler)

	_, ok = r.Find(8)
	assert.False(t, ok)
}

func TestRegistry_MarkForDeletion(t *testing.T) {
	r, closed := newFakeRegistry(4)
	require.NoError(t, r.Register(1, &scriptedHandler{}))

	r.MarkForDeletion(1)
	r.MarkForDeletion(1)
	r.MarkForDeletion(99)

	task, ok := r.Find(1)
	require.True(t, ok, "marked task stays registered until compaction")
	assert.True(t, task.PendingDeletion())
	assert.Empty(t, *closed, "marking must not close")

	assert.Equal(t, 1, r.Compact())
	assert.Equal(t, []int{1}, *closed)
	assert.Equal(t, 0, r.Compact(), "second compaction is a no-op")
}

func TestRegistry_CompactPreservesOrder(t *testing.T) {
	r, closed := newFakeRegistry(8)
	for _, fd := range []int{3, 4, 5, 6, 7, 8} {
		require.NoError(t, r.Register(fd, &scriptedHandler{}))
	}

	r.MarkForDeletion(4)
	r.MarkForDeletion(5)
	r.MarkForDeletion(8)

	assert.Equal(t, 3, r.Compact())
	assert.Equal(t, []int{3, 6, 7}, fds(r.Tasks()))
	assert.Equal(t, []int{4, 5, 8}, *closed)

	// Freed slots are reusable
	for _, fd := range []int{9, 10, 11, 12, 13} {
		require.NoError(t, r.Register(fd, &scriptedHandler{}))
	}
	assert.ErrorIs(t, r.Register(14, &scriptedHandler{}), ErrCapacityExceeded)
	assert.Equal(t, []int{3, 6, 7, 9, 10, 11, 12, 13}, fds(r.Tasks()))
}

func TestRegistry_CloserHandler(t *testing.T) {
	r, closed := newFakeRegistry(2)
	h := &closingHandler{}
	require.NoError(t, r.Register(5, h))
	require.NoError(t, r.Register(6, &scriptedHandler{}))

	assert.Equal(t, 2, r.CloseAll())

	assert.Equal(t, []int{5}, h.closed, "handler closes its own descriptor")
	assert.Equal(t, []int{6}, *closed)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_TasksIsSnapshot(t *testing.T) {
	r, _ := newFakeRegistry(4)
	require.NoError(t, r.Register(1, &scriptedHandler{}))

	snapshot := r.Tasks()
	require.NoError(t, r.Register(2, &scriptedHandler{}))

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, r.Len())
}
