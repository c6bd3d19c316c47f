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
	"io/fs"
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBacklog is the listen queue length for the control socket
const DefaultBacklog = 16

// Listen creates a non-blocking Unix stream socket bound at path.
// A stale socket file left by a previous run is removed first.
func Listen(path string, backlog int) (int, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return -1, fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to create socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("failed to bind %s: %w", path, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return -1, fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return -1, fmt.Errorf("failed to set %s non-blocking: %w", path, err)
	}

	return fd, nil
}

// ListenerTask accepts connections on the control socket and registers a
// client task for each one.
type ListenerTask struct {
	registry  *Registry
	path      string
	newClient func(fd int) Handler

	accept      func(fd int) (int, error)
	setNonblock func(fd int) error
	closeFD     func(fd int) error
}

// NewListenerTask creates the listener for the socket at path. newClient
// builds the handler for every accepted descriptor.
func NewListenerTask(registry *Registry, path string, newClient func(fd int) Handler) *ListenerTask {
	return &ListenerTask{
		registry:  registry,
		path:      path,
		newClient: newClient,
		accept: func(fd int) (int, error) {
			nfd, _, err := unix.Accept(fd)
			return nfd, err
		},
		setNonblock: func(fd int) error { return unix.SetNonblock(fd, true) },
		closeFD:     unix.Close,
	}
}

// Handle accepts one pending connection
func (l *ListenerTask) Handle(fd int) Result {
	nfd, err := l.accept(fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return NoMoreData
		}
		log.Printf("⚠️ Accept failed: %v", err)
		return NoMoreData
	}
	unix.CloseOnExec(nfd)

	if err := l.setNonblock(nfd); err != nil {
		log.Printf("⚠️ Failed to set client %d non-blocking, dropping it: %v", nfd, err)
		_ = l.closeFD(nfd)
		return MoreData
	}

	if err := l.registry.Register(nfd, l.newClient(nfd)); err != nil {
		log.Printf("❌ Cannot register client %d (%d/%d slots): %v", nfd, l.registry.Len(), l.registry.Capacity(), err)
		_ = l.closeFD(nfd)
		return Fatal
	}

	log.Printf("🔗 Client connected (descriptor %d)", nfd)
	return MoreData
}

// Close closes the listening descriptor and removes the socket file
func (l *ListenerTask) Close(fd int) error {
	err := l.closeFD(fd)
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
