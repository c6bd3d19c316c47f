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
	"io"

	"golang.org/x/sys/unix"
)

// ErrWriteTimeout is returned when a descriptor stays unwritable too long
var ErrWriteTimeout = errors.New("descriptor not writable")

// writeTimeoutMs bounds how long a reply may wait for a full socket buffer
const writeTimeoutMs = 2000

// SinkFunc opens the writer a reply for fd is flushed to
type SinkFunc func(fd int) (io.WriteCloser, error)

// FDWriter writes to a possibly non-blocking descriptor, waiting for
// writability when the kernel buffer is full.
type FDWriter struct {
	fd    int
	owned bool
}

// NewFDWriter wraps fd without taking ownership of it
func NewFDWriter(fd int) *FDWriter {
	return &FDWriter{fd: fd}
}

// DupSink duplicates fd so the reply handle can be closed independently
// of the registered read descriptor.
func DupSink(fd int) (io.WriteCloser, error) {
	dup, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate descriptor %d: %w", fd, err)
	}
	unix.CloseOnExec(dup)
	return &FDWriter{fd: dup, owned: true}, nil
}

// WriterSink sends every reply to w regardless of the descriptor
func WriterSink(w io.Writer) SinkFunc {
	return func(int) (io.WriteCloser, error) {
		return nopWriteCloser{w}, nil
	}
}

func (w *FDWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(w.fd, p[written:])
		if n > 0 {
			written += n
		}

		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			if err := w.waitWritable(); err != nil {
				return written, err
			}
		default:
			return written, err
		}
	}
	return written, nil
}

func (w *FDWriter) waitWritable() error {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLOUT}} //nolint:gosec // G115: descriptors fit in int32
	for {
		n, err := unix.Poll(fds, writeTimeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrWriteTimeout
		}
		return nil
	}
}

// Close releases the descriptor if the writer owns it
func (w *FDWriter) Close() error {
	if !w.owned {
		return nil
	}
	w.owned = false
	return unix.Close(w.fd)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
