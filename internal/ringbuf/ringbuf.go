/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package ringbuf implements the fixed-capacity byte queue that sits between
// stream producers and the player task.
//
// A RingBuffer is NOT safe for concurrent use. The player serializes every
// call with its own ring-buffer mutex so that decode and write can run
// without contending on session state.
package ringbuf

import (
	"errors"
	"fmt"
)

// Overflow decides what Write does when the buffer cannot hold all bytes.
type Overflow int

const (
	// OverflowStop accepts only what fits and reports the short count.
	OverflowStop Overflow = iota
	// OverflowCover overwrites the oldest bytes.
	OverflowCover
)

var ErrCapacity = errors.New("ringbuf: capacity must be positive")

type RingBuffer struct {
	data   []byte
	policy Overflow
	rd     int // next read position
	used   int
}

func New(capacity int, policy Overflow) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	if policy != OverflowStop && policy != OverflowCover {
		return nil, fmt.Errorf("ringbuf: unknown overflow policy %d", policy)
	}
	return &RingBuffer{data: make([]byte, capacity), policy: policy}, nil
}

func (rb *RingBuffer) Cap() int  { return len(rb.data) }
func (rb *RingBuffer) Used() int { return rb.used }
func (rb *RingBuffer) Free() int { return len(rb.data) - rb.used }

// Write copies p into the buffer and returns the number of bytes accepted.
func (rb *RingBuffer) Write(p []byte) int {
	if len(rb.data) == 0 || len(p) == 0 {
		return 0
	}

	total := len(p)
	n := total
	switch rb.policy {
	case OverflowStop:
		if n > rb.Free() {
			n = rb.Free()
		}
	case OverflowCover:
		// Hanya simpan 'capacity' byte terakhir
		if n > len(rb.data) {
			p = p[n-len(rb.data):]
			n = len(rb.data)
		}
		if over := n - rb.Free(); over > 0 {
			rb.discard(over)
		}
	}
	if n == 0 {
		return 0
	}

	wr := (rb.rd + rb.used) % len(rb.data)
	first := copy(rb.data[wr:], p[:n])
	if first < n {
		copy(rb.data, p[first:n])
	}
	rb.used += n

	if rb.policy == OverflowCover {
		return total
	}
	return n
}

// Read moves up to len(p) bytes out of the buffer. It never blocks and
// returns 0 when the buffer is empty.
func (rb *RingBuffer) Read(p []byte) int {
	n := len(p)
	if n > rb.used {
		n = rb.used
	}
	if n == 0 {
		return 0
	}

	first := copy(p[:n], rb.data[rb.rd:])
	if first < n {
		copy(p[first:n], rb.data)
	}
	rb.discard(n)
	return n
}

func (rb *RingBuffer) discard(n int) {
	rb.rd = (rb.rd + n) % len(rb.data)
	rb.used -= n
	if rb.used == 0 {
		rb.rd = 0
	}
}

// Reset drops all buffered bytes.
func (rb *RingBuffer) Reset() {
	rb.rd = 0
	rb.used = 0
}

// Close releases the backing storage. Any later call sees a zero-capacity buffer.
func (rb *RingBuffer) Close() {
	rb.data = nil
	rb.Reset()
}
