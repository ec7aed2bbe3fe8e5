// Package buffer holds captured frames between the capture and consume goroutines.
//
// Push never blocks: when the buffer is full the frame is dropped and counted.
// Pop blocks with a timeout so the consumer does not spin on an empty buffer.
package buffer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

// DefaultCapacity is used when the configured capacity is not positive.
const DefaultCapacity = 10

// Buffer is a bounded FIFO of frames.
type Buffer struct {
	frames chan types.Frame

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// Stats is a snapshot of the buffer counters.
type Stats struct {
	Capacity int    `json:"capacity"`
	Queued   int    `json:"queued"`
	Pushed   uint64 `json:"pushed"`
	Dropped  uint64 `json:"dropped"`
}

// New creates a buffer holding at most capacity frames.
// A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{frames: make(chan types.Frame, capacity)}
}

// TryPush queues the frame, or drops it and returns false if the buffer is full.
func (b *Buffer) TryPush(f types.Frame) bool {
	select {
	case b.frames <- f:
		b.pushed.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// TryPop returns the oldest frame without waiting.
func (b *Buffer) TryPop() (types.Frame, bool) {
	select {
	case f := <-b.frames:
		return f, true
	default:
		return types.Frame{}, false
	}
}

// Pop waits up to timeout for a frame. It returns false on timeout or when ctx is done.
func (b *Buffer) Pop(ctx context.Context, timeout time.Duration) (types.Frame, bool) {
	// Fast path, no timer allocation when a frame is already queued
	if f, ok := b.TryPop(); ok {
		return f, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-b.frames:
		return f, true
	case <-timer.C:
		return types.Frame{}, false
	case <-ctx.Done():
		return types.Frame{}, false
	}
}

// Len is the number of queued frames.
func (b *Buffer) Len() int { return len(b.frames) }

// Cap is the buffer capacity.
func (b *Buffer) Cap() int { return cap(b.frames) }

// Stats returns the current counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Capacity: b.Cap(),
		Queued:   b.Len(),
		Pushed:   b.pushed.Load(),
		Dropped:  b.dropped.Load(),
	}
}
