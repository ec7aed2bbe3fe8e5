package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

// Writer is the part of Store the mirror needs.
type Writer interface {
	RecordSeen(ctx context.Context, rec types.AttendanceRecord) error
}

// Mirror is a ledger sink that writes records to the database on its own goroutine.
// When the queue is full records are dropped; the CSV ledger stays authoritative.
type Mirror struct {
	w       Writer
	queue   chan types.AttendanceRecord
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewMirror returns a mirror with room for size pending records.
func NewMirror(w Writer, size int) *Mirror {
	if size < 1 {
		size = 64
	}
	return &Mirror{
		w:     w,
		queue: make(chan types.AttendanceRecord, size),
		done:  make(chan struct{}),
	}
}

// Publish implements ledger.Sink.
func (m *Mirror) Publish(rec types.AttendanceRecord) {
	select {
	case m.queue <- rec:
	default:
		m.dropped.Add(1)
		slog.Warn("store: mirror queue full, dropping record", "name", rec.Name)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (m *Mirror) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case rec := <-m.queue:
			m.write(ctx, rec)
		case <-ctx.Done():
			// Flush with a fresh context, the run context is already gone
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-m.queue:
					m.write(flushCtx, rec)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (m *Mirror) Wait() { <-m.done }

// Stats returns how many records were written and dropped.
func (m *Mirror) Stats() (written, dropped uint64) {
	return m.written.Load(), m.dropped.Load()
}

func (m *Mirror) write(ctx context.Context, rec types.AttendanceRecord) {
	if err := m.w.RecordSeen(ctx, rec); err != nil {
		slog.Error("store: mirror write failed", "name", rec.Name, "err", err)
		return
	}
	m.written.Add(1)
}
