// Package capture reads frames from a local camera or a network stream and
// keeps the source connected while the pipeline runs.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

// ErrNoFrame means the source is healthy but had nothing to deliver yet.
var ErrNoFrame = errors.New("no frame available")

// ErrReconnectsExhausted is returned by Reader.Run when MaxAttempts consecutive reconnects failed.
var ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")

// Source is a camera or stream handle.
type Source interface {
	// Open acquires the device or starts the stream.
	Open(ctx context.Context) error
	// ReadFrame returns the next JPEG frame. Seq and CapturedAt are filled in by the Reader.
	ReadFrame(ctx context.Context) (types.Frame, error)
	// Close releases the handle. Safe to call on a source that failed to open.
	Close() error
}

// Settings are the hints applied when a source is opened.
type Settings struct {
	BufferSize int
	FPS        int
	Width      int
	Height     int
}

// EventKind tells connected, reconnecting and failed apart.
type EventKind int

const (
	Connected EventKind = iota
	Reconnecting
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event describes a change in the source connection.
type Event struct {
	Kind    EventKind
	Attempt int
	Err     error
	At      time.Time
}

func (e Event) String() string {
	s := e.Kind.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
