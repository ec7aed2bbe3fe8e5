package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

// DefaultBackoff is the flat wait between reconnect attempts.
const DefaultBackoff = 2 * time.Second

// Reader pulls frames from a Source and reconnects when it fails.
type Reader struct {
	Source Source
	// Backoff is the wait before every reopen. Zero means DefaultBackoff.
	Backoff time.Duration
	// MaxAttempts caps consecutive failed reconnects. Zero retries forever.
	MaxAttempts int
	// Events receives connection changes. Sends never block; a slow listener misses events.
	Events chan<- Event

	seq uint64
}

// Run reads until ctx is cancelled, handing each frame to push.
// It returns nil on cancellation and ErrReconnectsExhausted when MaxAttempts is reached.
func (r *Reader) Run(ctx context.Context, push func(types.Frame) bool) error {
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	defer r.Source.Close()

	attempt := 0
	connected := false
	for {
		if ctx.Err() != nil {
			return nil
		}

		// 1. (Re)open the source
		if !connected {
			if err := r.Source.Open(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				attempt++
				if err := r.fail(ctx, attempt, err, backoff); err != nil {
					return err
				}
				continue
			}
			connected = true
			attempt = 0
			slog.Info("capture: connected")
			r.emit(Event{Kind: Connected})
		}

		// 2. Read one frame
		frame, err := r.Source.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrNoFrame) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			r.Source.Close()
			connected = false
			attempt++
			if err := r.fail(ctx, attempt, err, backoff); err != nil {
				return err
			}
			continue
		}

		r.seq++
		frame.Seq = r.seq
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = time.Now()
		}
		push(frame)
	}
}

// fail reports a failed attempt and waits out the backoff.
func (r *Reader) fail(ctx context.Context, attempt int, cause error, backoff time.Duration) error {
	if r.MaxAttempts > 0 && attempt > r.MaxAttempts {
		err := fmt.Errorf("%w after %d attempts: %w", ErrReconnectsExhausted, r.MaxAttempts, cause)
		slog.Error("capture: giving up", "attempts", r.MaxAttempts, "err", cause)
		r.emit(Event{Kind: Failed, Attempt: attempt, Err: err})
		return err
	}

	slog.Warn("capture: reconnecting",
		"attempt", attempt,
		"kind", types.Classify(cause).String(),
		"delay", backoff,
		"err", cause,
	)
	r.emit(Event{Kind: Reconnecting, Attempt: attempt, Err: cause})

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (r *Reader) emit(ev Event) {
	if r.Events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case r.Events <- ev:
	default:
	}
}

// NewSource builds the source selected by kind ("device" or "stream").
func NewSource(kind string, device int, url string, s Settings) (Source, error) {
	switch kind {
	case "", "device":
		return NewDeviceSource(device, s), nil
	case "stream":
		if url == "" {
			return nil, fmt.Errorf("stream source requires a url")
		}
		return NewStreamSource(url, s), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}
