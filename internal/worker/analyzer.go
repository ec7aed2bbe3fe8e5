package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

// Analyzer serializes requests to a single Python worker and restarts it after a crash or timeout.
type Analyzer struct {
	cfg     Config
	timeout time.Duration

	mu     sync.Mutex
	w      *PythonWorker
	starts int
}

// NewAnalyzer returns an analyzer that starts its worker on first use.
// A positive timeout bounds each frame; the worker is killed when it is exceeded.
func NewAnalyzer(cfg Config, timeout time.Duration) *Analyzer {
	return &Analyzer{cfg: cfg, timeout: timeout}
}

// Warm starts the worker now instead of on the first frame, so model loading errors surface early.
func (a *Analyzer) Warm() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ensureLocked()
}

func (a *Analyzer) ensureLocked() error {
	if a.w != nil {
		return nil
	}
	a.starts++
	w, err := NewPythonWorker(a.starts, a.cfg)
	if err != nil {
		return err
	}
	a.w = w
	return nil
}

// Analyze implements pipeline.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, img []byte) ([]types.FaceResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureLocked(); err != nil {
		return nil, err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	w := a.w
	stop := context.AfterFunc(ctx, w.Kill)
	faces, err := w.ProcessFrame(img)
	if !stop() {
		// The worker was killed mid-request; the stream is no longer in sync.
		a.dropLocked("cancelled")
		return nil, fmt.Errorf("analyze: %w", ctx.Err())
	}

	var perFrame *Error
	if err != nil && !errors.As(err, &perFrame) {
		a.dropLocked(err.Error())
		return nil, fmt.Errorf("analyzer crashed: %w: %w", types.ErrDecode, err)
	}
	return faces, err
}

func (a *Analyzer) dropLocked(reason string) {
	w := a.w
	a.w = nil
	w.Kill()
	w.Close()
	logs := ""
	if w.Cmd != nil {
		logs = strings.TrimSpace(w.Cmd.Stderr.String())
	}
	slog.Warn("worker: restarting analyzer", "id", w.ID, "reason", reason, "logs", logs)
}

// Close stops the worker.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w != nil {
		a.w.Close()
		a.w = nil
	}
	return nil
}
