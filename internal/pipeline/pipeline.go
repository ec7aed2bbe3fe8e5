// Package pipeline runs the capture -> recognize -> record loop and owns its start/stop lifecycle.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/rollcall/internal/buffer"
	"github.com/andresmejia3/rollcall/internal/capture"
	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/google/uuid"
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
	ErrStopTimeout    = errors.New("pipeline did not stop in time")
)

// Analyzer finds faces in a JPEG image and returns their normalized embeddings.
type Analyzer interface {
	Analyze(ctx context.Context, img []byte) ([]types.FaceResult, error)
}

// Recorder persists a sighting.
type Recorder interface {
	RecordSeen(name, timestamp string) error
}

// Annotation is a matched face drawn on the preview.
type Annotation struct {
	Box   [4]int
	Name  string
	Score float64
}

// Renderer shows annotated frames. Render returns true when the user asked to quit.
type Renderer interface {
	Render(frame types.Frame, faces []Annotation) bool
	Close() error
}

// State of the controller.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Options tune a run. Zero values fall back to the defaults below.
type Options struct {
	BufferCapacity int
	PopTimeout     time.Duration
	ProcessEvery   int
	StopTimeout    time.Duration
	RecordUnknown  bool
	Backoff        time.Duration
	MaxReconnects  int
}

const (
	DefaultPopTimeout  = 100 * time.Millisecond
	DefaultStopTimeout = 5 * time.Second
)

// Config wires the controller to its collaborators.
type Config struct {
	// NewSource opens a fresh camera or stream handle for every run.
	NewSource func() (capture.Source, error)
	// NewRenderer is optional. When nil frames are not previewed.
	NewRenderer func() (Renderer, error)

	Analyzer Analyzer
	Matcher  *matcher.Matcher
	Known    []types.KnownIdentity
	Recorder Recorder
	Options  Options
}

// run is everything owned by a single Start..Stop cycle.
type run struct {
	id      string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	buf     *buffer.Buffer
	wg      sync.WaitGroup
	done    chan struct{}

	processed atomic.Uint64
	skipped   atomic.Uint64
	recorded  atomic.Uint64
}

// Controller starts and stops attendance runs. Only one run exists at a time.
type Controller struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	run       *run
	lastDone  chan struct{}
	lastEvent *capture.Event
	lastErr   error
}

// New returns a stopped controller.
func New(cfg Config) *Controller {
	if cfg.Matcher == nil {
		cfg.Matcher = matcher.New(matcher.DefaultThreshold)
	}
	if cfg.Options.PopTimeout <= 0 {
		cfg.Options.PopTimeout = DefaultPopTimeout
	}
	if cfg.Options.StopTimeout <= 0 {
		cfg.Options.StopTimeout = DefaultStopTimeout
	}
	if cfg.Options.ProcessEvery < 1 {
		cfg.Options.ProcessEvery = 1
	}
	return &Controller{cfg: cfg, now: time.Now}
}

// State reports whether a run is active.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return Running
	}
	return Stopped
}

// Start spawns the capture and consume goroutines and returns the run id.
func (c *Controller) Start() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return "", ErrAlreadyRunning
	}

	src, err := c.cfg.NewSource()
	if err != nil {
		return "", err
	}

	var renderer Renderer
	if c.cfg.NewRenderer != nil {
		renderer, err = c.cfg.NewRenderer()
		if err != nil {
			src.Close()
			return "", err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.NewString(),
		started: c.now(),
		ctx:     ctx,
		cancel:  cancel,
		buf:     buffer.New(c.cfg.Options.BufferCapacity),
		done:    make(chan struct{}),
	}

	events := make(chan capture.Event, 16)
	reader := &capture.Reader{
		Source:      src,
		Backoff:     c.cfg.Options.Backoff,
		MaxAttempts: c.cfg.Options.MaxReconnects,
		Events:      events,
	}

	r.wg.Add(3)
	go c.produce(r, reader)
	go c.watch(r, events)
	go c.consume(r, renderer)

	// Clear the run once every goroutine has returned, whoever stopped it.
	go func() {
		r.wg.Wait()
		cancel()
		c.mu.Lock()
		if c.run == r {
			c.run = nil
		}
		c.mu.Unlock()
		close(r.done)
		slog.Info("pipeline: stopped", "run", r.id)
	}()

	c.run = r
	c.lastDone = r.done
	c.lastErr = nil
	slog.Info("pipeline: started", "run", r.id)
	return r.id, nil
}

// Stop cancels the active run and waits for its goroutines to exit.
func (c *Controller) Stop() error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r == nil {
		return ErrNotRunning
	}

	r.cancel()

	timer := time.NewTimer(c.cfg.Options.StopTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-timer.C:
		slog.Error("pipeline: stop timed out", "run", r.id, "timeout", c.cfg.Options.StopTimeout)
		return ErrStopTimeout
	}
}

// Done returns a channel closed when the most recent run ends. It is nil before the first Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDone
}

func (c *Controller) produce(r *run, reader *capture.Reader) {
	defer r.wg.Done()
	if err := reader.Run(r.ctx, r.buf.TryPush); err != nil {
		slog.Error("pipeline: capture failed", "run", r.id, "err", err)
		c.setErr(err)
		// Nothing more will arrive, end the run.
		r.cancel()
	}
}

func (c *Controller) watch(r *run, events <-chan capture.Event) {
	defer r.wg.Done()
	for {
		select {
		case ev := <-events:
			c.setEvent(ev)
		case <-r.ctx.Done():
			// Keep whatever the reader emitted right before exiting
			for {
				select {
				case ev := <-events:
					c.setEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) consume(r *run, renderer Renderer) {
	defer r.wg.Done()
	if renderer != nil {
		defer renderer.Close()
	}

	opts := c.cfg.Options
	popped := 0
	for {
		if r.ctx.Err() != nil {
			return
		}

		frame, ok := r.buf.Pop(r.ctx, opts.PopTimeout)
		if !ok {
			continue
		}

		popped++
		if popped%opts.ProcessEvery != 0 {
			continue
		}

		faces, err := c.cfg.Analyzer.Analyze(r.ctx, frame.Data)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.skipped.Add(1)
			slog.Warn("pipeline: skipping frame", "seq", frame.Seq, "kind", types.Classify(err).String(), "err", err)
			continue
		}
		r.processed.Add(1)

		ts := c.now().Format(types.TimestampLayout)
		annotations := make([]Annotation, 0, len(faces))
		for _, f := range faces {
			name, score := c.cfg.Matcher.Match(f.Vec, c.cfg.Known)
			annotations = append(annotations, Annotation{Box: f.Box, Name: name, Score: score})

			if name == types.Unknown && !opts.RecordUnknown {
				continue
			}
			// A stopped run must not touch the ledger.
			if r.ctx.Err() != nil {
				return
			}
			if err := c.cfg.Recorder.RecordSeen(name, ts); err != nil {
				c.setErr(err)
				slog.Error("pipeline: record failed", "name", name, "kind", types.Classify(err).String(), "err", err)
				continue
			}
			r.recorded.Add(1)
		}

		if renderer != nil && renderer.Render(frame, annotations) {
			slog.Info("pipeline: quit requested from preview", "run", r.id)
			r.cancel()
			return
		}
	}
}

func (c *Controller) setEvent(ev capture.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastEvent = &ev
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
