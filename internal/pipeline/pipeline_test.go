package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/rollcall/internal/capture"
	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/types"
)

// --- fakes ---

type fakeSource struct {
	limit   int // frames to deliver, -1 for unlimited
	sent    int
	openErr error
	closed  atomic.Bool
}

func (f *fakeSource) Open(ctx context.Context) error { return f.openErr }

func (f *fakeSource) ReadFrame(ctx context.Context) (types.Frame, error) {
	time.Sleep(time.Millisecond)
	if f.limit >= 0 && f.sent >= f.limit {
		return types.Frame{}, capture.ErrNoFrame
	}
	f.sent++
	return types.Frame{Data: []byte{byte(f.sent)}}, nil
}

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeAnalyzer struct {
	faces []types.FaceResult
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, img []byte) ([]types.FaceResult, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.faces, a.err
}

type fakeRecorder struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *fakeRecorder) RecordSeen(name, ts string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.names = append(r.names, name)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

func (r *fakeRecorder) seen(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

type quitRenderer struct {
	after  int
	frames int
	closed atomic.Bool
}

func (q *quitRenderer) Render(frame types.Frame, faces []Annotation) bool {
	q.frames++
	return q.frames >= q.after
}

func (q *quitRenderer) Close() error {
	q.closed.Store(true)
	return nil
}

// --- helpers ---

var bobVec = []float32{1, 0, 0}

func newTestController(src *fakeSource, an *fakeAnalyzer, rec *fakeRecorder, opts Options) *Controller {
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	return New(Config{
		NewSource: func() (capture.Source, error) { return src, nil },
		Analyzer:  an,
		Matcher:   matcher.New(0.5),
		Known:     []types.KnownIdentity{{Name: "Bob", Embedding: bobVec}},
		Recorder:  rec,
		Options:   opts,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// --- tests ---

func TestStartStopStateMachine(t *testing.T) {
	src := &fakeSource{limit: -1}
	c := newTestController(src, &fakeAnalyzer{}, &fakeRecorder{}, Options{})

	if c.State() != Stopped {
		t.Fatalf("New controller should be stopped")
	}
	if err := c.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop while stopped: got %v, want ErrNotRunning", err)
	}

	id, err := c.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if id == "" {
		t.Error("Expected a run id")
	}
	if c.State() != Running {
		t.Errorf("Expected running after Start")
	}
	if _, err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Second Start: got %v, want ErrAlreadyRunning", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c.State() != Stopped {
		t.Errorf("Expected stopped after Stop")
	}
	if !src.closed.Load() {
		t.Error("Source handle was not released by Stop")
	}

	id2, err := c.Start()
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if id2 == id {
		t.Error("Expected a fresh run id on restart")
	}
	c.Stop()
}

func TestRecordsMatchedFaces(t *testing.T) {
	an := &fakeAnalyzer{faces: []types.FaceResult{{Box: [4]int{0, 0, 10, 10}, Vec: bobVec}}}
	rec := &fakeRecorder{}
	c := newTestController(&fakeSource{limit: -1}, an, rec, Options{RecordUnknown: true})

	c.Start()
	waitFor(t, "Bob to be recorded", func() bool { return rec.seen("Bob") })
	c.Stop()

	if rec.seen(types.Unknown) {
		t.Error("Bob's embedding should never produce Unknown")
	}
}

func TestRecordUnknownOption(t *testing.T) {
	stranger := []types.FaceResult{{Vec: []float32{0, 1, 0}}}

	t.Run("recorded when enabled", func(t *testing.T) {
		rec := &fakeRecorder{}
		c := newTestController(&fakeSource{limit: -1}, &fakeAnalyzer{faces: stranger}, rec, Options{RecordUnknown: true})
		c.Start()
		waitFor(t, "Unknown to be recorded", func() bool { return rec.seen(types.Unknown) })
		c.Stop()
	})

	t.Run("skipped when disabled", func(t *testing.T) {
		rec := &fakeRecorder{}
		an := &fakeAnalyzer{faces: stranger}
		c := newTestController(&fakeSource{limit: -1}, an, rec, Options{RecordUnknown: false})
		c.Start()
		waitFor(t, "frames to be analyzed", func() bool { return an.calls.Load() >= 5 })
		c.Stop()
		if rec.count() != 0 {
			t.Errorf("Expected no records, got %d", rec.count())
		}
	})
}

func TestNoLedgerMutationAfterStop(t *testing.T) {
	// Slow analyzer so the buffer still holds frames when Stop is called
	an := &fakeAnalyzer{faces: []types.FaceResult{{Vec: bobVec}}, delay: 20 * time.Millisecond}
	rec := &fakeRecorder{}
	c := newTestController(&fakeSource{limit: -1}, an, rec, Options{RecordUnknown: true})

	c.Start()
	waitFor(t, "a first record", func() bool { return rec.count() > 0 })

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	after := rec.count()
	time.Sleep(100 * time.Millisecond)
	if rec.count() != after {
		t.Errorf("Ledger mutated after Stop: %d -> %d", after, rec.count())
	}
}

func TestProcessEvery(t *testing.T) {
	an := &fakeAnalyzer{}
	c := newTestController(&fakeSource{limit: 6}, an, &fakeRecorder{}, Options{ProcessEvery: 3})

	c.Start()
	waitFor(t, "two analyzed frames", func() bool { return an.calls.Load() == 2 })
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	if got := an.calls.Load(); got != 2 {
		t.Errorf("Expected 2 analyzed frames out of 6, got %d", got)
	}
}

func TestAnalyzerErrorsSkipFrame(t *testing.T) {
	an := &fakeAnalyzer{err: fmt.Errorf("bad jpeg: %w", types.ErrDecode)}
	c := newTestController(&fakeSource{limit: -1}, an, &fakeRecorder{}, Options{})

	c.Start()
	waitFor(t, "skipped frames", func() bool { return c.Status().Skipped >= 3 })
	if c.State() != Running {
		t.Error("Decode errors should not stop the pipeline")
	}
	c.Stop()
}

func TestPersistenceErrorKeepsRunning(t *testing.T) {
	an := &fakeAnalyzer{faces: []types.FaceResult{{Vec: bobVec}}}
	rec := &fakeRecorder{err: fmt.Errorf("disk full: %w", types.ErrPersistence)}
	c := newTestController(&fakeSource{limit: -1}, an, rec, Options{})

	c.Start()
	waitFor(t, "persistence error in status", func() bool { return c.Status().LastError != "" })
	if c.State() != Running {
		t.Error("Persistence errors should not stop the pipeline")
	}
	c.Stop()
}

func TestQuitFromRenderer(t *testing.T) {
	renderer := &quitRenderer{after: 3}
	c := New(Config{
		NewSource:   func() (capture.Source, error) { return &fakeSource{limit: -1}, nil },
		NewRenderer: func() (Renderer, error) { return renderer, nil },
		Analyzer:    &fakeAnalyzer{},
		Recorder:    &fakeRecorder{},
	})

	c.Start()
	done := c.Done()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Quit key did not stop the run")
	}
	if c.State() != Stopped {
		t.Error("Expected stopped after quit")
	}
	if !renderer.closed.Load() {
		t.Error("Renderer was not closed")
	}
	if err := c.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop after quit: got %v, want ErrNotRunning", err)
	}
}

func TestCaptureFailureEndsRun(t *testing.T) {
	src := &fakeSource{openErr: fmt.Errorf("no camera: %w", types.ErrDeviceUnavailable)}
	c := newTestController(src, &fakeAnalyzer{}, &fakeRecorder{}, Options{MaxReconnects: 2})

	c.Start()
	done := c.Done()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not end after reconnects were exhausted")
	}

	st := c.Status()
	if st.State != "stopped" {
		t.Errorf("Expected stopped, got %s", st.State)
	}
	if st.LastError == "" {
		t.Error("Expected the capture failure in status")
	}
	if st.Source == "" || st.SourceAttempt != 3 {
		t.Errorf("Expected the failed event in status, got %q attempt %d", st.Source, st.SourceAttempt)
	}
}

func TestStartSourceError(t *testing.T) {
	c := New(Config{
		NewSource: func() (capture.Source, error) { return nil, errors.New("bad config") },
		Analyzer:  &fakeAnalyzer{},
		Recorder:  &fakeRecorder{},
	})
	if _, err := c.Start(); err == nil {
		t.Fatal("Expected Start to fail")
	}
	if c.State() != Stopped {
		t.Error("Failed Start must leave the controller stopped")
	}
}
