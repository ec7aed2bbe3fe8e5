package pipeline

import (
	"time"

	"github.com/andresmejia3/rollcall/internal/buffer"
)

// Status is a point-in-time view of the controller for the status endpoint and CLI.
type Status struct {
	State     string        `json:"state"`
	RunID     string        `json:"run_id,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Buffer    *buffer.Stats `json:"buffer,omitempty"`
	Processed uint64        `json:"processed"`
	Skipped   uint64        `json:"skipped"`
	Recorded  uint64        `json:"recorded"`
	Known     int           `json:"known"`

	Source        string     `json:"source,omitempty"`
	SourceAttempt int        `json:"source_attempt,omitempty"`
	SourceAt      *time.Time `json:"source_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Status reports the current state, run counters and the last capture event.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: Stopped.String(), Known: len(c.cfg.Known)}

	if r := c.run; r != nil {
		st.State = Running.String()
		st.RunID = r.id
		started := r.started
		st.StartedAt = &started
		stats := r.buf.Stats()
		st.Buffer = &stats
		st.Processed = r.processed.Load()
		st.Skipped = r.skipped.Load()
		st.Recorded = r.recorded.Load()
	}

	if ev := c.lastEvent; ev != nil {
		st.Source = ev.String()
		st.SourceAttempt = ev.Attempt
		at := ev.At
		st.SourceAt = &at
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
