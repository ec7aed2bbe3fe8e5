package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/rollcall/internal/config"
	"github.com/andresmejia3/rollcall/internal/known"
	"github.com/andresmejia3/rollcall/internal/matcher"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/spf13/cobra"
)

func parseServe(t *testing.T, args ...string) (*cobra.Command, ServeOptions) {
	t.Helper()
	var o ServeOptions
	c := &cobra.Command{Use: "serve"}
	bindServeFlags(c, &o)
	if err := c.ParseFlags(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return c, o
}

func TestApplyServeFlagsOnlyOverridesChanged(t *testing.T) {
	cfg := config.Default()
	cfg.Matcher.Threshold = 0.42
	cfg.LedgerPath = "from-file.csv"

	c, o := parseServe(t, "--listen", ":9000", "--process-every", "3")
	if err := applyServeFlags(c, cfg, o); err != nil {
		t.Fatalf("applyServeFlags: %v", err)
	}

	if cfg.Listen != ":9000" || cfg.Pipeline.ProcessEvery != 3 {
		t.Errorf("Flags not applied: listen=%s every=%d", cfg.Listen, cfg.Pipeline.ProcessEvery)
	}
	// Untouched flags must not reset file values to flag defaults
	if cfg.Matcher.Threshold != 0.42 {
		t.Errorf("Expected file threshold kept, got %v", cfg.Matcher.Threshold)
	}
	if cfg.LedgerPath != "from-file.csv" {
		t.Errorf("Expected file ledger path kept, got %s", cfg.LedgerPath)
	}
}

func TestApplyServeFlagsURLImpliesStream(t *testing.T) {
	cfg := config.Default()
	c, o := parseServe(t, "--url", "rtsp://cam/1", "--record-unknown=false")
	if err := applyServeFlags(c, cfg, o); err != nil {
		t.Fatalf("applyServeFlags: %v", err)
	}
	if cfg.Source.Kind != "stream" || cfg.Source.URL != "rtsp://cam/1" {
		t.Errorf("Expected stream source, got %+v", cfg.Source)
	}
	if cfg.Pipeline.RecordUnknown {
		t.Error("Expected record_unknown disabled")
	}
}

func TestApplyServeFlagsValidates(t *testing.T) {
	cfg := config.Default()
	c, o := parseServe(t, "--source", "stream")
	if err := applyServeFlags(c, cfg, o); err == nil {
		t.Fatal("Expected an error for a stream source without a url")
	}

	cfg = config.Default()
	c, o = parseServe(t, "--threshold", "1.5")
	if err := applyServeFlags(c, cfg, o); err == nil {
		t.Fatal("Expected an error for an out of range threshold")
	}
}

func TestControllerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Source.ReconnectInterval = 3 * time.Second
	cfg.Source.MaxReconnects = 4
	cfg.Matcher.Threshold = 0.6
	cfg.Pipeline.RecordUnknown = false

	pc := controllerConfig(cfg, nil, nil, nil)

	if pc.Matcher.Threshold != 0.6 {
		t.Errorf("threshold: got %v", pc.Matcher.Threshold)
	}
	if pc.Options.Backoff != 3*time.Second || pc.Options.MaxReconnects != 4 {
		t.Errorf("reconnect options not mapped: %+v", pc.Options)
	}
	if pc.Options.RecordUnknown {
		t.Error("record_unknown not mapped")
	}
	if pc.NewRenderer != nil {
		t.Error("Renderer should be nil without preview")
	}

	src, err := pc.NewSource()
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src == nil {
		t.Fatal("Expected a source")
	}
}

func TestLargestFace(t *testing.T) {
	faces := []types.FaceResult{
		{Box: [4]int{0, 0, 10, 10}},
		{Box: [4]int{0, 0, 30, 20}},
		{Box: [4]int{5, 5, 20, 20}},
	}
	if got := largestFace(faces); got.Box != faces[1].Box {
		t.Errorf("Expected the 30x20 face, got %v", got.Box)
	}
}

func TestPrintMatches(t *testing.T) {
	ids := []types.KnownIdentity{{Name: "Bob", Embedding: []float32{1, 0}}}
	faces := []types.FaceResult{
		{Box: [4]int{1, 2, 3, 4}, Vec: []float32{1, 0}},
		{Box: [4]int{5, 6, 7, 8}, Vec: []float32{0, 1}},
	}

	var out bytes.Buffer
	printMatches(&out, matcher.New(0.5), faces, ids)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header, rule and 2 rows, got:\n%s", out.String())
	}
	if !strings.Contains(lines[2], "Bob") || !strings.Contains(lines[2], "1.00") {
		t.Errorf("Expected Bob with 1.00, got %q", lines[2])
	}
	if !strings.Contains(lines[3], types.Unknown) {
		t.Errorf("Expected Unknown, got %q", lines[3])
	}
}

func TestPrintLedger(t *testing.T) {
	var out bytes.Buffer
	printLedger(&out, nil)
	if !strings.Contains(out.String(), "No attendance") {
		t.Errorf("Unexpected empty output %q", out.String())
	}

	out.Reset()
	printLedger(&out, []types.AttendanceRecord{
		{Name: "Alice", Timestamp: "2024-05-01 09:00:00"},
		{Name: "Bob", Timestamp: "2024-05-01 09:05:00"},
	})
	if !strings.Contains(out.String(), "Alice") || !strings.Contains(out.String(), "2024-05-01 09:05:00") {
		t.Errorf("Unexpected table:\n%s", out.String())
	}
}

func TestPrintKnown(t *testing.T) {
	var out bytes.Buffer
	printKnown(&out, known.Result{
		Identities: []types.KnownIdentity{{Name: "Alice", Embedding: make([]float32, 512)}},
		Skipped:    []known.Skipped{{File: "/faces/Carol.jpg", Reason: "no face detected"}},
	})
	s := out.String()
	if !strings.Contains(s, "Alice") || !strings.Contains(s, "512") {
		t.Errorf("Missing identity row:\n%s", s)
	}
	if !strings.Contains(s, "Carol.jpg") || !strings.Contains(s, "no face detected") {
		t.Errorf("Missing skipped row:\n%s", s)
	}
}
