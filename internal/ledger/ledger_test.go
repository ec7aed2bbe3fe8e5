package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/andresmejia3/rollcall/internal/types"
)

type captureSink struct {
	mu   sync.Mutex
	recs []types.AttendanceRecord
}

func (c *captureSink) Publish(rec types.AttendanceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func TestRecordSeenOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recognized_faces.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := l.RecordSeen("Alice", "2024-01-01 09:00:00"); err != nil {
		t.Fatalf("RecordSeen failed: %v", err)
	}
	if err := l.RecordSeen("Alice", "2024-01-01 09:05:00"); err != nil {
		t.Fatalf("RecordSeen failed: %v", err)
	}

	snap := l.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(snap))
	}
	if snap[0].Timestamp != "2024-01-01 09:05:00" {
		t.Errorf("Expected latest timestamp, got %s", snap[0].Timestamp)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "Name,Timestamp\nAlice,2024-01-01 09:05:00\n"
	if string(data) != want {
		t.Errorf("File content = %q, want %q", string(data), want)
	}
}

func TestRowsSortedByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	l, _ := Open(path)

	l.RecordSeen("Carol", "2024-01-01 10:00:00")
	l.RecordSeen("Alice", "2024-01-01 10:00:01")
	l.RecordSeen(types.Unknown, "2024-01-01 10:00:02")
	l.RecordSeen("Bob", "2024-01-01 10:00:03")

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	names := make([]string, len(got))
	for i, r := range got {
		names[i] = r.Name
	}
	if strings.Join(names, ",") != "Alice,Bob,Carol,Unknown" {
		t.Errorf("Unexpected order: %v", names)
	}
}

func TestOpenLoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.csv")
	content := "Name,Timestamp\nBob,2024-02-02 08:00:00\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("Expected 1 loaded entry, got %d", l.Len())
	}

	l.RecordSeen("Alice", "2024-02-02 08:01:00")
	if l.Len() != 2 {
		t.Errorf("Expected loaded entry to survive a new write, got %d entries", l.Len())
	}
}

func TestPersistenceFailureIsClassified(t *testing.T) {
	// The parent directory does not exist, so the temp file cannot be created.
	path := filepath.Join(t.TempDir(), "missing", "out.csv")
	sink := &captureSink{}
	l, err := Open(path, sink)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err = l.RecordSeen("Alice", "2024-01-01 09:00:00")
	if err == nil {
		t.Fatal("Expected an error writing into a missing directory")
	}
	if !errors.Is(err, types.ErrPersistence) {
		t.Errorf("Expected ErrPersistence, got %v", err)
	}
	if types.Classify(err) != types.KindPersistence {
		t.Errorf("Expected KindPersistence, got %v", types.Classify(err))
	}
	if len(sink.recs) != 0 {
		t.Errorf("Sink should not see records that failed to persist")
	}
}

func TestSinksReceivePersistedRecords(t *testing.T) {
	sink := &captureSink{}
	l, _ := Open(filepath.Join(t.TempDir(), "out.csv"))
	l.AddSink(sink)

	l.RecordSeen("Alice", "2024-01-01 09:00:00")
	l.RecordSeen("Bob", "2024-01-01 09:00:01")

	if len(sink.recs) != 2 || sink.recs[1].Name != "Bob" {
		t.Errorf("Unexpected sink records %+v", sink.recs)
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	l, _ := Open(filepath.Join(dir, "out.csv"))
	for i := 0; i < 5; i++ {
		l.RecordSeen("Alice", "2024-01-01 09:00:00")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the ledger file, found %v", names)
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	l, _ := Open(path)
	l.RecordSeen("Alice", "2024-01-01 09:00:00")

	if err := l.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Expected empty ledger after reset")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected file removed, stat err = %v", err)
	}
	// Resetting twice is fine
	if err := l.Reset(); err != nil {
		t.Errorf("Second reset failed: %v", err)
	}
}
