// Package ledger keeps the last time each identity was seen and mirrors it to a CSV file.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/andresmejia3/rollcall/internal/types"
)

var header = []string{"Name", "Timestamp"}

// Sink receives every record after it has been persisted.
// Publish must not block.
type Sink interface {
	Publish(rec types.AttendanceRecord)
}

// Ledger maps names to their latest timestamp.
type Ledger struct {
	path  string
	sinks []Sink

	mu      sync.RWMutex
	entries map[string]string
}

// Open creates a ledger backed by path. Rows already in the file are loaded.
func Open(path string, sinks ...Sink) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		sinks:   sinks,
		entries: make(map[string]string),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	records, err := readRecords(f)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	for _, r := range records {
		l.entries[r.Name] = r.Timestamp
	}
	return l, nil
}

// AddSink registers another sink. Not safe to call while records are being written.
func (l *Ledger) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

// Path is the CSV file the ledger writes to.
func (l *Ledger) Path() string { return l.path }

// RecordSeen upserts name with timestamp and rewrites the file.
// On a write failure the in-memory entry is kept and an ErrPersistence error is returned.
func (l *Ledger) RecordSeen(name, timestamp string) error {
	l.mu.Lock()
	l.entries[name] = timestamp
	rows := l.sortedLocked()
	err := l.writeLocked(rows)
	l.mu.Unlock()

	if err != nil {
		return err
	}

	rec := types.AttendanceRecord{Name: name, Timestamp: timestamp}
	for _, s := range l.sinks {
		s.Publish(rec)
	}
	return nil
}

// Snapshot returns every record sorted by name.
func (l *Ledger) Snapshot() []types.AttendanceRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedLocked()
}

// Len is the number of distinct names recorded.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset clears all entries and removes the file.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]string)
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w: %w", l.path, types.ErrPersistence, err)
	}
	return nil
}

func (l *Ledger) sortedLocked() []types.AttendanceRecord {
	rows := make([]types.AttendanceRecord, 0, len(l.entries))
	for name, ts := range l.entries {
		rows = append(rows, types.AttendanceRecord{Name: name, Timestamp: ts})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

// writeLocked writes to a temp file in the same directory and renames it over the target,
// so readers only ever see a complete file.
func (l *Ledger) writeLocked(rows []types.AttendanceRecord) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w: %w", types.ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if err := WriteRecords(tmp, rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w: %w", types.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp ledger: %w: %w", types.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		slog.Warn("ledger: rename failed", "path", l.path, "err", err)
		return fmt.Errorf("replace %s: %w: %w", l.path, types.ErrPersistence, err)
	}
	return nil
}

// WriteRecords writes the header and rows as CSV.
func WriteRecords(w io.Writer, rows []types.AttendanceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Name, r.Timestamp}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFile loads the records stored at path without opening a Ledger.
func ReadFile(path string) ([]types.AttendanceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRecords(f)
}

func readRecords(r io.Reader) ([]types.AttendanceRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []types.AttendanceRecord
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == header[0] {
				continue
			}
		}
		if len(row) < 2 || row[0] == "" {
			continue
		}
		out = append(out, types.AttendanceRecord{Name: row[0], Timestamp: row[1]})
	}
	return out, nil
}
