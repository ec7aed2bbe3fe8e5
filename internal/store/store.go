package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store mirrors the attendance ledger into PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// Sighting is one row of the sighting history.
type Sighting struct {
	Name   string
	SeenAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS attendance (
			name TEXT PRIMARY KEY,
			last_seen TIMESTAMP NOT NULL,
			sightings INT NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS sightings (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			seen_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS sightings_name_idx ON sightings (name, seen_at);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordSeen upserts the last-seen time for the record's name and appends a sighting row.
func (s *Store) RecordSeen(ctx context.Context, rec types.AttendanceRecord) error {
	seenAt, err := time.ParseInLocation(types.TimestampLayout, rec.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("bad timestamp %q: %w", rec.Timestamp, err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// 1. Latest wins, matching the CSV ledger
	_, err = tx.Exec(ctx, `
		INSERT INTO attendance (name, last_seen, sightings)
		VALUES ($1, $2, 1)
		ON CONFLICT (name) DO UPDATE
		SET last_seen = EXCLUDED.last_seen, sightings = attendance.sightings + 1
	`, rec.Name, seenAt)
	if err != nil {
		return err
	}

	// 2. Keep the full history
	if _, err := tx.Exec(ctx, "INSERT INTO sightings (name, seen_at) VALUES ($1, $2)", rec.Name, seenAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Attendance is one row of the attendance table.
type Attendance struct {
	Name      string
	LastSeen  time.Time
	Sightings int
}

// ListAttendance returns every name with its last-seen time, sorted by name.
func (s *Store) ListAttendance(ctx context.Context) ([]Attendance, error) {
	rows, err := s.conn.Query(ctx, "SELECT name, last_seen, sightings FROM attendance ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attendance
	for rows.Next() {
		var a Attendance
		if err := rows.Scan(&a.Name, &a.LastSeen, &a.Sightings); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// History returns the most recent sightings of name, newest first.
func (s *Store) History(ctx context.Context, name string, limit int) ([]Sighting, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, seen_at FROM sightings
		WHERE name = $1
		ORDER BY seen_at DESC, id DESC
		LIMIT $2
	`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		if err := rows.Scan(&sg.Name, &sg.SeenAt); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS sightings CASCADE;
		DROP TABLE IF EXISTS attendance CASCADE;
	`)
	return err
}
