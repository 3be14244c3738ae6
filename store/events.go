package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Compile-time interface check.
var _ EventStore = (*SQLiteEventStore)(nil)

// SQLiteEventStore records raw usage events per subject together with a
// per-day aggregation. A quota reset wipes both for the subject.
type SQLiteEventStore struct {
	db *sql.DB
}

// NewSQLiteEventStore opens (or creates) the event tables in the SQLite
// database at dsn. It may share a file with [SQLiteStore].
func NewSQLiteEventStore(dsn string) (*SQLiteEventStore, error) {
	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			subject     TEXT NOT NULL,
			name        TEXT NOT NULL,
			occurred_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_subject ON events (subject)`,
		`CREATE TABLE IF NOT EXISTS event_aggregation (
			subject TEXT NOT NULL,
			name    TEXT NOT NULL,
			bucket  TEXT NOT NULL,
			count   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (subject, name, bucket)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("quota/store: create event tables: %w", err)
		}
	}

	return &SQLiteEventStore{db: db}, nil
}

// Record stores one event for subject and bumps its daily (UTC) aggregate.
func (s *SQLiteEventStore) Record(ctx context.Context, subject, name string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("sqlite begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (subject, name, occurred_at) VALUES (?, ?, ?)`,
		subject, name, at.UnixNano(),
	); err != nil {
		return unavailable("sqlite record event", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_aggregation (subject, name, bucket, count) VALUES (?, ?, ?, 1)
		ON CONFLICT(subject, name, bucket) DO UPDATE SET count = count + 1`,
		subject, name, at.UTC().Format("2006-01-02"),
	); err != nil {
		return unavailable("sqlite aggregate event", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("sqlite commit", err)
	}
	return nil
}

// Count returns the number of raw events held for subject.
func (s *SQLiteEventStore) Count(ctx context.Context, subject string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE subject = ?`, subject,
	).Scan(&n); err != nil {
		return 0, unavailable("sqlite count events", err)
	}
	return n, nil
}

// Aggregate returns the aggregated count of name for subject on the UTC day of at.
func (s *SQLiteEventStore) Aggregate(ctx context.Context, subject, name string, at time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM event_aggregation WHERE subject = ? AND name = ? AND bucket = ?`,
		subject, name, at.UTC().Format("2006-01-02"),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("sqlite aggregate", err)
	}
	return n, nil
}

// DeleteAllForSubject removes every event and aggregate row for subject.
func (s *SQLiteEventStore) DeleteAllForSubject(ctx context.Context, subject string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("sqlite begin", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"event_aggregation", "events"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE subject = ?`, subject); err != nil {
			return unavailable("sqlite delete "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("sqlite commit", err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}
