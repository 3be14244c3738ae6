package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time interface checks.
var (
	_ Store    = (*SQLiteStore)(nil)
	_ Consumer = (*SQLiteStore)(nil)
)

// SQLiteStore is a persistent Store backed by SQLite. Expiry is stored as a
// unix-nanosecond deadline per key (0 for none) and enforced on read.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initialises the schema. Use ":memory:" for an in-memory SQLite database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS quota_entries (
			key        TEXT PRIMARY KEY,
			value      INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("quota/store: create table: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// openSQLite opens dsn with a single connection so that ":memory:" databases
// are shared by every query and writers are serialised.
func openSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("quota/store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SetClock replaces the time source used for expiry. Call it before the
// store is shared.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) read(ctx context.Context, q querier, key string) (value, expiresAt int64, ok bool, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT value, expires_at FROM quota_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if expiresAt > 0 && expiresAt <= s.now().UnixNano() {
		return 0, 0, false, nil
	}
	return value, expiresAt, true, nil
}

func (s *SQLiteStore) write(ctx context.Context, q querier, key string, value, expiresAt int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO quota_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	return err
}

// Get returns the value stored at key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (int64, bool, error) {
	value, _, ok, err := s.read(ctx, s.db, key)
	if err != nil {
		return 0, false, unavailable("sqlite get", err)
	}
	return value, ok, nil
}

// Put stores value at key with the given ttl (zero for no expiry).
func (s *SQLiteStore) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}
	if err := s.write(ctx, s.db, key, value, expiresAt); err != nil {
		return unavailable("sqlite put", err)
	}
	return nil
}

// Has reports whether key holds a live value.
func (s *SQLiteStore) Has(ctx context.Context, key string) (bool, error) {
	_, _, ok, err := s.read(ctx, s.db, key)
	if err != nil {
		return false, unavailable("sqlite has", err)
	}
	return ok, nil
}

// Increment atomically adds one to the value at key.
func (s *SQLiteStore) Increment(ctx context.Context, key string) (int64, bool, error) {
	return s.addTx(ctx, key, 1)
}

// Decrement atomically subtracts one from the value at key.
func (s *SQLiteStore) Decrement(ctx context.Context, key string) (int64, bool, error) {
	return s.addTx(ctx, key, -1)
}

func (s *SQLiteStore) addTx(ctx context.Context, key string, delta int64) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, unavailable("sqlite begin", err)
	}
	defer tx.Rollback()

	value, ok, err := s.add(ctx, tx, key, delta)
	if err != nil {
		return 0, false, unavailable("sqlite add", err)
	}
	if !ok {
		return 0, false, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, false, unavailable("sqlite commit", err)
	}
	return value, true, nil
}

// add applies delta to a live row inside tx, keeping its expiry. Absent and
// expired rows are left alone.
func (s *SQLiteStore) add(ctx context.Context, tx *sql.Tx, key string, delta int64) (int64, bool, error) {
	value, expiresAt, ok, err := s.read(ctx, tx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	value += delta
	if err := s.write(ctx, tx, key, value, expiresAt); err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quota_entries WHERE key = ?`, key); err != nil {
		return unavailable("sqlite delete", err)
	}
	return nil
}

// Consume checks and updates all counters in one transaction.
func (s *SQLiteStore) Consume(ctx context.Context, counters []Counter) (Consumed, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Consumed{}, unavailable("sqlite begin", err)
	}
	defer tx.Rollback()

	res := Consumed{Remaining: make([]int64, len(counters)), Blocked: -1}
	for i, c := range counters {
		_, _, hasUsed, err := s.read(ctx, tx, c.UsedKey)
		if err != nil {
			return Consumed{}, unavailable("sqlite consume", err)
		}
		value, _, hasRemaining, err := s.read(ctx, tx, c.RemainingKey)
		if err != nil {
			return Consumed{}, unavailable("sqlite consume", err)
		}
		res.Remaining[i] = value
		if res.Blocked >= 0 {
			continue
		}
		switch {
		case !hasUsed || !hasRemaining:
			res.Blocked, res.Missing = i, true
		case value <= 0:
			res.Blocked = i
		}
	}
	if !res.Applied() {
		return res, nil
	}

	for i, c := range counters {
		if _, _, err := s.add(ctx, tx, c.UsedKey, 1); err != nil {
			return Consumed{}, unavailable("sqlite consume", err)
		}
		if res.Remaining[i], _, err = s.add(ctx, tx, c.RemainingKey, -1); err != nil {
			return Consumed{}, unavailable("sqlite consume", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Consumed{}, unavailable("sqlite commit", err)
	}
	return res, nil
}

// PurgeExpired deletes rows whose expiry has passed and returns how many
// were removed. Reads already ignore such rows; this only reclaims space.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM quota_entries WHERE expires_at > 0 AND expires_at <= ?`,
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, unavailable("sqlite purge", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
