// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists cache entries in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and its schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl_ns INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache_entries(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_stored_at ON cache_entries(stored_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Load returns the entry stored under key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	var (
		payload  string
		storedAt int64
		ttl      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, stored_at, ttl_ns FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &storedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("loading cache entry: %w", err)
	}

	e := Entry{Key: key, StoredAt: time.Unix(0, storedAt), TTL: time.Duration(ttl)}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cache payload: %w", err)
	}
	return e, true, nil
}

// Save upserts e.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, payload, stored_at, ttl_ns, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			stored_at = excluded.stored_at,
			ttl_ns = excluded.ttl_ns,
			expires_at = excluded.expires_at`,
		e.Key, string(payload), e.StoredAt.UnixNano(), int64(e.TTL), e.ExpiresAt().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose TTL elapsed before now.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
}

// DeleteOlderThan removes entries stored before cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return s.exec(ctx, `DELETE FROM cache_entries WHERE stored_at < ?`, cutoff.UnixNano())
}

func (s *SQLiteStore) exec(ctx context.Context, query string, arg int64) (int, error) {
	res, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("evicting cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting evicted entries: %w", err)
	}
	return int(n), nil
}

// Count returns the number of stored entries, live or expired.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
