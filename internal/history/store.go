// Package history persists a local log of notification attempts in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one recorded notification attempt.
type Entry struct {
	ID           string
	Profile      string
	Title        string
	KeywordCount int
	Signed       bool
	Status       string // "sent" or "failed"
	Error        string
	CreatedAt    time.Time
}

// Statuses recorded for entries.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Store wraps the send-history database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS send_log (
  id            TEXT PRIMARY KEY,
  profile       TEXT,
  title         TEXT NOT NULL,
  keyword_count INTEGER NOT NULL DEFAULT 0,
  signed        INTEGER NOT NULL DEFAULT 0,
  status        TEXT NOT NULL,
  last_error    TEXT,
  created_at    TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS send_log_created_at_idx ON send_log(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap history schema: %w", err)
		}
	}
	return nil
}

// Record inserts an attempt. A missing ID or CreatedAt is filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	signed := 0
	if e.Signed {
		signed = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO send_log (id, profile, title, keyword_count, signed, status, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Profile, e.Title, e.KeywordCount, signed, e.Status, e.Error,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile, title, keyword_count, signed, status, last_error, created_at
		 FROM send_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query send history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var signed int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Profile, &e.Title, &e.KeywordCount, &signed, &e.Status, &e.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan send history row: %w", err)
		}
		e.Signed = signed != 0
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate send history: %w", err)
	}
	return entries, nil
}
