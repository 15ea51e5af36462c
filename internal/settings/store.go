// Package settings provides the runtime-mutable settings store shared by the
// service and helper processes. Values are JSON-encoded in SQLite so the
// external configuration tool can edit them without understanding Go types.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store manages settings persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE TABLE IF NOT EXISTS api_keys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    secret TEXT NOT NULL,
    daily_usage INTEGER NOT NULL DEFAULT 0,
    last_reset_date TEXT NOT NULL,
    last_used TEXT,
    active INTEGER NOT NULL DEFAULT 1
);
`

// Open initializes or connects to the settings database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for sibling stores sharing the database.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Set stores a JSON-encoded value under key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value,
             updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		key, string(encoded))
	if err != nil {
		return fmt.Errorf("store setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) raw(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// GetBool returns the boolean stored under key, or fallback when absent or
// unreadable.
func (s *Store) GetBool(ctx context.Context, key string, fallback bool) bool {
	raw, ok, err := s.raw(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var value bool
	if json.Unmarshal([]byte(raw), &value) != nil {
		return fallback
	}
	return value
}

// GetInt returns the integer stored under key, or fallback.
func (s *Store) GetInt(ctx context.Context, key string, fallback int) int {
	raw, ok, err := s.raw(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var value int
	if json.Unmarshal([]byte(raw), &value) != nil {
		return fallback
	}
	return value
}

// GetFloat returns the float stored under key, or fallback.
func (s *Store) GetFloat(ctx context.Context, key string, fallback float64) float64 {
	raw, ok, err := s.raw(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var value float64
	if json.Unmarshal([]byte(raw), &value) != nil {
		return fallback
	}
	return value
}

// GetString returns the string stored under key, or fallback.
func (s *Store) GetString(ctx context.Context, key string, fallback string) string {
	raw, ok, err := s.raw(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	var value string
	if json.Unmarshal([]byte(raw), &value) != nil {
		return fallback
	}
	return value
}
