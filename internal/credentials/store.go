// Package credentials manages the cloud transcription API key pool: loading
// keys from the shared database, rotating between them under daily quotas and
// per-key rate spacing, and writing usage counters back. Key encryption is
// owned by the external configuration tool; this package only sees usable
// secrets.
package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Credential is one usable API key with its usage bookkeeping.
type Credential struct {
	ID            int64
	Secret        string
	DailyUsage    int
	LastResetDate time.Time
	LastUsed      time.Time
	Active        bool
}

// Store reads and writes credential rows. It shares the settings database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const dateLayout = "2006-01-02"

// List returns all active credentials ordered by daily usage.
func (s *Store) List(ctx context.Context) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, secret, daily_usage, last_reset_date, COALESCE(last_used, ''), active
         FROM api_keys WHERE active = 1 ORDER BY daily_usage ASC`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		var (
			cred      Credential
			resetDate string
			lastUsed  string
			active    int
		)
		if err := rows.Scan(&cred.ID, &cred.Secret, &cred.DailyUsage, &resetDate, &lastUsed, &active); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		cred.Active = active != 0
		if resetDate != "" {
			if parsed, parseErr := time.Parse(dateLayout, resetDate); parseErr == nil {
				cred.LastResetDate = parsed
			}
		}
		if lastUsed != "" {
			if parsed, parseErr := time.Parse(time.RFC3339Nano, lastUsed); parseErr == nil {
				cred.LastUsed = parsed
			}
		}
		creds = append(creds, &cred)
	}
	return creds, rows.Err()
}

// Add inserts a new active credential and returns its ID.
func (s *Store) Add(ctx context.Context, secret string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (secret, daily_usage, last_reset_date, active) VALUES (?, 0, ?, 1)",
		secret, time.Now().UTC().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("add credential: %w", err)
	}
	return res.LastInsertId()
}

// UpdateUsage writes back the usage counter and last-used timestamp for id.
func (s *Store) UpdateUsage(ctx context.Context, id int64, usage int, resetDate time.Time, lastUsed time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET daily_usage = ?, last_reset_date = ?, last_used = ? WHERE id = ?",
		usage, resetDate.UTC().Format(dateLayout), lastUsed.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update credential usage: %w", err)
	}
	return nil
}
