// Package ledger persists the request log: one append-only row per
// processed question, which doubles as the usage ledger for the per-user
// quota window.
//
// Rows are created exactly once by the answer worker after the model call
// resolves, never mutated, and never deleted here — retention is an
// operational concern. Read-committed visibility is sufficient for the
// windowed count queries; see the admission package for the accepted race
// at the quota boundary.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one row of the request_logs table.
type Entry struct {
	ID           int64
	Timestamp    time.Time
	UserID       string
	Question     string
	Answer       string // empty on failure
	InputTokens  int
	OutputTokens int
	Succeeded    bool
	ErrorMessage string // empty on success
}

// Store manages request log persistence.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Append inserts a new request log entry and returns it with the
// storage-assigned id and timestamp filled in. A zero e.Timestamp defaults
// to now (UTC) on the database side.
func (s *Store) Append(ctx context.Context, e Entry) (Entry, error) {
	var answer, errMsg *string
	if e.Answer != "" {
		answer = &e.Answer
	}
	if e.ErrorMessage != "" {
		errMsg = &e.ErrorMessage
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO request_logs
		   (user_id, question, answer, input_tokens, output_tokens, succeeded, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, timestamp`,
		e.UserID, e.Question, answer, e.InputTokens, e.OutputTokens, e.Succeeded, errMsg)

	if err := row.Scan(&e.ID, &e.Timestamp); err != nil {
		return Entry{}, fmt.Errorf("appending request log entry: %w", err)
	}

	s.logger.Debug("request log entry appended",
		"id", e.ID,
		"user", e.UserID,
		"succeeded", e.Succeeded,
	)
	return e, nil
}

// CountSince returns how many entries exist for userID with a timestamp at
// or after since. Counts both successful and failed requests — failures
// consume quota.
func (s *Store) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM request_logs
		 WHERE user_id = $1 AND timestamp >= $2`,
		userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting request log entries for user %s: %w", userID, err)
	}
	return count, nil
}

// RecentForUser returns the newest entries for a user, most recent first.
// Used by operational tooling, not by the admission path.
func (s *Store) RecentForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, user_id, question,
		        COALESCE(answer, ''), input_tokens, output_tokens,
		        succeeded, COALESCE(error_message, '')
		 FROM request_logs
		 WHERE user_id = $1
		 ORDER BY timestamp DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing request log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.Question,
			&e.Answer, &e.InputTokens, &e.OutputTokens,
			&e.Succeeded, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning request log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating request log rows: %w", err)
	}

	return entries, nil
}
