// Package sqlite archives finished session snapshots in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/bidstage/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/bidstage/internal/services/bidding/session"
	"github.com/louisbranch/bidstage/internal/services/bidding/storage"
	"github.com/louisbranch/bidstage/internal/services/bidding/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed persistence for session snapshots.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens the archive at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSnapshot stores snap, replacing any earlier copy of the same session.
func (s *Store) PutSnapshot(ctx context.Context, snap session.Snapshot) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snap.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(snap.SubmissionID) == "" {
		return fmt.Errorf("submission id is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	endedAt := snap.EndedAt
	if endedAt.IsZero() {
		endedAt = s.now()
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO session_archive (
	session_id, submission_id, winner, highest_bid, message_count, snapshot_json, ended_at, archived_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	submission_id = excluded.submission_id,
	winner = excluded.winner,
	highest_bid = excluded.highest_bid,
	message_count = excluded.message_count,
	snapshot_json = excluded.snapshot_json,
	ended_at = excluded.ended_at,
	archived_at = excluded.archived_at
`,
		snap.SessionID,
		snap.SubmissionID,
		snap.Winner,
		snap.Ledger.Highest,
		len(snap.Messages),
		string(payload),
		toMillis(endedAt),
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the most recently ended snapshot of a submission.
func (s *Store) GetSnapshot(ctx context.Context, submissionID string) (session.Snapshot, error) {
	if s == nil || s.sqlDB == nil {
		return session.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT snapshot_json FROM session_archive
WHERE submission_id = ?
ORDER BY ended_at DESC
LIMIT 1
`, strings.TrimSpace(submissionID))
	return scanSnapshot(row)
}

// GetSession returns the archived snapshot of one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Snapshot, error) {
	if s == nil || s.sqlDB == nil {
		return session.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT snapshot_json FROM session_archive WHERE session_id = ?`, strings.TrimSpace(sessionID))
	return scanSnapshot(row)
}

// Summary is the indexed part of an archived session.
type Summary struct {
	SessionID    string
	SubmissionID string
	Winner       string
	HighestBid   int
	Messages     int
	EndedAt      time.Time
}

// ListRecent returns up to limit archived sessions, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, submission_id, winner, highest_bid, message_count, ended_at
FROM session_archive
ORDER BY ended_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary Summary
			endedAt int64
		)
		if err := rows.Scan(
			&summary.SessionID,
			&summary.SubmissionID,
			&summary.Winner,
			&summary.HighestBid,
			&summary.Messages,
			&endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot summary: %w", err)
		}
		summary.EndedAt = fromMillis(endedAt)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

func scanSnapshot(row *sql.Row) (session.Snapshot, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Snapshot{}, storage.ErrNotFound
		}
		return session.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

var _ session.Archive = (*Store)(nil)
