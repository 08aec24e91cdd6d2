package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planner/pkg/session"
)

// ErrNotFound is returned when a requested session snapshot does not exist.
var ErrNotFound = errors.New("session snapshot not found")

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ID          string
	CurrentStep session.Step
	Completed   bool
	UpdatedAt   time.Time
}

// SaveSession upserts the session's snapshot.
func (d *DB) SaveSession(ctx context.Context, s *session.Session) error {
	snapshot, err := s.ExportJSON()
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO sessions (id, current_step, completed, updated_at, snapshot)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_step = excluded.current_step,
			completed    = excluded.completed,
			updated_at   = excluded.updated_at,
			snapshot     = excluded.snapshot`,
		s.ID, string(s.CurrentStep), boolToInt(s.Completed),
		s.UpdatedAt.UTC().Format(time.RFC3339Nano), string(snapshot),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	d.logger.Debug("saved session %s at %s", s.ID, s.CurrentStep)
	return nil
}

// LoadSession reads and reconstructs a session by id. Snapshot validation
// applies: missing mandatory fields fail the load.
func (d *DB) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	var snapshot string
	err := d.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE id = ?`, id,
	).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session.RestoreJSON([]byte(snapshot))
}

// ListSessions returns summaries of all stored sessions, most recently
// updated first.
func (d *DB) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, current_step, completed, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []SessionSummary
	for rows.Next() {
		var (
			summary   SessionSummary
			step      string
			completed int
			updatedAt string
		)
		if err := rows.Scan(&summary.ID, &step, &completed, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		summary.CurrentStep = session.Step(step)
		summary.Completed = completed != 0
		if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
			summary.UpdatedAt = ts
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return summaries, nil
}

// DeleteSession removes a stored session. Deleting a missing id is not an
// error.
func (d *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
