package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Mining Session Operations ──────────────────────────────────────────────

// SaveSession upserts the user's session with absolute timestamps.
func (db *DB) SaveSession(ctx context.Context, userID string, s domain.MiningSession) error {
	active := 0
	if s.IsActive {
		active = 1
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO mining_sessions (user_id, session_id, is_active, started_at, ends_at, last_tick_at, accrued, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_id   = excluded.session_id,
			is_active    = excluded.is_active,
			started_at   = excluded.started_at,
			ends_at      = excluded.ends_at,
			last_tick_at = excluded.last_tick_at,
			accrued      = excluded.accrued,
			updated_at   = excluded.updated_at
	`, userID, s.ID, active, formatNullTime(s.StartedAt), formatNullTime(s.EndsAt),
		formatNullTime(s.LastTickAt), s.Accrued, formatTime(time.Now()))
	return err
}

// LoadSession returns the stored session, or the idle session.
func (db *DB) LoadSession(ctx context.Context, userID string) (domain.MiningSession, error) {
	var (
		s                       domain.MiningSession
		active                  int
		started, ends, lastTick sql.NullString
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT session_id, is_active, started_at, ends_at, last_tick_at, accrued
		FROM mining_sessions WHERE user_id = ?
	`, userID).Scan(&s.ID, &active, &started, &ends, &lastTick, &s.Accrued)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MiningSession{}, nil
	}
	if err != nil {
		return domain.MiningSession{}, err
	}
	s.IsActive = active == 1
	if s.StartedAt, err = parseNullTime(started); err != nil {
		return domain.MiningSession{}, fmt.Errorf("parse started_at: %w", err)
	}
	if s.EndsAt, err = parseNullTime(ends); err != nil {
		return domain.MiningSession{}, fmt.Errorf("parse ends_at: %w", err)
	}
	if s.LastTickAt, err = parseNullTime(lastTick); err != nil {
		return domain.MiningSession{}, fmt.Errorf("parse last_tick_at: %w", err)
	}
	return s, nil
}

// ActiveSessionUsers lists users with an active session.
func (db *DB) ActiveSessionUsers(ctx context.Context) ([]string, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT user_id FROM mining_sessions WHERE is_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
