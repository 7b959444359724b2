package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Referral Operations ────────────────────────────────────────────────────

// InsertReferral links referee to referrer. A referee has one referrer.
func (db *DB) InsertReferral(ctx context.Context, referrerID, refereeID string, at time.Time) error {
	if referrerID == refereeID {
		return domain.ErrSelfReferral
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{referrerID, refereeID} {
			if _, err := getUserTx(ctx, tx, id); err != nil {
				return err
			}
		}
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT referrer_id FROM referrals WHERE referee_id = ?`, refereeID).Scan(&existing)
		if err == nil {
			return domain.ErrAlreadyReferred
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO referrals (referee_id, referrer_id, created_at) VALUES (?, ?, ?)`,
			refereeID, referrerID, formatTime(at))
		if isUniqueViolation(err) {
			return domain.ErrAlreadyReferred
		}
		return err
	})
}

// ActiveReferralCount counts referees of referrerID that are mining now.
func (db *DB) ActiveReferralCount(ctx context.Context, referrerID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referrals r
		JOIN mining_sessions m ON m.user_id = r.referee_id
		WHERE r.referrer_id = ? AND m.is_active = 1
	`, referrerID).Scan(&n)
	return n, err
}

// ListReferees returns the users referred by referrerID.
func (db *DB) ListReferees(ctx context.Context, referrerID string) ([]domain.Referral, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT referrer_id, referee_id, created_at FROM referrals WHERE referrer_id = ? ORDER BY created_at, referee_id`,
		referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Referral
	for rows.Next() {
		var (
			r  domain.Referral
			ts string
		)
		if err := rows.Scan(&r.ReferrerID, &r.RefereeID, &ts); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
