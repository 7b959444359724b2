package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Collectible Operations ─────────────────────────────────────────────────

const collectibleColumns = `id, user_id, name, mining_rate, mining_time, reward_multiplier, special,
	duration_hours, activated_at, expires_at, created_at`

func scanCollectible(row rowScanner) (*domain.Collectible, error) {
	var (
		c                  domain.Collectible
		activated, expires sql.NullString
		createdAt          string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Name,
		&c.Boosts.MiningRate, &c.Boosts.MiningTime, &c.Boosts.RewardMultiplier, &c.Boosts.Special,
		&c.DurationHours, &activated, &expires, &createdAt)
	if err != nil {
		return nil, notFound(err, domain.ErrCollectibleNotFound)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if activated.Valid {
		t, err := parseTime(activated.String)
		if err != nil {
			return nil, fmt.Errorf("parse activated_at: %w", err)
		}
		c.ActivatedAt = &t
	}
	if expires.Valid {
		t, err := parseTime(expires.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
		c.ExpiresAt = &t
	}
	return &c, nil
}

// InsertCollectible stores a new, inactive collectible.
func (db *DB) InsertCollectible(ctx context.Context, c domain.Collectible) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO collectibles (id, user_id, name, mining_rate, mining_time, reward_multiplier, special, duration_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.Boosts.MiningRate, c.Boosts.MiningTime, c.Boosts.RewardMultiplier,
		c.Boosts.Special, c.DurationHours, formatTime(c.CreatedAt))
	return err
}

// GetCollectible retrieves a collectible.
func (db *DB) GetCollectible(ctx context.Context, id string) (*domain.Collectible, error) {
	return scanCollectible(db.db.QueryRowContext(ctx,
		`SELECT `+collectibleColumns+` FROM collectibles WHERE id = ?`, id))
}

// ListCollectibles returns a user's collectibles, oldest first.
func (db *DB) ListCollectibles(ctx context.Context, userID string) ([]domain.Collectible, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+collectibleColumns+` FROM collectibles WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Collectible
	for rows.Next() {
		c, err := scanCollectible(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ActivateCollectible starts a collectible's boost window at `at` when the
// user has a free slot.
func (db *DB) ActivateCollectible(ctx context.Context, id string, at time.Time, maxActive int) (*domain.Collectible, error) {
	var out *domain.Collectible
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanCollectible(tx.QueryRowContext(ctx,
			`SELECT `+collectibleColumns+` FROM collectibles WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if c.ActivatedAt != nil {
			if c.IsActive(at) {
				return domain.ErrCollectibleActive
			}
			return domain.ErrCollectibleExpired
		}

		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM collectibles
			WHERE user_id = ? AND activated_at IS NOT NULL AND expires_at > ?
		`, c.UserID, formatTime(at)).Scan(&active); err != nil {
			return err
		}
		if active >= maxActive {
			return domain.ErrNoFreeSlot
		}

		expires := at.Add(time.Duration(c.DurationHours * float64(time.Hour))).UTC()
		activated := at.UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE collectibles SET activated_at = ?, expires_at = ? WHERE id = ?`,
			formatTime(activated), formatTime(expires), id); err != nil {
			return err
		}
		c.ActivatedAt = &activated
		c.ExpiresAt = &expires
		out = c
		return nil
	})
	return out, err
}
