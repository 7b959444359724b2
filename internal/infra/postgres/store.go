package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tutu-network/idlemine/internal/domain"
)

// Store implements domain.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ─── Users ──────────────────────────────────────────────────────────────────

const userColumns = `id, dollars::text, tokens::text, experience, rate_level, boost_level, time_level,
	nft_slots_level, login_streak, longest_streak, last_login, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u               domain.User
		dollars, tokens string
		lastLogin       *time.Time
	)
	err := row.Scan(&u.ID, &dollars, &tokens, &u.Experience,
		&u.Upgrades.Rate, &u.Upgrades.Boost, &u.Upgrades.Time, &u.Upgrades.NFTSlots,
		&u.LoginStreakDays, &u.LongestStreakDays, &lastLogin, &u.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if u.Dollars, err = decimal.NewFromString(dollars); err != nil {
		return nil, fmt.Errorf("parse dollars: %w", err)
	}
	if u.Tokens, err = decimal.NewFromString(tokens); err != nil {
		return nil, fmt.Errorf("parse tokens: %w", err)
	}
	if lastLogin != nil {
		u.LastLoginDate = lastLogin.UTC()
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUser(ctx context.Context, q querier, id string, forUpdate bool) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanUser(q.QueryRow(ctx, query, id))
}

// CreateUser inserts a user with zero balances.
func (s *Store) CreateUser(ctx context.Context, id string, now time.Time) (*domain.User, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, created_at) VALUES ($1, $2)`, id, now)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser retrieves a user.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.pool, id, false)
}

// CreditReward adds a mining reward and its experience, once per session.
func (s *Store) CreditReward(ctx context.Context, r domain.MiningReward) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		u, err := getUser(ctx, tx, r.UserID, true)
		if err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger WHERE session_id = $1 AND type = $2)`,
			r.SessionID, string(domain.TxMiningReward)).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyCredited
		}

		balance := u.Dollars.Add(r.Amount)
		if _, err := tx.Exec(ctx,
			`UPDATE users SET dollars = $1::numeric, experience = experience + $2 WHERE id = $3`,
			balance.String(), r.Experience, r.UserID); err != nil {
			return err
		}
		return insertLedger(ctx, tx, domain.LedgerEntry{
			Timestamp:   r.CreditedAt,
			Type:        domain.TxMiningReward,
			EntryType:   domain.EntryCredit,
			Account:     r.UserID,
			Currency:    domain.CurrencyDollars,
			Amount:      r.Amount,
			SessionID:   r.SessionID,
			Description: fmt.Sprintf("mining reward, +%d xp", r.Experience),
			Balance:     balance,
		})
	})
	if isDuplicateKeyError(err) {
		return domain.ErrAlreadyCredited
	}
	return err
}

// PurchaseUpgrade debits cost and raises track from fromLevel to fromLevel+1.
func (s *Store) PurchaseUpgrade(ctx context.Context, userID string, track domain.UpgradeTrack, fromLevel int, cost domain.Cost) error {
	column, err := levelColumn(track)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		u, err := getUser(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		if u.Upgrades.Get(track) != fromLevel {
			return domain.ErrUpgradeConflict
		}
		if !u.CanAfford(cost) {
			return domain.ErrInsufficientFunds
		}

		dollars := u.Dollars.Sub(cost.Dollars)
		tokens := u.Tokens.Sub(cost.Tokens)
		if _, err := tx.Exec(ctx,
			`UPDATE users SET dollars = $1::numeric, tokens = $2::numeric, `+column+` = $3 WHERE id = $4`,
			dollars.String(), tokens.String(), fromLevel+1, userID); err != nil {
			return err
		}

		now := time.Now()
		desc := fmt.Sprintf("upgrade %s to level %d", track, fromLevel+1)
		if cost.Dollars.IsPositive() {
			if err := insertLedger(ctx, tx, domain.LedgerEntry{
				Timestamp: now, Type: domain.TxUpgrade, EntryType: domain.EntryDebit, Account: userID,
				Currency: domain.CurrencyDollars, Amount: cost.Dollars, Description: desc, Balance: dollars,
			}); err != nil {
				return err
			}
		}
		if cost.Tokens.IsPositive() {
			if err := insertLedger(ctx, tx, domain.LedgerEntry{
				Timestamp: now, Type: domain.TxUpgrade, EntryType: domain.EntryDebit, Account: userID,
				Currency: domain.CurrencyTokens, Amount: cost.Tokens, Description: desc, Balance: tokens,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Grant credits currency outside of mining.
func (s *Store) Grant(ctx context.Context, userID string, currency domain.Currency, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("grant amount must be positive, got %s", amount)
	}
	column := "dollars"
	if currency == domain.CurrencyTokens {
		column = "tokens"
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		u, err := getUser(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		balance := u.Balance(currency).Add(amount)
		if _, err := tx.Exec(ctx,
			`UPDATE users SET `+column+` = $1::numeric WHERE id = $2`, balance.String(), userID); err != nil {
			return err
		}
		return insertLedger(ctx, tx, domain.LedgerEntry{
			Timestamp: time.Now(), Type: domain.TxGrant, EntryType: domain.EntryCredit, Account: userID,
			Currency: currency, Amount: amount, Description: description, Balance: balance,
		})
	})
}

// RecordLogin updates the login streak for a login on day.
func (s *Store) RecordLogin(ctx context.Context, userID string, day time.Time) (*domain.User, error) {
	var out *domain.User
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		u, err := getUser(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		u.LoginStreakDays = domain.NextStreak(u.LastLoginDate, u.LoginStreakDays, day)
		if u.LoginStreakDays > u.LongestStreakDays {
			u.LongestStreakDays = u.LoginStreakDays
		}
		if day.After(u.LastLoginDate) {
			u.LastLoginDate = day.UTC()
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET login_streak = $1, longest_streak = $2, last_login = $3 WHERE id = $4`,
			u.LoginStreakDays, u.LongestStreakDays, u.LastLoginDate, userID); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func levelColumn(track domain.UpgradeTrack) (string, error) {
	switch track {
	case domain.TrackRate:
		return "rate_level", nil
	case domain.TrackBoost:
		return "boost_level", nil
	case domain.TrackTime:
		return "time_level", nil
	case domain.TrackNFTSlots:
		return "nft_slots_level", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownTrack, track)
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

func insertLedger(ctx context.Context, tx pgx.Tx, e domain.LedgerEntry) error {
	var session *string
	if e.SessionID != "" {
		session = &e.SessionID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger (timestamp, type, entry_type, account, currency, amount, session_id, description, balance)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9::numeric)
	`, e.Timestamp, string(e.Type), string(e.EntryType), e.Account, string(e.Currency),
		e.Amount.String(), session, e.Description, e.Balance.String())
	return err
}

// ListLedger returns the newest entries of a user, newest first.
func (s *Store) ListLedger(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, type, entry_type, account, currency, amount::text, session_id, description, balance::text
		FROM ledger WHERE account = $1 ORDER BY id DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e               domain.LedgerEntry
			typ, entry, cur string
			amount, balance string
			session         *string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &entry, &e.Account, &cur,
			&amount, &session, &e.Description, &balance); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		e.Type = domain.TransactionType(typ)
		e.EntryType = domain.EntryType(entry)
		e.Currency = domain.Currency(cur)
		e.Timestamp = e.Timestamp.UTC()
		if session != nil {
			e.SessionID = *session
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// SaveSession upserts the user's session with absolute timestamps.
func (s *Store) SaveSession(ctx context.Context, userID string, sess domain.MiningSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mining_sessions (user_id, session_id, is_active, started_at, ends_at, last_tick_at, accrued, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id) DO UPDATE SET
			session_id   = EXCLUDED.session_id,
			is_active    = EXCLUDED.is_active,
			started_at   = EXCLUDED.started_at,
			ends_at      = EXCLUDED.ends_at,
			last_tick_at = EXCLUDED.last_tick_at,
			accrued      = EXCLUDED.accrued,
			updated_at   = now()
	`, userID, sess.ID, sess.IsActive, nullTime(sess.StartedAt), nullTime(sess.EndsAt),
		nullTime(sess.LastTickAt), sess.Accrued)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, or the idle session.
func (s *Store) LoadSession(ctx context.Context, userID string) (domain.MiningSession, error) {
	var (
		sess                    domain.MiningSession
		started, ends, lastTick *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, is_active, started_at, ends_at, last_tick_at, accrued
		FROM mining_sessions WHERE user_id = $1
	`, userID).Scan(&sess.ID, &sess.IsActive, &started, &ends, &lastTick, &sess.Accrued)
	if isNotFoundError(err) {
		return domain.MiningSession{}, nil
	}
	if err != nil {
		return domain.MiningSession{}, fmt.Errorf("load session: %w", err)
	}
	if started != nil {
		sess.StartedAt = started.UTC()
	}
	if ends != nil {
		sess.EndsAt = ends.UTC()
	}
	if lastTick != nil {
		sess.LastTickAt = lastTick.UTC()
	}
	return sess, nil
}

// ActiveSessionUsers lists users with an active session.
func (s *Store) ActiveSessionUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM mining_sessions WHERE is_active ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ─── Collectibles ───────────────────────────────────────────────────────────

const collectibleColumns = `id, user_id, name, mining_rate, mining_time, reward_multiplier, special,
	duration_hours, activated_at, expires_at, created_at`

func scanCollectible(row pgx.Row) (*domain.Collectible, error) {
	var c domain.Collectible
	err := row.Scan(&c.ID, &c.UserID, &c.Name,
		&c.Boosts.MiningRate, &c.Boosts.MiningTime, &c.Boosts.RewardMultiplier, &c.Boosts.Special,
		&c.DurationHours, &c.ActivatedAt, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, domain.ErrCollectibleNotFound
		}
		return nil, fmt.Errorf("scan collectible: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if c.ActivatedAt != nil {
		t := c.ActivatedAt.UTC()
		c.ActivatedAt = &t
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.UTC()
		c.ExpiresAt = &t
	}
	return &c, nil
}

// InsertCollectible stores a new, inactive collectible.
func (s *Store) InsertCollectible(ctx context.Context, c domain.Collectible) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collectibles (id, user_id, name, mining_rate, mining_time, reward_multiplier, special, duration_hours, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.UserID, c.Name, c.Boosts.MiningRate, c.Boosts.MiningTime, c.Boosts.RewardMultiplier,
		c.Boosts.Special, c.DurationHours, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert collectible: %w", err)
	}
	return nil
}

// GetCollectible retrieves a collectible.
func (s *Store) GetCollectible(ctx context.Context, id string) (*domain.Collectible, error) {
	return scanCollectible(s.pool.QueryRow(ctx,
		`SELECT `+collectibleColumns+` FROM collectibles WHERE id = $1`, id))
}

// ListCollectibles returns a user's collectibles, oldest first.
func (s *Store) ListCollectibles(ctx context.Context, userID string) ([]domain.Collectible, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+collectibleColumns+` FROM collectibles WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query collectibles: %w", err)
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
func (s *Store) ActivateCollectible(ctx context.Context, id string, at time.Time, maxActive int) (*domain.Collectible, error) {
	var out *domain.Collectible
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := scanCollectible(tx.QueryRow(ctx,
			`SELECT `+collectibleColumns+` FROM collectibles WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if c.ActivatedAt != nil {
			if c.IsActive(at) {
				return domain.ErrCollectibleActive
			}
			return domain.ErrCollectibleExpired
		}
		// Serialize activations of the same user.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.UserID); err != nil {
			return err
		}

		var active int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM collectibles
			WHERE user_id = $1 AND activated_at IS NOT NULL AND expires_at > $2
		`, c.UserID, at).Scan(&active); err != nil {
			return err
		}
		if active >= maxActive {
			return domain.ErrNoFreeSlot
		}

		activated := at.UTC()
		expires := activated.Add(time.Duration(c.DurationHours * float64(time.Hour)))
		if _, err := tx.Exec(ctx,
			`UPDATE collectibles SET activated_at = $1, expires_at = $2 WHERE id = $3`,
			activated, expires, id); err != nil {
			return err
		}
		c.ActivatedAt = &activated
		c.ExpiresAt = &expires
		out = c
		return nil
	})
	return out, err
}

// ─── Referrals ──────────────────────────────────────────────────────────────

// InsertReferral links referee to referrer. A referee has one referrer.
func (s *Store) InsertReferral(ctx context.Context, referrerID, refereeID string, at time.Time) error {
	if referrerID == refereeID {
		return domain.ErrSelfReferral
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO referrals (referee_id, referrer_id, created_at) VALUES ($1, $2, $3)`,
		refereeID, referrerID, at)
	switch {
	case err == nil:
		return nil
	case isDuplicateKeyError(err):
		return domain.ErrAlreadyReferred
	case isForeignKeyError(err):
		return domain.ErrUserNotFound
	}
	return fmt.Errorf("insert referral: %w", err)
}

// ActiveReferralCount counts referees of referrerID that are mining now.
func (s *Store) ActiveReferralCount(ctx context.Context, referrerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM referrals r
		JOIN mining_sessions m ON m.user_id = r.referee_id
		WHERE r.referrer_id = $1 AND m.is_active
	`, referrerID).Scan(&n)
	return n, err
}

// ListReferees returns the users referred by referrerID.
func (s *Store) ListReferees(ctx context.Context, referrerID string) ([]domain.Referral, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT referrer_id, referee_id, created_at FROM referrals
		WHERE referrer_id = $1 ORDER BY created_at, referee_id
	`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("query referrals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Referral, error) {
		var r domain.Referral
		err := row.Scan(&r.ReferrerID, &r.RefereeID, &r.CreatedAt)
		r.CreatedAt = r.CreatedAt.UTC()
		return r, err
	})
}
