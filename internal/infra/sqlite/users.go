package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── User Operations ────────────────────────────────────────────────────────

const userColumns = `id, dollars, tokens, experience, rate_level, boost_level, time_level,
	nft_slots_level, login_streak, longest_streak, last_login, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		lastLogin sql.NullString
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Dollars, &u.Tokens, &u.Experience,
		&u.Upgrades.Rate, &u.Upgrades.Boost, &u.Upgrades.Time, &u.Upgrades.NFTSlots,
		&u.LoginStreakDays, &u.LongestStreakDays, &lastLogin, &createdAt)
	if err != nil {
		return nil, notFound(err, domain.ErrUserNotFound)
	}
	if u.LastLoginDate, err = parseNullTime(lastLogin); err != nil {
		return nil, fmt.Errorf("parse last_login: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &u, nil
}

func getUserTx(ctx context.Context, tx *sql.Tx, id string) (*domain.User, error) {
	return scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// CreateUser inserts a user with zero balances.
func (db *DB) CreateUser(ctx context.Context, id string, now time.Time) (*domain.User, error) {
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES (?, ?)`, id, formatTime(now))
	if isUniqueViolation(err) {
		return nil, domain.ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return db.GetUser(ctx, id)
}

// GetUser retrieves a user.
func (db *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// CreditReward adds a mining reward and its experience, once per session.
func (db *DB) CreditReward(ctx context.Context, r domain.MiningReward) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserTx(ctx, tx, r.UserID)
		if err != nil {
			return err
		}
		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM ledger WHERE session_id = ? AND type = ?`, r.SessionID, domain.TxMiningReward).Scan(&exists)
		if err == nil {
			return domain.ErrAlreadyCredited
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		balance := u.Dollars.Add(r.Amount)
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET dollars = ?, experience = experience + ? WHERE id = ?`,
			balance, r.Experience, r.UserID); err != nil {
			return err
		}
		err = insertLedger(ctx, tx, domain.LedgerEntry{
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
		if isUniqueViolation(err) {
			return domain.ErrAlreadyCredited
		}
		return err
	})
}

// PurchaseUpgrade debits cost and raises track from fromLevel to fromLevel+1.
func (db *DB) PurchaseUpgrade(ctx context.Context, userID string, track domain.UpgradeTrack, fromLevel int, cost domain.Cost) error {
	column, err := levelColumn(track)
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserTx(ctx, tx, userID)
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
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET dollars = ?, tokens = ?, `+column+` = ? WHERE id = ?`,
			dollars, tokens, fromLevel+1, userID); err != nil {
			return err
		}

		now := time.Now()
		desc := fmt.Sprintf("upgrade %s to level %d", track, fromLevel+1)
		for _, debit := range []struct {
			currency domain.Currency
			amount   decimal.Decimal
			balance  decimal.Decimal
		}{
			{domain.CurrencyDollars, cost.Dollars, dollars},
			{domain.CurrencyTokens, cost.Tokens, tokens},
		} {
			if debit.amount.Sign() <= 0 {
				continue
			}
			if err := insertLedger(ctx, tx, domain.LedgerEntry{
				Timestamp:   now,
				Type:        domain.TxUpgrade,
				EntryType:   domain.EntryDebit,
				Account:     userID,
				Currency:    debit.currency,
				Amount:      debit.amount,
				Description: desc,
				Balance:     debit.balance,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Grant credits currency outside of mining.
func (db *DB) Grant(ctx context.Context, userID string, currency domain.Currency, amount decimal.Decimal, description string) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("grant amount must be positive, got %s", amount)
	}
	column := "dollars"
	if currency == domain.CurrencyTokens {
		column = "tokens"
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		balance := u.Balance(currency).Add(amount)
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET `+column+` = ? WHERE id = ?`, balance, userID); err != nil {
			return err
		}
		return insertLedger(ctx, tx, domain.LedgerEntry{
			Timestamp:   time.Now(),
			Type:        domain.TxGrant,
			EntryType:   domain.EntryCredit,
			Account:     userID,
			Currency:    currency,
			Amount:      amount,
			Description: description,
			Balance:     balance,
		})
	})
}

// RecordLogin updates the login streak for a login on day.
func (db *DB) RecordLogin(ctx context.Context, userID string, day time.Time) (*domain.User, error) {
	var out *domain.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := getUserTx(ctx, tx, userID)
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
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET login_streak = ?, longest_streak = ?, last_login = ? WHERE id = ?`,
			u.LoginStreakDays, u.LongestStreakDays, formatNullTime(u.LastLoginDate), userID); err != nil {
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

// ─── Ledger Operations ──────────────────────────────────────────────────────

func insertLedger(ctx context.Context, tx *sql.Tx, e domain.LedgerEntry) error {
	var session sql.NullString
	if e.SessionID != "" {
		session = sql.NullString{String: e.SessionID, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger (timestamp, type, entry_type, account, currency, amount, session_id, description, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatTime(e.Timestamp), e.Type, e.EntryType, e.Account, e.Currency, e.Amount, session, e.Description, e.Balance)
	return err
}

// ListLedger returns the newest entries of a user, newest first.
func (db *DB) ListLedger(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, timestamp, type, entry_type, account, currency, amount, session_id, description, balance
		FROM ledger WHERE account = ? ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e       domain.LedgerEntry
			ts      string
			session sql.NullString
			desc    sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntryType, &e.Account, &e.Currency,
			&e.Amount, &session, &desc, &e.Balance); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.SessionID = session.String
		e.Description = desc.String
		out = append(out, e)
	}
	return out, rows.Err()
}
