// Package sqlite is the default store: users, ledger, mining sessions,
// collectibles and referrals in one embedded database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tutu-network/idlemine/internal/domain"
)

// FileName is the database file created inside the data directory.
const FileName = "idlemine.db"

// timeLayout is fixed width so stored timestamps compare as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the database handle.
type DB struct {
	db   *sql.DB
	path string
}

var _ domain.Store = (*DB)(nil)

// Open opens (or creates) the database in dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; transactions never wait on a second connection.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB, path: path}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Close closes the database.
func (db *DB) Close() error { return db.db.Close() }

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements, one per string.
// Money is stored as decimal text; timestamps use timeLayout in UTC.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               TEXT PRIMARY KEY,
			dollars          TEXT NOT NULL DEFAULT '0',
			tokens           TEXT NOT NULL DEFAULT '0',
			experience       INTEGER NOT NULL DEFAULT 0,
			rate_level       INTEGER NOT NULL DEFAULT 0,
			boost_level      INTEGER NOT NULL DEFAULT 0,
			time_level       INTEGER NOT NULL DEFAULT 0,
			nft_slots_level  INTEGER NOT NULL DEFAULT 0,
			login_streak     INTEGER NOT NULL DEFAULT 0,
			longest_streak   INTEGER NOT NULL DEFAULT 0,
			last_login       TEXT,
			created_at       TEXT NOT NULL
		)`,

		// Append-only ledger; one mining reward per session.
		`CREATE TABLE IF NOT EXISTS ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   TEXT NOT NULL,
			type        TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			currency    TEXT NOT NULL,
			amount      TEXT NOT NULL,
			session_id  TEXT,
			description TEXT,
			balance     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger(account, id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_reward_session ON ledger(session_id) WHERE type = 'MINING_REWARD'`,

		`CREATE TABLE IF NOT EXISTS mining_sessions (
			user_id      TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL DEFAULT '',
			is_active    INTEGER NOT NULL DEFAULT 0,
			started_at   TEXT,
			ends_at      TEXT,
			last_tick_at TEXT,
			accrued      REAL NOT NULL DEFAULT 0,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mining_active ON mining_sessions(is_active)`,

		`CREATE TABLE IF NOT EXISTS collectibles (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			name              TEXT NOT NULL,
			mining_rate       REAL NOT NULL DEFAULT 0,
			mining_time       REAL NOT NULL DEFAULT 0,
			reward_multiplier REAL NOT NULL DEFAULT 0,
			special           REAL NOT NULL DEFAULT 0,
			duration_hours    REAL NOT NULL,
			activated_at      TEXT,
			expires_at        TEXT,
			created_at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collectibles_user ON collectibles(user_id, expires_at)`,

		`CREATE TABLE IF NOT EXISTS referrals (
			referee_id  TEXT PRIMARY KEY,
			referrer_id TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id)`,
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
