package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// UserStore is the user ledger: balances, experience, upgrades and streak.
type UserStore interface {
	CreateUser(ctx context.Context, id string, now time.Time) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)

	// CreditReward adds a mining reward. It is idempotent per session:
	// a second credit for the same SessionID returns ErrAlreadyCredited.
	CreditReward(ctx context.Context, reward MiningReward) error

	// PurchaseUpgrade debits cost and moves track from fromLevel to
	// fromLevel+1 in one transaction.
	PurchaseUpgrade(ctx context.Context, userID string, track UpgradeTrack, fromLevel int, cost Cost) error

	// Grant credits currency outside of mining (admin, promotions).
	Grant(ctx context.Context, userID string, currency Currency, amount decimal.Decimal, description string) error

	RecordLogin(ctx context.Context, userID string, day time.Time) (*User, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
}

// SessionStore persists mining sessions with absolute timestamps.
type SessionStore interface {
	SaveSession(ctx context.Context, userID string, s MiningSession) error
	// LoadSession returns the idle session when nothing is stored.
	LoadSession(ctx context.Context, userID string) (MiningSession, error)
	ActiveSessionUsers(ctx context.Context) ([]string, error)
}

// CollectibleStore persists collectibles and their activation windows.
type CollectibleStore interface {
	InsertCollectible(ctx context.Context, c Collectible) error
	GetCollectible(ctx context.Context, id string) (*Collectible, error)
	ListCollectibles(ctx context.Context, userID string) ([]Collectible, error)
	// ActivateCollectible activates id if fewer than maxActive collectibles
	// of the same user are active at `at`.
	ActivateCollectible(ctx context.Context, id string, at time.Time, maxActive int) (*Collectible, error)
}

// ReferralStore persists referrer → referee links.
type ReferralStore interface {
	InsertReferral(ctx context.Context, referrerID, refereeID string, at time.Time) error
	// ActiveReferralCount counts referees with an active mining session.
	ActiveReferralCount(ctx context.Context, referrerID string) (int, error)
	ListReferees(ctx context.Context, referrerID string) ([]Referral, error)
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	UserStore
	SessionStore
	CollectibleStore
	ReferralStore
	Close() error
}

// ─── Provider Interfaces ────────────────────────────────────────────────────
// Read-only boost feeds consumed by the mining core on every tick.

// NFTBoostProvider reports the boosts of a user's active collectibles.
type NFTBoostProvider interface {
	CalculateTotalBoost(ctx context.Context, userID string) (NFTBoosts, error)
}

// ReferralBoostProvider reports the referral boost percent of a user.
type ReferralBoostProvider interface {
	ReferralBoostPercent(ctx context.Context, userID string) (float64, error)
}
