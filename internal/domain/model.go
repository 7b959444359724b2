// Package domain contains pure business types for the idle-mining game.
// This is the innermost ring of the architecture: no storage, transport or
// scheduling concerns live here.
package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Currency Types ─────────────────────────────────────────────────────────

// Currency identifies one of the two balances a user holds.
type Currency string

const (
	// CurrencyDollars is the soft currency earned by mining.
	CurrencyDollars Currency = "DOLLARS"
	// CurrencyTokens is the hard currency used for premium upgrades.
	CurrencyTokens Currency = "TOKENS"
)

// ParseCurrency converts user input into a Currency.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case CurrencyDollars, "dollars":
		return CurrencyDollars, nil
	case CurrencyTokens, "tokens":
		return CurrencyTokens, nil
	}
	return "", fmt.Errorf("unknown currency %q", s)
}

// Cost is the price of one upgrade level. Either side may be zero.
type Cost struct {
	Dollars decimal.Decimal `json:"dollars"`
	Tokens  decimal.Decimal `json:"tokens"`
}

// IsFree reports whether nothing has to be paid.
func (c Cost) IsFree() bool {
	return c.Dollars.Sign() <= 0 && c.Tokens.Sign() <= 0
}

// ─── Upgrade Types ──────────────────────────────────────────────────────────

// UpgradeTrack is one of the four independent progression ladders.
type UpgradeTrack string

const (
	TrackRate     UpgradeTrack = "rate"     // +Dollars/hour
	TrackBoost    UpgradeTrack = "boost"    // +boost percent
	TrackTime     UpgradeTrack = "time"     // -session minutes
	TrackNFTSlots UpgradeTrack = "nftSlots" // +collectible activation slots
)

// AllTracks returns the tracks in display order.
func AllTracks() []UpgradeTrack {
	return []UpgradeTrack{TrackRate, TrackBoost, TrackTime, TrackNFTSlots}
}

// ParseUpgradeTrack validates a track name.
func ParseUpgradeTrack(s string) (UpgradeTrack, error) {
	for _, t := range AllTracks() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrack, s)
}

// UpgradeTier is a single purchasable entry of a track.
type UpgradeTier struct {
	Level int     `json:"level"` // 1-based
	Bonus float64 `json:"bonus"`
	Cost  Cost    `json:"cost"`
}

// UpgradeLevels holds a user's current level in every track.
// Zero means nothing purchased.
type UpgradeLevels struct {
	Rate     int `json:"rate"`
	Boost    int `json:"boost"`
	Time     int `json:"time"`
	NFTSlots int `json:"nft_slots"`
}

// Get returns the level for a track.
func (u UpgradeLevels) Get(track UpgradeTrack) int {
	switch track {
	case TrackRate:
		return u.Rate
	case TrackBoost:
		return u.Boost
	case TrackTime:
		return u.Time
	case TrackNFTSlots:
		return u.NFTSlots
	}
	return 0
}

// Set updates the level for a track.
func (u *UpgradeLevels) Set(track UpgradeTrack, level int) {
	switch track {
	case TrackRate:
		u.Rate = level
	case TrackBoost:
		u.Boost = level
	case TrackTime:
		u.Time = level
	case TrackNFTSlots:
		u.NFTSlots = level
	}
}

// ─── Level Types ────────────────────────────────────────────────────────────

// LevelInfo is one row of the level table. Experience in [XPMin, XPMax)
// maps to Level. The last level has XPMax = math.MaxInt64.
type LevelInfo struct {
	Level             int     `json:"level"`
	XPMin             int64   `json:"xp_min"`
	XPMax             int64   `json:"xp_max"`
	BaseRate          float64 `json:"base_rate"`
	BaseDurationHours float64 `json:"base_duration_hours"`
	BaseBoostPercent  float64 `json:"base_boost_percent"`
}

// Contains reports whether xp falls into this level's range.
func (l LevelInfo) Contains(xp int64) bool {
	return xp >= l.XPMin && xp < l.XPMax
}

// IsMax reports whether this is the open-ended top level.
func (l LevelInfo) IsMax() bool {
	return l.XPMax == math.MaxInt64
}

// ─── User Types ─────────────────────────────────────────────────────────────

// User is the ledger row the mining core reads from and credits to.
type User struct {
	ID                string          `json:"id"`
	Dollars           decimal.Decimal `json:"dollars"`
	Tokens            decimal.Decimal `json:"tokens"`
	Experience        int64           `json:"experience"`
	Upgrades          UpgradeLevels   `json:"upgrades"`
	LoginStreakDays   int             `json:"login_streak_days"`
	LongestStreakDays int             `json:"longest_streak_days"`
	LastLoginDate     time.Time       `json:"last_login_date,omitzero"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Balance returns the balance for a currency.
func (u User) Balance(c Currency) decimal.Decimal {
	if c == CurrencyTokens {
		return u.Tokens
	}
	return u.Dollars
}

// CanAfford reports whether both balances cover the cost.
func (u User) CanAfford(c Cost) bool {
	return u.Dollars.GreaterThanOrEqual(c.Dollars) && u.Tokens.GreaterThanOrEqual(c.Tokens)
}

// NextStreak computes the login streak after a login on day.
// Logging in twice on the same day keeps the streak, the following day
// extends it and any gap resets it to one.
func NextStreak(lastLogin time.Time, current int, day time.Time) int {
	if lastLogin.IsZero() || current <= 0 {
		return 1
	}
	last := dateOf(lastLogin)
	today := dateOf(day)
	switch days := int(today.Sub(last).Hours() / 24); {
	case days <= 0:
		return current
	case days == 1:
		return current + 1
	default:
		return 1
	}
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ─── Mining Types ───────────────────────────────────────────────────────────

// MiningSession is one timed mining run. The zero value is the idle session.
// Timestamps are absolute so a persisted session can be reconciled against
// wall-clock time after a restart.
type MiningSession struct {
	ID         string    `json:"id,omitempty"`
	IsActive   bool      `json:"is_active"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	EndsAt     time.Time `json:"ends_at,omitzero"`
	LastTickAt time.Time `json:"last_tick_at,omitzero"`
	Accrued    float64   `json:"accrued"`
}

// Validate checks the session invariants.
func (s MiningSession) Validate() error {
	if !s.IsActive {
		if s != (MiningSession{}) {
			return fmt.Errorf("%w: idle session carries state", ErrInvalidSession)
		}
		return nil
	}
	if s.StartedAt.IsZero() || s.EndsAt.IsZero() || s.LastTickAt.IsZero() {
		return fmt.Errorf("%w: active session without timestamps", ErrInvalidSession)
	}
	if s.LastTickAt.Before(s.StartedAt) || s.LastTickAt.After(s.EndsAt) {
		return fmt.Errorf("%w: last tick outside [started_at, ends_at]", ErrInvalidSession)
	}
	if s.Accrued < 0 || math.IsNaN(s.Accrued) {
		return fmt.Errorf("%w: accrued %v", ErrInvalidSession, s.Accrued)
	}
	return nil
}

// NFTBoosts are the percent contributions of activated, non-expired collectibles.
type NFTBoosts struct {
	MiningRate       float64 `json:"mining_rate"`
	MiningTime       float64 `json:"mining_time"`
	RewardMultiplier float64 `json:"reward_multiplier"`
	Special          float64 `json:"special"`
}

// Add sums two boost sets.
func (b NFTBoosts) Add(o NFTBoosts) NFTBoosts {
	return NFTBoosts{
		MiningRate:       b.MiningRate + o.MiningRate,
		MiningTime:       b.MiningTime + o.MiningTime,
		RewardMultiplier: b.RewardMultiplier + o.RewardMultiplier,
		Special:          b.Special + o.Special,
	}
}

// BoostInputs is the read-only snapshot the composer works from.
type BoostInputs struct {
	Level                int           `json:"level"`
	Upgrades             UpgradeLevels `json:"upgrades"`
	LoginStreakDays      int           `json:"login_streak_days"`
	ReferralBoostPercent float64       `json:"referral_boost_percent"`
	NFT                  NFTBoosts     `json:"nft"`
}

// MiningProfile is the composed result for one set of inputs.
type MiningProfile struct {
	Level                  int       `json:"level"`
	TotalRatePerHour       float64   `json:"total_rate_per_hour"`
	TotalBoostPercent      float64   `json:"total_boost_percent"`
	StreakBonusPercent     float64   `json:"streak_bonus_percent"`
	TimeReductionMinutes   float64   `json:"time_reduction_minutes"`
	EffectiveDurationHours float64   `json:"effective_duration_hours"`
	EstimatedFullEarnings  float64   `json:"estimated_full_earnings"`
	NFT                    NFTBoosts `json:"nft"`
}

// RatePerSecond is the boosted accrual rate used by every tick.
func (p MiningProfile) RatePerSecond() float64 {
	return p.TotalRatePerHour * (1 + p.TotalBoostPercent/100) / 3600
}

// Duration converts EffectiveDurationHours into a time.Duration.
func (p MiningProfile) Duration() time.Duration {
	return time.Duration(p.EffectiveDurationHours * float64(time.Hour))
}

// MiningReward is what a collect writes back to the ledger.
type MiningReward struct {
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	Amount     decimal.Decimal `json:"amount"`
	Experience int64           `json:"experience"`
	CreditedAt time.Time       `json:"credited_at"`
}

// ─── Collectible Types ──────────────────────────────────────────────────────

// Collectible is a time-limited boost item. It is inert until activated and
// stops contributing at ExpiresAt.
type Collectible struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	Boosts        NFTBoosts  `json:"boosts"`
	DurationHours float64    `json:"duration_hours"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsActive reports whether the collectible currently contributes.
func (c Collectible) IsActive(now time.Time) bool {
	return c.ActivatedAt != nil && c.ExpiresAt != nil && now.Before(*c.ExpiresAt)
}

// IsExpired reports whether the collectible was activated and has run out.
func (c Collectible) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
