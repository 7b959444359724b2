package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// User errors
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// Ledger errors
	ErrLedgerRead        = errors.New("ledger read failed")
	ErrLedgerWrite       = errors.New("ledger write failed")
	ErrAlreadyCredited   = errors.New("session reward already credited")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Upgrade errors
	ErrUnknownTrack    = errors.New("unknown upgrade track")
	ErrMaxUpgradeLevel = errors.New("upgrade track already at max level")
	ErrUpgradeConflict = errors.New("upgrade level changed concurrently")

	// Session errors
	ErrInvalidSession = errors.New("invalid mining session")

	// Collectible errors
	ErrCollectibleNotFound = errors.New("collectible not found")
	ErrCollectibleActive   = errors.New("collectible already active")
	ErrCollectibleExpired  = errors.New("collectible expired")
	ErrNoFreeSlot          = errors.New("no free collectible slot")

	// Referral errors
	ErrSelfReferral    = errors.New("user cannot refer themselves")
	ErrAlreadyReferred = errors.New("user already has a referrer")
)
