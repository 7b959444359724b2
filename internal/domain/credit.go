package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Ledger Types ───────────────────────────────────────────────────────────
// Every balance change is recorded as a ledger entry next to the running
// balance it produced.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a balance change.
type TransactionType string

const (
	TxMiningReward TransactionType = "MINING_REWARD"
	TxUpgrade      TransactionType = "UPGRADE"
	TxGrant        TransactionType = "GRANT"
)

// LedgerEntry is a single row in the user ledger.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        TransactionType `json:"type"`
	EntryType   EntryType       `json:"entry_type"`
	Account     string          `json:"account"`
	Currency    Currency        `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	SessionID   string          `json:"session_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
}

// ExperienceForReward is the experience granted alongside a mining reward:
// half the rounded reward, floored.
func ExperienceForReward(reward decimal.Decimal) int64 {
	if reward.Sign() <= 0 {
		return 0
	}
	return reward.Mul(decimal.NewFromFloat(0.5)).Floor().IntPart()
}

// RoundReward rounds accrued currency to the minimum unit (two decimals).
func RoundReward(accrued float64) decimal.Decimal {
	if accrued <= 0 || math.IsNaN(accrued) || math.IsInf(accrued, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(accrued).Round(2)
}
