package domain

import "time"

// ─── Referral Types ─────────────────────────────────────────────────────────
// Friends who are mining right now boost the referrer's rate.

// Referral links a referee to the user who invited them.
type Referral struct {
	ReferrerID string    `json:"referrer_id"`
	RefereeID  string    `json:"referee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// referralTiers maps a minimum active-referral count to a boost percent,
// highest first.
var referralTiers = []struct {
	minActive int
	percent   float64
}{
	{20, 25},
	{10, 15},
	{5, 10},
	{1, 5},
}

// ReferralBoostPercent is the step function from active referrals to boost:
// 0 → 0%, 1–4 → 5%, 5–9 → 10%, 10–19 → 15%, 20+ → 25%.
func ReferralBoostPercent(activeReferrals int) float64 {
	for _, tier := range referralTiers {
		if activeReferrals >= tier.minActive {
			return tier.percent
		}
	}
	return 0
}
