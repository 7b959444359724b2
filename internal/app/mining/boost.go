// Package mining implements the idle-mining session lifecycle: the pure
// boost composer, a per-user session engine with an owned ticker, and a
// manager that keeps one engine per user.
package mining

import (
	"math"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/catalog"
)

// MinDurationHours is the floor for a session after time reductions.
const MinDurationHours = 1.0

// streakTiers maps a minimum streak length to a bonus percent, highest first.
var streakTiers = []struct {
	minDays int
	percent float64
}{
	{28, 25},
	{21, 15},
	{14, 10},
	{7, 5},
}

// StreakBonusPercent is the stepped login-streak bonus.
func StreakBonusPercent(days int) float64 {
	for _, tier := range streakTiers {
		if days >= tier.minDays {
			return tier.percent
		}
	}
	return 0
}

// ComputeMiningProfile composes level, upgrades, streak and external boosts
// into a rate, a boost and a session duration. It has no side effects.
func ComputeMiningProfile(in domain.BoostInputs) domain.MiningProfile {
	lvl := catalog.Level(in.Level)
	nft := domain.NFTBoosts{
		MiningRate:       nonNegative(in.NFT.MiningRate),
		MiningTime:       nonNegative(in.NFT.MiningTime),
		RewardMultiplier: nonNegative(in.NFT.RewardMultiplier),
		Special:          nonNegative(in.NFT.Special),
	}

	rate := lvl.BaseRate + catalog.CumulativeBonus(domain.TrackRate, in.Upgrades.Rate)
	streak := StreakBonusPercent(in.LoginStreakDays)
	boost := lvl.BaseBoostPercent +
		catalog.CumulativeBonus(domain.TrackBoost, in.Upgrades.Boost) +
		streak +
		nft.MiningRate +
		nonNegative(in.ReferralBoostPercent)
	reduction := catalog.CumulativeBonus(domain.TrackTime, in.Upgrades.Time)
	duration := math.Max(lvl.BaseDurationHours-reduction/60, MinDurationHours)

	return domain.MiningProfile{
		Level:                  lvl.Level,
		TotalRatePerHour:       rate,
		TotalBoostPercent:      boost,
		StreakBonusPercent:     streak,
		TimeReductionMinutes:   reduction,
		EffectiveDurationHours: duration,
		EstimatedFullEarnings:  rate * duration * (1 + boost/100),
		NFT:                    nft,
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
