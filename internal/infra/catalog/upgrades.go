package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/tutu-network/idlemine/internal/domain"
)

func dollars(n int64) domain.Cost { return domain.Cost{Dollars: decimal.NewFromInt(n)} }
func tokens(n int64) domain.Cost  { return domain.Cost{Tokens: decimal.NewFromInt(n)} }

// Upgrades lists every track's tiers in purchase order. Bonus units:
// rate in Dollars/hour, boost in percent, time in minutes, nftSlots in slots.
var Upgrades = map[domain.UpgradeTrack][]domain.UpgradeTier{
	domain.TrackRate: {
		{Level: 1, Bonus: 1, Cost: dollars(10)},
		{Level: 2, Bonus: 1, Cost: dollars(25)},
		{Level: 3, Bonus: 2, Cost: dollars(60)},
		{Level: 4, Bonus: 2, Cost: dollars(150)},
		{Level: 5, Bonus: 3, Cost: dollars(400)},
		{Level: 6, Bonus: 4, Cost: tokens(5)},
		{Level: 7, Bonus: 5, Cost: tokens(10)},
	},
	domain.TrackBoost: {
		{Level: 1, Bonus: 5, Cost: dollars(20)},
		{Level: 2, Bonus: 5, Cost: dollars(50)},
		{Level: 3, Bonus: 5, Cost: dollars(120)},
		{Level: 4, Bonus: 10, Cost: dollars(300)},
		{Level: 5, Bonus: 10, Cost: tokens(8)},
		{Level: 6, Bonus: 15, Cost: tokens(15)},
	},
	domain.TrackTime: {
		{Level: 1, Bonus: 15, Cost: dollars(30)},
		{Level: 2, Bonus: 15, Cost: dollars(75)},
		{Level: 3, Bonus: 30, Cost: dollars(180)},
		{Level: 4, Bonus: 30, Cost: dollars(450)},
		{Level: 5, Bonus: 45, Cost: tokens(10)},
		{Level: 6, Bonus: 60, Cost: tokens(20)},
	},
	domain.TrackNFTSlots: {
		{Level: 1, Bonus: 1, Cost: tokens(5)},
		{Level: 2, Bonus: 1, Cost: tokens(10)},
		{Level: 3, Bonus: 1, Cost: tokens(20)},
		{Level: 4, Bonus: 2, Cost: tokens(40)},
	},
}

// Tiers returns the tiers of a track, or nil for an unknown track.
func Tiers(track domain.UpgradeTrack) []domain.UpgradeTier {
	return Upgrades[track]
}

// MaxUpgradeLevel is the number of tiers in a track.
func MaxUpgradeLevel(track domain.UpgradeTrack) int {
	return len(Upgrades[track])
}

// Lookup returns the tier at a 1-based level, or nil when out of range.
func Lookup(track domain.UpgradeTrack, level int) *domain.UpgradeTier {
	tiers := Upgrades[track]
	if level < 1 || level > len(tiers) {
		return nil
	}
	t := tiers[level-1]
	return &t
}

// Next returns the tier a user at current would buy next, or nil at max.
func Next(track domain.UpgradeTrack, current int) *domain.UpgradeTier {
	if current < 0 {
		current = 0
	}
	return Lookup(track, current+1)
}

// CumulativeBonus sums the bonuses of levels 1..level, clamped to the track.
func CumulativeBonus(track domain.UpgradeTrack, level int) float64 {
	tiers := Upgrades[track]
	if level > len(tiers) {
		level = len(tiers)
	}
	var sum float64
	for i := 0; i < level; i++ {
		sum += tiers[i].Bonus
	}
	return sum
}

// NFTSlots is the number of collectibles a user may have active at once.
func NFTSlots(slotLevel int) int {
	return 1 + int(CumulativeBonus(domain.TrackNFTSlots, slotLevel))
}
