package mining

import (
	"math"
	"testing"

	"github.com/tutu-network/idlemine/internal/domain"
)

func TestStreakBonusPercent(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{0, 0}, {6, 0}, {7, 5}, {13, 5}, {14, 10}, {20, 10},
		{21, 15}, {27, 15}, {28, 25}, {365, 25}, {-3, 0},
	}
	for _, tt := range tests {
		if got := StreakBonusPercent(tt.days); got != tt.want {
			t.Errorf("StreakBonusPercent(%d) = %v, want %v", tt.days, got, tt.want)
		}
	}
}

func TestComputeMiningProfile_LevelOneBaseline(t *testing.T) {
	p := ComputeMiningProfile(levelOne())
	if p.TotalRatePerHour != 1.0 {
		t.Errorf("TotalRatePerHour = %v, want 1.0", p.TotalRatePerHour)
	}
	if p.TotalBoostPercent != 0 {
		t.Errorf("TotalBoostPercent = %v, want 0", p.TotalBoostPercent)
	}
	if p.EffectiveDurationHours != 2 {
		t.Errorf("EffectiveDurationHours = %v, want 2", p.EffectiveDurationHours)
	}
	if p.EstimatedFullEarnings != 2 {
		t.Errorf("EstimatedFullEarnings = %v, want 2", p.EstimatedFullEarnings)
	}
}

func TestComputeMiningProfile_UpgradesAndStreak(t *testing.T) {
	p := ComputeMiningProfile(domain.BoostInputs{
		Level:           1,
		Upgrades:        domain.UpgradeLevels{Rate: 1, Boost: 1},
		LoginStreakDays: 7,
	})
	if p.TotalRatePerHour != 2.0 {
		t.Errorf("TotalRatePerHour = %v, want 2.0", p.TotalRatePerHour)
	}
	if p.TotalBoostPercent != 10 {
		t.Errorf("TotalBoostPercent = %v, want 10", p.TotalBoostPercent)
	}
	if p.StreakBonusPercent != 5 {
		t.Errorf("StreakBonusPercent = %v, want 5", p.StreakBonusPercent)
	}
	if !approx(p.EstimatedFullEarnings, 4.40) {
		t.Errorf("EstimatedFullEarnings = %v, want 4.40", p.EstimatedFullEarnings)
	}
	if got := domain.RoundReward(p.EstimatedFullEarnings).StringFixed(2); got != "4.40" {
		t.Errorf("rounded earnings = %s, want 4.40", got)
	}
}

func TestComputeMiningProfile_ExternalBoostsAdd(t *testing.T) {
	p := ComputeMiningProfile(domain.BoostInputs{
		Level:                3,
		ReferralBoostPercent: 15,
		NFT:                  domain.NFTBoosts{MiningRate: 12, MiningTime: 30, RewardMultiplier: 5, Special: 1},
	})
	// level 3 base 4% + nft 12% + referral 15%
	if p.TotalBoostPercent != 31 {
		t.Errorf("TotalBoostPercent = %v, want 31", p.TotalBoostPercent)
	}
	if p.EffectiveDurationHours != 3 {
		t.Errorf("EffectiveDurationHours = %v, want 3 (nft time is display only)", p.EffectiveDurationHours)
	}
	if p.NFT.RewardMultiplier != 5 {
		t.Errorf("NFT.RewardMultiplier = %v, want 5 carried through", p.NFT.RewardMultiplier)
	}
}

func TestComputeMiningProfile_DurationFloor(t *testing.T) {
	for _, level := range []int{1, 2, 5, 10} {
		p := ComputeMiningProfile(domain.BoostInputs{
			Level:    level,
			Upgrades: domain.UpgradeLevels{Time: 99},
		})
		if p.EffectiveDurationHours < MinDurationHours {
			t.Errorf("level %d: EffectiveDurationHours = %v, below floor", level, p.EffectiveDurationHours)
		}
	}
	p := ComputeMiningProfile(domain.BoostInputs{Level: 1, Upgrades: domain.UpgradeLevels{Time: 99}})
	if p.EffectiveDurationHours != 1 {
		t.Errorf("level 1 max time upgrades: duration = %v, want 1", p.EffectiveDurationHours)
	}
	p = ComputeMiningProfile(domain.BoostInputs{Level: 3, Upgrades: domain.UpgradeLevels{Time: 2}})
	if p.EffectiveDurationHours != 2.5 {
		t.Errorf("level 3 time 2: duration = %v, want 2.5", p.EffectiveDurationHours)
	}
}

func TestComputeMiningProfile_ClampsBadInputs(t *testing.T) {
	p := ComputeMiningProfile(domain.BoostInputs{
		Level:                -4,
		Upgrades:             domain.UpgradeLevels{Rate: -2, Boost: 1000},
		LoginStreakDays:      -1,
		ReferralBoostPercent: math.NaN(),
		NFT:                  domain.NFTBoosts{MiningRate: -50},
	})
	if p.Level != 1 {
		t.Errorf("Level = %d, want clamp to 1", p.Level)
	}
	if p.TotalRatePerHour != 1 {
		t.Errorf("TotalRatePerHour = %v, want 1", p.TotalRatePerHour)
	}
	// full boost track: 5+5+5+10+10+15
	if p.TotalBoostPercent != 50 {
		t.Errorf("TotalBoostPercent = %v, want 50", p.TotalBoostPercent)
	}
}

func TestComputeMiningProfile_IsPure(t *testing.T) {
	inputs := []domain.BoostInputs{
		levelOne(),
		{Level: 4, Upgrades: domain.UpgradeLevels{Rate: 3, Boost: 2, Time: 1}, LoginStreakDays: 30},
		{Level: 10, ReferralBoostPercent: 25, NFT: domain.NFTBoosts{MiningRate: 7.5}},
	}
	for _, in := range inputs {
		a := ComputeMiningProfile(in)
		b := ComputeMiningProfile(in)
		if a != b {
			t.Errorf("ComputeMiningProfile(%+v) not deterministic: %+v vs %+v", in, a, b)
		}
		if a.EffectiveDurationHours < 1 {
			t.Errorf("ComputeMiningProfile(%+v) duration %v < 1", in, a.EffectiveDurationHours)
		}
	}
}
