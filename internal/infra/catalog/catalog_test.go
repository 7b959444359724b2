package catalog

import (
	"testing"

	"github.com/tutu-network/idlemine/internal/domain"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{-5, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{49999, 9},
		{50000, 10},
		{1 << 40, 10},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.xp).Level; got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestLevelsPartitionExperience(t *testing.T) {
	if Levels[0].XPMin != 0 {
		t.Fatalf("first level starts at %d, want 0", Levels[0].XPMin)
	}
	for i := 1; i < len(Levels); i++ {
		prev, cur := Levels[i-1], Levels[i]
		if prev.XPMax != cur.XPMin {
			t.Errorf("gap between level %d (max %d) and %d (min %d)", prev.Level, prev.XPMax, cur.Level, cur.XPMin)
		}
		if cur.Level != prev.Level+1 {
			t.Errorf("level numbers not sequential at index %d", i)
		}
		if cur.BaseRate < prev.BaseRate {
			t.Errorf("level %d base rate %v below level %d", cur.Level, cur.BaseRate, prev.Level)
		}
	}
	if !Levels[len(Levels)-1].IsMax() {
		t.Error("last level must be open ended")
	}
}

func TestLevelOne(t *testing.T) {
	l := Level(1)
	if l.BaseRate != 1.0 || l.BaseDurationHours != 2 || l.BaseBoostPercent != 0 {
		t.Errorf("Level(1) = %+v, want rate 1.0, 2h, 0%%", l)
	}
	if Level(0).Level != 1 || Level(99).Level != MaxLevel() {
		t.Error("Level() must clamp out-of-range numbers")
	}
}

func TestProgress(t *testing.T) {
	p := Progress(200)
	if p.Level != 2 || p.Percent != 50 || p.XPToNext != 100 {
		t.Errorf("Progress(200) = %+v, want level 2, 50%%, 100 to next", p)
	}
	top := Progress(60000)
	if top.Percent != 100 || top.XPToNext != 0 {
		t.Errorf("Progress(top) = %+v, want 100%% and nothing to next", top)
	}
}

func TestLookupUpgrade(t *testing.T) {
	tier := Lookup(domain.TrackRate, 1)
	if tier == nil || tier.Bonus != 1 {
		t.Fatalf("Lookup(rate, 1) = %+v, want +1/hr", tier)
	}
	tier = Lookup(domain.TrackBoost, 1)
	if tier == nil || tier.Bonus != 5 {
		t.Fatalf("Lookup(boost, 1) = %+v, want +5%%", tier)
	}
	if Lookup(domain.TrackRate, 0) != nil {
		t.Error("Lookup(rate, 0) must be nil")
	}
	if Lookup(domain.TrackRate, MaxUpgradeLevel(domain.TrackRate)+1) != nil {
		t.Error("Lookup past the end must be nil")
	}
	if Lookup("bogus", 1) != nil {
		t.Error("Lookup of unknown track must be nil")
	}
}

func TestEveryTierHasACost(t *testing.T) {
	for _, track := range domain.AllTracks() {
		tiers := Tiers(track)
		if len(tiers) == 0 {
			t.Errorf("track %s is empty", track)
		}
		for i, tier := range tiers {
			if tier.Level != i+1 {
				t.Errorf("%s tier %d has level %d", track, i, tier.Level)
			}
			if tier.Cost.IsFree() {
				t.Errorf("%s level %d is free", track, tier.Level)
			}
			if tier.Bonus <= 0 {
				t.Errorf("%s level %d has bonus %v", track, tier.Level, tier.Bonus)
			}
		}
	}
}

func TestCumulativeBonus(t *testing.T) {
	tests := []struct {
		track domain.UpgradeTrack
		level int
		want  float64
	}{
		{domain.TrackRate, 0, 0},
		{domain.TrackRate, 1, 1},
		{domain.TrackRate, 3, 4},
		{domain.TrackRate, 100, 18},
		{domain.TrackBoost, 2, 10},
		{domain.TrackTime, 2, 30},
		{domain.TrackRate, -1, 0},
	}
	for _, tt := range tests {
		if got := CumulativeBonus(tt.track, tt.level); got != tt.want {
			t.Errorf("CumulativeBonus(%s, %d) = %v, want %v", tt.track, tt.level, got, tt.want)
		}
	}
}

func TestNextAndSlots(t *testing.T) {
	if n := Next(domain.TrackTime, 0); n == nil || n.Level != 1 {
		t.Errorf("Next(time, 0) = %+v, want level 1", n)
	}
	if n := Next(domain.TrackTime, MaxUpgradeLevel(domain.TrackTime)); n != nil {
		t.Errorf("Next at max = %+v, want nil", n)
	}
	if got := NFTSlots(0); got != 1 {
		t.Errorf("NFTSlots(0) = %d, want 1", got)
	}
	if got := NFTSlots(4); got != 6 {
		t.Errorf("NFTSlots(4) = %d, want 6", got)
	}
}
