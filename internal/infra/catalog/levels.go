// Package catalog holds the static level and upgrade tables.
// Lookups are pure and never fail: out-of-range inputs are clamped.
package catalog

import (
	"math"

	"github.com/tutu-network/idlemine/internal/domain"
)

// Levels is the level table, ordered by XPMin. The ranges partition the
// non-negative integers: each XPMax equals the next XPMin.
var Levels = []domain.LevelInfo{
	{Level: 1, XPMin: 0, XPMax: 100, BaseRate: 1.0, BaseDurationHours: 2, BaseBoostPercent: 0},
	{Level: 2, XPMin: 100, XPMax: 300, BaseRate: 1.5, BaseDurationHours: 2, BaseBoostPercent: 2},
	{Level: 3, XPMin: 300, XPMax: 700, BaseRate: 2.0, BaseDurationHours: 3, BaseBoostPercent: 4},
	{Level: 4, XPMin: 700, XPMax: 1500, BaseRate: 2.5, BaseDurationHours: 3, BaseBoostPercent: 6},
	{Level: 5, XPMin: 1500, XPMax: 3000, BaseRate: 3.0, BaseDurationHours: 4, BaseBoostPercent: 8},
	{Level: 6, XPMin: 3000, XPMax: 6000, BaseRate: 4.0, BaseDurationHours: 4, BaseBoostPercent: 10},
	{Level: 7, XPMin: 6000, XPMax: 12000, BaseRate: 5.0, BaseDurationHours: 5, BaseBoostPercent: 12},
	{Level: 8, XPMin: 12000, XPMax: 25000, BaseRate: 6.5, BaseDurationHours: 6, BaseBoostPercent: 15},
	{Level: 9, XPMin: 25000, XPMax: 50000, BaseRate: 8.0, BaseDurationHours: 7, BaseBoostPercent: 18},
	{Level: 10, XPMin: 50000, XPMax: math.MaxInt64, BaseRate: 10.0, BaseDurationHours: 8, BaseBoostPercent: 20},
}

// LevelFor returns the level whose range contains xp.
// Negative experience maps to level 1.
func LevelFor(xp int64) domain.LevelInfo {
	if xp < 0 {
		return Levels[0]
	}
	for _, l := range Levels {
		if l.Contains(xp) {
			return l
		}
	}
	return Levels[len(Levels)-1]
}

// Level returns the table row for a level number, clamped to [1, max].
func Level(n int) domain.LevelInfo {
	switch {
	case n < 1:
		return Levels[0]
	case n > len(Levels):
		return Levels[len(Levels)-1]
	}
	return Levels[n-1]
}

// MaxLevel is the highest reachable level.
func MaxLevel() int { return len(Levels) }

// LevelProgress describes where xp sits inside its level.
type LevelProgress struct {
	domain.LevelInfo
	Experience int64   `json:"experience"`
	Percent    float64 `json:"progress_percent"`
	XPToNext   int64   `json:"xp_to_next"`
}

// Progress computes level progress for xp. The top level always reports 100%.
func Progress(xp int64) LevelProgress {
	l := LevelFor(xp)
	if xp < 0 {
		xp = 0
	}
	p := LevelProgress{LevelInfo: l, Experience: xp}
	if l.IsMax() {
		p.Percent = 100
		return p
	}
	span := l.XPMax - l.XPMin
	p.Percent = 100 * float64(xp-l.XPMin) / float64(span)
	p.XPToNext = l.XPMax - xp
	return p
}
