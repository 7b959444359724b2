// Package engagement holds the player-facing services around the mining
// core: login streaks, levels, upgrade purchases, collectibles and
// referrals. Collectibles and referrals double as the boost providers the
// mining engine reads on every tick.
package engagement

import (
	"context"
	"time"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/catalog"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func orNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak
// ═══════════════════════════════════════════════════════════════════════════

// StreakService records daily logins.
type StreakService struct {
	users domain.UserStore
	now   Clock
}

// NewStreakService creates a streak service.
func NewStreakService(users domain.UserStore) *StreakService {
	return &StreakService{users: users, now: time.Now}
}

// WithClock replaces the clock used by RecordLogin.
func (s *StreakService) WithClock(c Clock) *StreakService {
	s.now = orNow(c)
	return s
}

// RecordLogin counts a login today and returns the updated user.
func (s *StreakService) RecordLogin(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.RecordLogin(ctx, userID, s.now().UTC())
}

// ═══════════════════════════════════════════════════════════════════════════
// Level
// ═══════════════════════════════════════════════════════════════════════════

// LevelService derives level progress from experience.
type LevelService struct {
	users domain.UserStore
}

// NewLevelService creates a level service.
func NewLevelService(users domain.UserStore) *LevelService {
	return &LevelService{users: users}
}

// Progress returns the user's level and progress toward the next one.
func (s *LevelService) Progress(ctx context.Context, userID string) (catalog.LevelProgress, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return catalog.LevelProgress{}, err
	}
	return catalog.Progress(u.Experience), nil
}
