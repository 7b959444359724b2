package engagement

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/catalog"
	"github.com/tutu-network/idlemine/internal/infra/observability"
)

// ─── Upgrades ───────────────────────────────────────────────────────────────

// UpgradeOption is the next purchasable tier of one track.
type UpgradeOption struct {
	Track        domain.UpgradeTrack `json:"track"`
	CurrentLevel int                 `json:"current_level"`
	MaxLevel     int                 `json:"max_level"`
	Next         *domain.UpgradeTier `json:"next,omitempty"`
	Affordable   bool                `json:"affordable"`
}

// UpgradeService sells catalog upgrades against the user's balances.
type UpgradeService struct {
	users domain.UserStore
}

// NewUpgradeService creates an upgrade service.
func NewUpgradeService(users domain.UserStore) *UpgradeService {
	return &UpgradeService{users: users}
}

// Options lists the next tier of every track for a user.
func (s *UpgradeService) Options(ctx context.Context, userID string) ([]UpgradeOption, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]UpgradeOption, 0, len(domain.AllTracks()))
	for _, track := range domain.AllTracks() {
		current := u.Upgrades.Get(track)
		opt := UpgradeOption{
			Track:        track,
			CurrentLevel: current,
			MaxLevel:     catalog.MaxUpgradeLevel(track),
			Next:         catalog.Next(track, current),
		}
		if opt.Next != nil {
			opt.Affordable = u.CanAfford(opt.Next.Cost)
		}
		out = append(out, opt)
	}
	return out, nil
}

// Purchase buys the next tier of track. Only the next tier can be bought.
// The store applies the debit and level change atomically and rejects the
// purchase if another one moved the level first.
func (s *UpgradeService) Purchase(ctx context.Context, userID string, track domain.UpgradeTrack) (*domain.User, *domain.UpgradeTier, error) {
	if _, err := domain.ParseUpgradeTrack(string(track)); err != nil {
		return nil, nil, err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	current := u.Upgrades.Get(track)
	next := catalog.Next(track, current)
	if next == nil {
		return nil, nil, domain.ErrMaxUpgradeLevel
	}
	if !u.CanAfford(next.Cost) {
		return nil, nil, domain.ErrInsufficientFunds
	}
	if err := s.users.PurchaseUpgrade(ctx, userID, track, current, next.Cost); err != nil {
		return nil, nil, err
	}

	observability.UpgradesPurchased.WithLabelValues(string(track)).Inc()
	log.WithFields(log.Fields{
		"user":  userID,
		"track": track,
		"level": next.Level,
	}).Info("upgrade purchased")

	updated, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return updated, next, nil
}
