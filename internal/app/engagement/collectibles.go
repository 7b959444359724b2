package engagement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/catalog"
	"github.com/tutu-network/idlemine/internal/infra/observability"
)

// ─── Collectibles ───────────────────────────────────────────────────────────

// GrantRequest describes a collectible handed to a user.
type GrantRequest struct {
	Name          string           `json:"name"`
	Boosts        domain.NFTBoosts `json:"boosts"`
	DurationHours float64          `json:"duration_hours"`
}

// Validate checks a grant request.
func (g GrantRequest) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("collectible name is required")
	}
	if g.DurationHours <= 0 {
		return fmt.Errorf("duration_hours must be positive, got %v", g.DurationHours)
	}
	b := g.Boosts
	if b.MiningRate < 0 || b.MiningTime < 0 || b.RewardMultiplier < 0 || b.Special < 0 {
		return fmt.Errorf("boost percents must not be negative")
	}
	return nil
}

// CollectibleService grants and activates collectibles and reports the
// summed boosts of the active ones. It is the mining engine's NFT provider.
type CollectibleService struct {
	store domain.CollectibleStore
	users domain.UserStore
	now   Clock
}

// NewCollectibleService creates a collectible service.
func NewCollectibleService(store domain.CollectibleStore, users domain.UserStore) *CollectibleService {
	return &CollectibleService{store: store, users: users, now: time.Now}
}

// WithClock replaces the clock used for activation and expiry.
func (s *CollectibleService) WithClock(c Clock) *CollectibleService {
	s.now = orNow(c)
	return s
}

var _ domain.NFTBoostProvider = (*CollectibleService)(nil)

// Grant gives userID a new, inactive collectible.
func (s *CollectibleService) Grant(ctx context.Context, userID string, req GrantRequest) (*domain.Collectible, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	c := domain.Collectible{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Boosts:        req.Boosts,
		DurationHours: req.DurationHours,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.InsertCollectible(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Activate starts a collectible owned by userID if a slot is free.
func (s *CollectibleService) Activate(ctx context.Context, userID, collectibleID string) (*domain.Collectible, error) {
	c, err := s.store.GetCollectible(ctx, collectibleID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, domain.ErrCollectibleNotFound
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	slots := catalog.NFTSlots(u.Upgrades.NFTSlots)
	activated, err := s.store.ActivateCollectible(ctx, collectibleID, s.now(), slots)
	if err != nil {
		return nil, err
	}
	observability.CollectiblesActivated.Inc()
	log.WithFields(log.Fields{
		"user":        userID,
		"collectible": collectibleID,
		"expires_at":  activated.ExpiresAt,
	}).Info("collectible activated")
	return activated, nil
}

// List returns every collectible of a user.
func (s *CollectibleService) List(ctx context.Context, userID string) ([]domain.Collectible, error) {
	return s.store.ListCollectibles(ctx, userID)
}

// Slots reports how many collectibles the user may run at once and how
// many are running now.
func (s *CollectibleService) Slots(ctx context.Context, userID string) (total, used int, err error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	list, err := s.store.ListCollectibles(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	now := s.now()
	for _, c := range list {
		if c.IsActive(now) {
			used++
		}
	}
	return catalog.NFTSlots(u.Upgrades.NFTSlots), used, nil
}

// CalculateTotalBoost sums the boosts of the user's active collectibles.
func (s *CollectibleService) CalculateTotalBoost(ctx context.Context, userID string) (domain.NFTBoosts, error) {
	list, err := s.store.ListCollectibles(ctx, userID)
	if err != nil {
		return domain.NFTBoosts{}, err
	}
	now := s.now()
	var total domain.NFTBoosts
	for _, c := range list {
		if c.IsActive(now) {
			total = total.Add(c.Boosts)
		}
	}
	return total, nil
}
