package engagement

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Referrals ──────────────────────────────────────────────────────────────

// ReferralService links referees to referrers and converts active referees
// into a mining boost. It is the mining engine's referral provider.
type ReferralService struct {
	store domain.ReferralStore
	now   Clock
}

// NewReferralService creates a referral service.
func NewReferralService(store domain.ReferralStore) *ReferralService {
	return &ReferralService{store: store, now: time.Now}
}

var _ domain.ReferralBoostProvider = (*ReferralService)(nil)

// Add records that referrerID invited refereeID.
func (s *ReferralService) Add(ctx context.Context, referrerID, refereeID string) error {
	if err := s.store.InsertReferral(ctx, referrerID, refereeID, s.now().UTC()); err != nil {
		return err
	}
	log.WithFields(log.Fields{"referrer": referrerID, "referee": refereeID}).Info("referral added")
	return nil
}

// Referees lists the users referrerID invited.
func (s *ReferralService) Referees(ctx context.Context, referrerID string) ([]domain.Referral, error) {
	return s.store.ListReferees(ctx, referrerID)
}

// ActiveCount is the number of referees mining right now.
func (s *ReferralService) ActiveCount(ctx context.Context, referrerID string) (int, error) {
	return s.store.ActiveReferralCount(ctx, referrerID)
}

// ReferralBoostPercent implements domain.ReferralBoostProvider.
func (s *ReferralService) ReferralBoostPercent(ctx context.Context, userID string) (float64, error) {
	n, err := s.store.ActiveReferralCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return domain.ReferralBoostPercent(n), nil
}
