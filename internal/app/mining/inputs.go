package mining

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/catalog"
	"github.com/tutu-network/idlemine/internal/infra/observability"
)

// InputSource supplies the live boost inputs for one user.
type InputSource interface {
	Inputs(ctx context.Context, userID string) (domain.BoostInputs, error)
}

// InputSourceFunc adapts a function to InputSource.
type InputSourceFunc func(ctx context.Context, userID string) (domain.BoostInputs, error)

// Inputs calls f.
func (f InputSourceFunc) Inputs(ctx context.Context, userID string) (domain.BoostInputs, error) {
	return f(ctx, userID)
}

// LedgerInputs reads level, upgrades and streak from the user ledger and
// asks the NFT and referral providers for their contributions.
// Provider failures contribute zero; only a ledger failure is an error.
type LedgerInputs struct {
	Users     domain.UserStore
	NFT       domain.NFTBoostProvider      // optional
	Referrals domain.ReferralBoostProvider // optional
}

// Inputs implements InputSource.
func (l *LedgerInputs) Inputs(ctx context.Context, userID string) (domain.BoostInputs, error) {
	u, err := l.Users.GetUser(ctx, userID)
	if err != nil {
		return domain.BoostInputs{}, fmt.Errorf("%w: %w", domain.ErrLedgerRead, err)
	}

	in := domain.BoostInputs{
		Level:           catalog.LevelFor(u.Experience).Level,
		Upgrades:        u.Upgrades,
		LoginStreakDays: u.LoginStreakDays,
	}

	if l.NFT != nil {
		nft, err := l.NFT.CalculateTotalBoost(ctx, userID)
		if err != nil {
			log.WithFields(log.Fields{"user": userID, "error": err}).Warn("nft boost unavailable, using zero")
			observability.BoostProviderErrors.WithLabelValues("nft").Inc()
		} else {
			in.NFT = nft
		}
	}
	if l.Referrals != nil {
		pct, err := l.Referrals.ReferralBoostPercent(ctx, userID)
		if err != nil {
			log.WithFields(log.Fields{"user": userID, "error": err}).Warn("referral boost unavailable, using zero")
			observability.BoostProviderErrors.WithLabelValues("referral").Inc()
		} else {
			in.ReferralBoostPercent = pct
		}
	}
	return in, nil
}
