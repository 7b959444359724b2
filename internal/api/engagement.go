package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/idlemine/internal/app/engagement"
	"github.com/tutu-network/idlemine/internal/app/mining"
	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Engagement API ─────────────────────────────────────────────────────────
// Everything around the mining loop that moves its inputs.
//
// POST /api/users/{id}/login                          record today's login
// GET  /api/users/{id}/level                          level, XP, progress
// GET  /api/users/{id}/upgrades                       next tier per track
// POST /api/users/{id}/upgrades/{track}               buy the next tier
// GET  /api/users/{id}/collectibles                   collectibles + slots
// POST /api/users/{id}/collectibles                   grant a collectible
// POST /api/users/{id}/collectibles/{cid}/activate    start its boost window
// GET  /api/users/{id}/referrals                      referees + boost
// POST /api/users/{id}/referrals                      {"referee"}

// EngagementAPI holds references to all engagement services.
type EngagementAPI struct {
	Streak       *engagement.StreakService
	Level        *engagement.LevelService
	Upgrades     *engagement.UpgradeService
	Collectibles *engagement.CollectibleService
	Referrals    *engagement.ReferralService
}

// HandleLogin records a login for today.
func (e *EngagementAPI) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if e.Streak == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	u, err := e.Streak.RecordLogin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"login_streak_days":    u.LoginStreakDays,
		"longest_streak_days":  u.LongestStreakDays,
		"last_login_date":      u.LastLoginDate.Format("2006-01-02"),
		"streak_bonus_percent": mining.StreakBonusPercent(u.LoginStreakDays),
	})
}

// HandleLevel returns current level and XP progress.
func (e *EngagementAPI) HandleLevel(w http.ResponseWriter, r *http.Request) {
	if e.Level == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	p, err := e.Level.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpgradeOptions lists the next purchasable tier per track.
func (e *EngagementAPI) HandleUpgradeOptions(w http.ResponseWriter, r *http.Request) {
	if e.Upgrades == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	opts, err := e.Upgrades.Options(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"upgrades": opts,
	})
}

// HandlePurchaseUpgrade buys the next tier of a track.
func (e *EngagementAPI) HandlePurchaseUpgrade(w http.ResponseWriter, r *http.Request) {
	if e.Upgrades == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	track, err := domain.ParseUpgradeTrack(chi.URLParam(r, "track"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	u, tier, err := e.Upgrades.Purchase(r.Context(), chi.URLParam(r, "id"), track)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"track": track,
		"tier":  tier,
		"user":  u,
	})
}

// HandleListCollectibles lists a user's collectibles and slot usage.
func (e *EngagementAPI) HandleListCollectibles(w http.ResponseWriter, r *http.Request) {
	if e.Collectibles == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	userID := chi.URLParam(r, "id")
	total, used, err := e.Collectibles.Slots(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	list, err := e.Collectibles.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	boost, err := e.Collectibles.CalculateTotalBoost(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.Collectible{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collectibles": list,
		"slots_total":  total,
		"slots_used":   used,
		"active_boost": boost,
	})
}

// HandleGrantCollectible gives a user a new collectible.
func (e *EngagementAPI) HandleGrantCollectible(w http.ResponseWriter, r *http.Request) {
	if e.Collectibles == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	var req engagement.GrantRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := e.Collectibles.Grant(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleActivateCollectible starts a collectible's boost window.
func (e *EngagementAPI) HandleActivateCollectible(w http.ResponseWriter, r *http.Request) {
	if e.Collectibles == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	c, err := e.Collectibles.Activate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "cid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleListReferrals lists referees with the current referral boost.
func (e *EngagementAPI) HandleListReferrals(w http.ResponseWriter, r *http.Request) {
	if e.Referrals == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	userID := chi.URLParam(r, "id")
	refs, err := e.Referrals.Referees(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	active, err := e.Referrals.ActiveCount(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if refs == nil {
		refs = []domain.Referral{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"referees":      refs,
		"active":        active,
		"boost_percent": domain.ReferralBoostPercent(active),
	})
}

// HandleAddReferral records that the path user referred the body's referee.
func (e *EngagementAPI) HandleAddReferral(w http.ResponseWriter, r *http.Request) {
	if e.Referrals == nil {
		writeError(w, http.StatusServiceUnavailable, "engagement not initialized")
		return
	}
	var req struct {
		Referee string `json:"referee"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	referee := strings.TrimSpace(req.Referee)
	if referee == "" {
		writeError(w, http.StatusBadRequest, "referee is required")
		return
	}
	referrer := chi.URLParam(r, "id")
	if err := e.Referrals.Add(r.Context(), referrer, referee); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"referrer_id": referrer,
		"referee_id":  referee,
	})
}
