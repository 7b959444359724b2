package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Engagement API Tests ───────────────────────────────────────────────────

func TestEngagementAPI_Login(t *testing.T) {
	env := setupServer(t)
	env.createUser(t, "alice")

	for day := 1; day <= 7; day++ {
		code, body := env.do(t, http.MethodPost, "/api/users/alice/login", nil)
		if code != http.StatusOK {
			t.Fatalf("day %d: expected 200, got %d", day, code)
		}
		if body["login_streak_days"] != float64(day) {
			t.Errorf("day %d: login_streak_days = %v", day, body["login_streak_days"])
		}
		if day == 7 && body["streak_bonus_percent"] != float64(5) {
			t.Errorf("7-day streak bonus = %v, want 5", body["streak_bonus_percent"])
		}
		env.clock.Advance(24 * time.Hour)
	}

	code, _ := env.do(t, http.MethodPost, "/api/users/ghost/login", nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", code)
	}
}

func TestEngagementAPI_Level(t *testing.T) {
	env := setupServer(t)
	env.createUser(t, "alice")

	code, body := env.do(t, http.MethodGet, "/api/users/alice/level", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["level"] != float64(1) || body["xp_to_next"] != float64(100) {
		t.Errorf("level = %v, xp_to_next = %v", body["level"], body["xp_to_next"])
	}
}

func TestEngagementAPI_Upgrades(t *testing.T) {
	env := setupServer(t)
	env.createUser(t, "alice")
	ctx := context.Background()

	code, body := env.do(t, http.MethodPost, "/api/users/alice/upgrades/rate", nil)
	if code != http.StatusPaymentRequired {
		t.Fatalf("broke purchase: expected 402, got %d (%v)", code, body)
	}

	env.db.Grant(ctx, "alice", domain.CurrencyDollars, decimal.NewFromInt(10), "test")
	code, body = env.do(t, http.MethodPost, "/api/users/alice/upgrades/rate", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
	tier := body["tier"].(map[string]interface{})
	if tier["level"] != float64(1) {
		t.Errorf("tier level = %v, want 1", tier["level"])
	}

	code, _ = env.do(t, http.MethodPost, "/api/users/alice/upgrades/warp", nil)
	if code != http.StatusBadRequest {
		t.Errorf("unknown track: expected 400, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/api/users/alice/upgrades", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if n := len(body["upgrades"].([]interface{})); n != 4 {
		t.Errorf("options = %d, want 4", n)
	}

	// The new rate level shows up in the composed profile.
	_, body = env.do(t, http.MethodGet, "/api/users/alice/profile", nil)
	profile := body["profile"].(map[string]interface{})
	if profile["total_rate_per_hour"] != float64(2) {
		t.Errorf("rate after upgrade = %v, want 2", profile["total_rate_per_hour"])
	}
}

func TestEngagementAPI_Collectibles(t *testing.T) {
	env := setupServer(t)
	env.createUser(t, "alice")

	code, body := env.do(t, http.MethodPost, "/api/users/alice/collectibles", map[string]interface{}{
		"name":           "Golden Pick",
		"boosts":         map[string]float64{"mining_rate": 10},
		"duration_hours": 24,
	})
	if code != http.StatusCreated {
		t.Fatalf("grant: expected 201, got %d (%v)", code, body)
	}
	id := body["id"].(string)

	code, _ = env.do(t, http.MethodPost, "/api/users/alice/collectibles", map[string]interface{}{"name": "bad"})
	if code != http.StatusBadRequest {
		t.Errorf("grant without duration: expected 400, got %d", code)
	}

	code, body = env.do(t, http.MethodPost, "/api/users/alice/collectibles/"+id+"/activate", nil)
	if code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d (%v)", code, body)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/alice/collectibles/"+id+"/activate", nil)
	if code != http.StatusConflict {
		t.Errorf("re-activate: expected 409, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/alice/collectibles/nope/activate", nil)
	if code != http.StatusNotFound {
		t.Errorf("missing collectible: expected 404, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/api/users/alice/collectibles", nil)
	if code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", code)
	}
	if body["slots_used"] != float64(1) || body["slots_total"] != float64(1) {
		t.Errorf("slots = %v/%v, want 1/1", body["slots_used"], body["slots_total"])
	}
	boost := body["active_boost"].(map[string]interface{})
	if boost["mining_rate"] != float64(10) {
		t.Errorf("active boost = %v", boost)
	}

	// The active collectible feeds the mining profile.
	_, body = env.do(t, http.MethodGet, "/api/users/alice/profile", nil)
	profile := body["profile"].(map[string]interface{})
	if profile["total_boost_percent"] != float64(10) {
		t.Errorf("boost with collectible = %v, want 10", profile["total_boost_percent"])
	}
}

func TestEngagementAPI_Referrals(t *testing.T) {
	env := setupServer(t)
	env.createUser(t, "alice")
	env.createUser(t, "bob")

	code, _ := env.do(t, http.MethodPost, "/api/users/alice/referrals", map[string]string{"referee": "bob"})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/alice/referrals", map[string]string{"referee": "bob"})
	if code != http.StatusConflict {
		t.Errorf("duplicate referral: expected 409, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/alice/referrals", map[string]string{"referee": "alice"})
	if code != http.StatusBadRequest {
		t.Errorf("self referral: expected 400, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/users/alice/referrals", map[string]string{})
	if code != http.StatusBadRequest {
		t.Errorf("missing referee: expected 400, got %d", code)
	}

	env.do(t, http.MethodPost, "/api/users/bob/mining/start", nil)
	_, body := env.do(t, http.MethodGet, "/api/users/alice/referrals", nil)
	if body["active"] != float64(1) || body["boost_percent"] != float64(5) {
		t.Errorf("referrals = %v, want 1 active at 5%%", body)
	}
}

func TestEngagementAPI_NotInitialized(t *testing.T) {
	api := &EngagementAPI{}
	handlers := []http.HandlerFunc{
		api.HandleLogin,
		api.HandleLevel,
		api.HandleUpgradeOptions,
		api.HandlePurchaseUpgrade,
		api.HandleListCollectibles,
		api.HandleGrantCollectible,
		api.HandleActivateCollectible,
		api.HandleListReferrals,
		api.HandleAddReferral,
	}
	for i, h := range handlers {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("handler %d: expected 503, got %d", i, w.Code)
		}
	}
}
