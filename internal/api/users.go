package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tutu-network/idlemine/internal/app/mining"
	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/catalog"
)

// ─── Users, Profile, Ledger, Catalog ────────────────────────────────────────
//
// POST /api/users                  create a user ({"id"} optional)
// GET  /api/users/{id}             balances, experience, upgrades, streak
// GET  /api/users/{id}/profile     composed mining profile + level progress
// GET  /api/users/{id}/ledger      ledger history, newest first (?limit=)
// GET  /api/catalog/levels         level table
// GET  /api/catalog/upgrades       upgrade tiers per track

const maxUserIDLen = 64

// handleCreateUser creates a user with zero balances.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxUserIDLen || strings.ContainsAny(id, "/?# ") {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	u, err := s.users.CreateUser(r.Context(), id, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleProfile composes the profile a session started now would get.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	u, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	in, err := s.inputs.Inputs(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":              userID,
		"profile":              mining.ComputeMiningProfile(in),
		"level":                catalog.Progress(u.Experience),
		"streak_bonus_percent": mining.StreakBonusPercent(in.LoginStreakDays),
		"inputs":               in,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := s.users.ListLedger(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func (s *Server) handleCatalogLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"levels": catalog.Levels,
	})
}

func (s *Server) handleCatalogUpgrades(w http.ResponseWriter, r *http.Request) {
	tracks := make(map[domain.UpgradeTrack][]domain.UpgradeTier)
	for _, t := range domain.AllTracks() {
		tracks[t] = catalog.Tiers(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
	})
}
