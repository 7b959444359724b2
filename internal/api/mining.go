package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/idlemine/internal/app/mining"
	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Mining API ─────────────────────────────────────────────────────────────
//
// GET  /api/mining                       engine counts
// GET  /api/mining/events                recent transitions (?n=, ?ticks=true)
// GET  /api/users/{id}/mining            session snapshot, progress, remaining
// POST /api/users/{id}/mining/start      open a session
// POST /api/users/{id}/mining/collect    finalize and credit (Idempotency-Key)
// POST /api/users/{id}/mining/cancel     discard the session

// engineFor returns the engine of an existing user.
func (s *Server) engineFor(ctx context.Context, userID string) (*mining.Engine, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.miner.Engine(userID), nil
}

func (s *Server) handleMiningOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engines":         len(s.miner.Users()),
		"active_sessions": s.miner.ActiveCount(),
	})
}

func (s *Server) handleMiningEvents(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	withTicks := r.URL.Query().Get("ticks") == "true"
	events := s.events.Recent(n, !withTicks)

	if user := r.URL.Query().Get("user"); user != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.UserID == user {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  s.events.Count(),
	})
}

func (s *Server) handleMiningStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	if e, ok := s.miner.Lookup(userID); ok {
		writeJSON(w, http.StatusOK, e.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, mining.Status{UserID: userID})
}

func (s *Server) handleMiningStart(w http.ResponseWriter, r *http.Request) {
	e, err := s.engineFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	started, err := e.Start(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if started {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"started": started,
		"status":  e.Snapshot(),
	})
}

func (s *Server) handleMiningCollect(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	e, err := s.engineFor(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	resp := s.collects.Do(userID, key, func() (collectResponse, bool) {
		sessionID := e.Session().ID
		reward, err := e.Collect(r.Context())
		if err != nil {
			body := map[string]interface{}{
				"error": map[string]interface{}{
					"message":   err.Error(),
					"type":      "error",
					"retryable": false,
				},
			}
			status := statusFor(err)
			if errors.Is(err, domain.ErrLedgerWrite) || errors.Is(err, domain.ErrLedgerRead) {
				status = http.StatusServiceUnavailable
				body["error"].(map[string]interface{})["type"] = "ledger_unavailable"
				body["error"].(map[string]interface{})["retryable"] = true
			}
			return collectResponse{Status: status, Body: body}, false
		}
		return collectResponse{
			Status: http.StatusOK,
			Body: map[string]interface{}{
				"user_id":    userID,
				"session_id": sessionID,
				"reward":     reward,
				"experience": domain.ExperienceForReward(reward),
				"collected":  reward.IsPositive(),
				"active":     e.IsActive(),
			},
		}, true
	})
	if key != "" {
		w.Header().Set("Idempotency-Key", key)
	}
	writeJSON(w, resp.Status, resp.Body)
}

func (s *Server) handleMiningCancel(w http.ResponseWriter, r *http.Request) {
	e, err := s.engineFor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	wasActive := e.IsActive()
	if err := e.Cancel(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cancelled": wasActive,
		"reward":    "0",
	})
}
