// Package api provides the HTTP server for idlemine: users, mining
// sessions, engagement services and the live mining feed.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/idlemine/internal/app/mining"
	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/observability"
	"github.com/tutu-network/idlemine/internal/logging"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// requestTimeout bounds every non-streaming request.
const requestTimeout = 30 * time.Second

// Server is the idlemine HTTP API server.
type Server struct {
	users          domain.UserStore
	miner          *mining.Manager
	inputs         mining.InputSource
	metricsEnabled bool
	engagement     *EngagementAPI          // nil disables /login, /upgrades, /collectibles, /referrals
	liveHub        *LiveHub                // nil disables /api/mining/live and /ws
	events         *observability.EventLog // nil disables /api/mining/events
	collects       *collectCache
}

// NewServer creates a new API server.
func NewServer(users domain.UserStore, miner *mining.Manager, inputs mining.InputSource) *Server {
	return &Server{
		users:    users,
		miner:    miner,
		inputs:   inputs,
		collects: newCollectCache(defaultCollectCacheSize),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetEngagement sets the engagement API services.
func (s *Server) SetEngagement(e *EngagementAPI) { s.engagement = e }

// SetLiveHub sets the live mining feed hub.
func (s *Server) SetLiveHub(h *LiveHub) { s.liveHub = h }

// LiveHub returns the live mining feed hub.
func (s *Server) LiveHub() *LiveHub { return s.liveHub }

// SetEventLog sets the recent-events ring buffer.
func (s *Server) SetEventLog(l *observability.EventLog) { s.events = l }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Streaming endpoints live outside the request timeout.
	if s.liveHub != nil {
		r.Get("/api/mining/live", s.liveHub.HandleSSE)
		r.Get("/api/mining/ws", s.liveHub.HandleWebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"version": Version,
			})
		})

		r.Route("/api/catalog", func(r chi.Router) {
			r.Get("/levels", s.handleCatalogLevels)
			r.Get("/upgrades", s.handleCatalogUpgrades)
		})

		r.Get("/api/mining", s.handleMiningOverview)
		if s.events != nil {
			r.Get("/api/mining/events", s.handleMiningEvents)
		}

		r.Post("/api/users", s.handleCreateUser)
		r.Route("/api/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Get("/profile", s.handleProfile)
			r.Get("/ledger", s.handleLedger)

			r.Route("/mining", func(r chi.Router) {
				r.Get("/", s.handleMiningStatus)
				r.Post("/start", s.handleMiningStart)
				r.Post("/collect", s.handleMiningCollect)
				r.Post("/cancel", s.handleMiningCancel)
			})

			if e := s.engagement; e != nil {
				r.Post("/login", e.HandleLogin)
				r.Get("/level", e.HandleLevel)
				r.Get("/upgrades", e.HandleUpgradeOptions)
				r.Post("/upgrades/{track}", e.HandlePurchaseUpgrade)
				r.Get("/collectibles", e.HandleListCollectibles)
				r.Post("/collectibles", e.HandleGrantCollectible)
				r.Post("/collectibles/{cid}/activate", e.HandleActivateCollectible)
				r.Get("/referrals", e.HandleListReferrals)
				r.Post("/referrals", e.HandleAddReferral)
			}
		})
	})

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a service error onto a status code. Ledger
// failures are reported as retryable.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status != http.StatusServiceUnavailable {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message":   err.Error(),
			"type":      "ledger_unavailable",
			"retryable": true,
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrCollectibleNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownTrack),
		errors.Is(err, domain.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrAlreadyReferred),
		errors.Is(err, domain.ErrMaxUpgradeLevel),
		errors.Is(err, domain.ErrUpgradeConflict),
		errors.Is(err, domain.ErrCollectibleActive),
		errors.Is(err, domain.ErrCollectibleExpired),
		errors.Is(err, domain.ErrNoFreeSlot):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLedgerWrite),
		errors.Is(err, domain.ErrLedgerRead):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// readJSON decodes an optional JSON body into v. An empty body is not an error.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
