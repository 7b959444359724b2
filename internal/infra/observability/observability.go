// Package observability exposes Prometheus metrics for the mining core and
// an in-memory ring buffer of recent mining events for inspection.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Event Log: recent mining transitions, newest last
// ═══════════════════════════════════════════════════════════════════════════

// EventLogConfig configures the event log.
type EventLogConfig struct {
	Enabled   bool
	MaxEvents int // ring buffer size (default 1_000)
}

// DefaultEventLogConfig returns production defaults.
func DefaultEventLogConfig() EventLogConfig {
	return EventLogConfig{
		Enabled:   true,
		MaxEvents: 1_000,
	}
}

// EventLog keeps the most recent mining events. It implements
// domain.EventSink.
type EventLog struct {
	mu        sync.Mutex
	events    []domain.MiningEvent
	maxEvents int
	enabled   bool
}

// NewEventLog creates an event log.
func NewEventLog(cfg EventLogConfig) *EventLog {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1_000
	}
	return &EventLog{
		events:    make([]domain.MiningEvent, 0, cfg.MaxEvents),
		maxEvents: cfg.MaxEvents,
		enabled:   cfg.Enabled,
	}
}

// Publish records ev, evicting the oldest event when full.
func (l *EventLog) Publish(ev domain.MiningEvent) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.maxEvents {
		l.events = l.events[1:]
	}
	l.events = append(l.events, ev)
}

// Recent returns up to n of the newest events, oldest first.
// Tick events are skipped when skipTicks is set.
func (l *EventLog) Recent(n int, skipTicks bool) []domain.MiningEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return nil
	}
	out := make([]domain.MiningEvent, 0, n)
	for i := len(l.events) - 1; i >= 0 && len(out) < n; i-- {
		if skipTicks && l.events[i].Type == domain.EventTick {
			continue
		}
		out = append(out, l.events[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Count returns the number of buffered events.
func (l *EventLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Reset clears the buffer.
func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = l.events[:0]
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Session Metrics ────────────────────────────────────────────────────────

// SessionTransitions counts engine transitions by event type.
var SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "idlemine",
	Subsystem: "mining",
	Name:      "session_transitions_total",
	Help:      "Mining session transitions by type (started, resumed, collected, cancelled, collect_failed).",
}, []string{"type"})

// ActiveSessions tracks running sessions.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "idlemine",
	Subsystem: "mining",
	Name:      "active_sessions",
	Help:      "Current number of active mining sessions.",
})

// RewardAmount tracks collected rewards in Dollars.
var RewardAmount = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "idlemine",
	Subsystem: "mining",
	Name:      "reward_dollars",
	Help:      "Distribution of collected mining rewards.",
	Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
})

// TicksSkipped counts ticks skipped because inputs could not be read.
var TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "idlemine",
	Subsystem: "mining",
	Name:      "ticks_skipped_total",
	Help:      "Ticks skipped because the user ledger could not be read.",
})

// BoostProviderErrors counts boost provider failures that fell back to zero.
var BoostProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "idlemine",
	Subsystem: "mining",
	Name:      "boost_provider_errors_total",
	Help:      "Boost provider failures treated as zero contribution.",
}, []string{"provider"})

// ─── Engagement Metrics ─────────────────────────────────────────────────────

// UpgradesPurchased counts upgrade purchases by track.
var UpgradesPurchased = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "idlemine",
	Subsystem: "engagement",
	Name:      "upgrades_purchased_total",
	Help:      "Upgrade purchases by track.",
}, []string{"track"})

// CollectiblesActivated counts collectible activations.
var CollectiblesActivated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "idlemine",
	Subsystem: "engagement",
	Name:      "collectibles_activated_total",
	Help:      "Collectibles activated.",
})

// ─── Live Feed Metrics ──────────────────────────────────────────────────────

// LiveClients tracks connected live-feed clients by transport.
var LiveClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "idlemine",
	Subsystem: "live",
	Name:      "clients",
	Help:      "Connected live feed clients by transport (sse, websocket).",
}, []string{"transport"})

// ─── Metrics Sink ───────────────────────────────────────────────────────────

// MetricsSink turns mining events into metric updates.
type MetricsSink struct{}

// Publish implements domain.EventSink.
func (MetricsSink) Publish(ev domain.MiningEvent) {
	if ev.Type == domain.EventTick {
		return
	}
	SessionTransitions.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case domain.EventStarted, domain.EventResumed:
		ActiveSessions.Inc()
	case domain.EventCancelled:
		ActiveSessions.Dec()
	case domain.EventCollected:
		ActiveSessions.Dec()
		if ev.Reward.IsPositive() {
			RewardAmount.Observe(ev.Reward.InexactFloat64())
		}
	}
}
