package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Mining Events ──────────────────────────────────────────────────────────

// MiningEventType names a session lifecycle transition.
type MiningEventType string

const (
	EventStarted       MiningEventType = "started"
	EventResumed       MiningEventType = "resumed"
	EventTick          MiningEventType = "tick"
	EventCollected     MiningEventType = "collected"
	EventCancelled     MiningEventType = "cancelled"
	EventCollectFailed MiningEventType = "collect_failed"
)

// MiningEvent is emitted by a session engine on every transition.
type MiningEvent struct {
	Type        MiningEventType `json:"type"`
	UserID      string          `json:"user_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Accrued     float64         `json:"accrued"`
	Reward      decimal.Decimal `json:"reward"`
	RatePerHour float64         `json:"rate_per_hour,omitempty"`
	Progress    float64         `json:"progress_percent"`
	Error       string          `json:"error,omitempty"`
	At          time.Time       `json:"at"`
}

// EventSink receives mining events. Publish must not block.
type EventSink interface {
	Publish(MiningEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(MiningEvent)

// Publish calls f(ev).
func (f EventSinkFunc) Publish(ev MiningEvent) { f(ev) }

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

// Publish forwards ev to every non-nil sink.
func (m MultiSink) Publish(ev MiningEvent) {
	for _, s := range m {
		if s != nil {
			s.Publish(ev)
		}
	}
}
