package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Observability Tests
// ═══════════════════════════════════════════════════════════════════════════

// ─── Event Log ──────────────────────────────────────────────────────────────

func TestEventLog_Publish_RecordsEvent(t *testing.T) {
	l := NewEventLog(DefaultEventLogConfig())
	l.Publish(domain.MiningEvent{Type: domain.EventStarted, UserID: "u1"})

	if l.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", l.Count())
	}
	got := l.Recent(1, false)
	if len(got) != 1 || got[0].UserID != "u1" {
		t.Errorf("Recent(1) = %+v, want one event for u1", got)
	}
}

func TestEventLog_Disabled(t *testing.T) {
	l := NewEventLog(EventLogConfig{Enabled: false})
	l.Publish(domain.MiningEvent{Type: domain.EventStarted})
	if l.Count() != 0 {
		t.Errorf("Count() = %d, want 0 when disabled", l.Count())
	}
}

func TestEventLog_RingBuffer_Overflow(t *testing.T) {
	l := NewEventLog(EventLogConfig{Enabled: true, MaxEvents: 3})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		l.Publish(domain.MiningEvent{Type: domain.EventStarted, UserID: id})
	}
	if l.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", l.Count())
	}
	got := l.Recent(10, false)
	if got[0].UserID != "c" || got[2].UserID != "e" {
		t.Errorf("Recent() = %v..%v, want c..e", got[0].UserID, got[2].UserID)
	}
}

func TestEventLog_Recent_SkipTicks(t *testing.T) {
	l := NewEventLog(DefaultEventLogConfig())
	l.Publish(domain.MiningEvent{Type: domain.EventStarted})
	l.Publish(domain.MiningEvent{Type: domain.EventTick})
	l.Publish(domain.MiningEvent{Type: domain.EventTick})
	l.Publish(domain.MiningEvent{Type: domain.EventCollected})

	got := l.Recent(5, true)
	if len(got) != 2 {
		t.Fatalf("Recent(skip ticks) returned %d, want 2", len(got))
	}
	if got[0].Type != domain.EventStarted || got[1].Type != domain.EventCollected {
		t.Errorf("Recent order = %s, %s; want started, collected", got[0].Type, got[1].Type)
	}
	if l.Recent(0, false) != nil {
		t.Error("Recent(0) should be nil")
	}
}

func TestEventLog_Reset(t *testing.T) {
	l := NewEventLog(DefaultEventLogConfig())
	l.Publish(domain.MiningEvent{})
	l.Reset()
	if l.Count() != 0 {
		t.Errorf("Count() after Reset = %d, want 0", l.Count())
	}
}

// ─── Metrics Sink ───────────────────────────────────────────────────────────

func TestMetricsSink_TracksActiveSessions(t *testing.T) {
	before := testutil.ToFloat64(ActiveSessions)
	collected := testutil.ToFloat64(SessionTransitions.WithLabelValues("collected"))

	var s MetricsSink
	s.Publish(domain.MiningEvent{Type: domain.EventStarted})
	s.Publish(domain.MiningEvent{Type: domain.EventStarted})
	s.Publish(domain.MiningEvent{Type: domain.EventTick})
	if got := testutil.ToFloat64(ActiveSessions); got != before+2 {
		t.Errorf("ActiveSessions = %v, want %v", got, before+2)
	}

	s.Publish(domain.MiningEvent{Type: domain.EventCollected, Reward: decimal.NewFromInt(2)})
	s.Publish(domain.MiningEvent{Type: domain.EventCancelled})
	if got := testutil.ToFloat64(ActiveSessions); got != before {
		t.Errorf("ActiveSessions = %v, want %v", got, before)
	}
	if got := testutil.ToFloat64(SessionTransitions.WithLabelValues("collected")); got != collected+1 {
		t.Errorf("collected transitions = %v, want %v", got, collected+1)
	}
}

func TestMetricsSink_CollectFailedKeepsSessionActive(t *testing.T) {
	before := testutil.ToFloat64(ActiveSessions)
	MetricsSink{}.Publish(domain.MiningEvent{Type: domain.EventCollectFailed})
	if got := testutil.ToFloat64(ActiveSessions); got != before {
		t.Errorf("ActiveSessions changed on collect_failed: %v -> %v", before, got)
	}
}
