package mining

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestEngine_FullSessionLevelOne(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()

	started, err := h.engine.Start(ctx)
	if err != nil || !started {
		t.Fatalf("Start() = %v, %v; want true, nil", started, err)
	}

	h.clock.Advance(2 * time.Hour)
	reward, err := h.engine.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if got := reward.StringFixed(2); got != "2.00" {
		t.Errorf("reward = %s, want 2.00", got)
	}
	if h.ledger.count() != 1 {
		t.Fatalf("ledger credits = %d, want 1", h.ledger.count())
	}
	credit := h.ledger.credits[0]
	if credit.Experience != 1 {
		t.Errorf("experience = %d, want 1", credit.Experience)
	}
	if credit.SessionID != "sess-a" {
		t.Errorf("session id = %q, want sess-a", credit.SessionID)
	}
	if s := h.engine.Session(); s != (domain.MiningSession{}) {
		t.Errorf("session after collect = %+v, want idle", s)
	}
}

func TestEngine_TickEverySecondMatchesFullDuration(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)

	for i := 0; i < 7200; i++ {
		h.clock.Advance(time.Second)
		h.engine.Tick(ctx)
	}
	if h.engine.IsActive() {
		t.Fatal("session should auto-finalize at EndsAt")
	}
	if h.ledger.count() != 1 {
		t.Fatalf("ledger credits = %d, want 1", h.ledger.count())
	}
	if got := h.ledger.credits[0].Amount.StringFixed(2); got != "2.00" {
		t.Errorf("auto-collected = %s, want 2.00", got)
	}
}

func TestEngine_UpgradesAndStreakScenario(t *testing.T) {
	h := newHarness(domain.BoostInputs{
		Level:           1,
		Upgrades:        domain.UpgradeLevels{Rate: 1, Boost: 1},
		LoginStreakDays: 7,
	})
	ctx := context.Background()
	h.engine.Start(ctx)

	h.clock.Advance(2 * time.Hour)
	reward, err := h.engine.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if got := reward.StringFixed(2); got != "4.40" {
		t.Errorf("reward = %s, want 4.40", got)
	}
	if xp := h.ledger.credits[0].Experience; xp != 2 {
		t.Errorf("experience = %d, want 2", xp)
	}
}

func TestEngine_StartTwiceKeepsFirstSession(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()

	h.engine.Start(ctx)
	first := h.engine.Session()

	h.clock.Advance(10 * time.Minute)
	started, err := h.engine.Start(ctx)
	if err != nil || started {
		t.Fatalf("second Start() = %v, %v; want false, nil", started, err)
	}
	second := h.engine.Session()
	if !second.StartedAt.Equal(first.StartedAt) || second.ID != first.ID {
		t.Errorf("second Start changed session: %+v -> %+v", first, second)
	}
}

func TestEngine_CollectTwice(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.clock.Advance(time.Hour)

	first, err := h.engine.Collect(ctx)
	if err != nil || !first.IsPositive() {
		t.Fatalf("first Collect() = %s, %v; want positive", first, err)
	}
	second, err := h.engine.Collect(ctx)
	if err != nil || !second.IsZero() {
		t.Fatalf("second Collect() = %s, %v; want 0", second, err)
	}
	if h.ledger.count() != 1 {
		t.Errorf("ledger credits = %d, want exactly 1", h.ledger.count())
	}
}

func TestEngine_CollectBeforeAnythingAccruedIsNoop(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)

	reward, err := h.engine.Collect(ctx)
	if err != nil || !reward.IsZero() {
		t.Fatalf("Collect() = %s, %v; want 0, nil", reward, err)
	}
	if !h.engine.IsActive() {
		t.Error("zero-reward collect before EndsAt must keep the session running")
	}
	if h.ledger.count() != 0 {
		t.Error("zero reward must not touch the ledger")
	}
}

func TestEngine_CollectWhileIdle(t *testing.T) {
	h := newHarness(levelOne())
	reward, err := h.engine.Collect(context.Background())
	if err != nil || !reward.IsZero() {
		t.Errorf("Collect() on idle = %s, %v; want 0, nil", reward, err)
	}
}

func TestEngine_CancelCreditsNothing(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.clock.Advance(time.Hour)
	h.engine.Tick(ctx)

	if err := h.engine.Cancel(ctx); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if h.engine.IsActive() {
		t.Error("session still active after Cancel")
	}
	if h.ledger.count() != 0 {
		t.Errorf("ledger credits = %d, want 0", h.ledger.count())
	}
	if s := h.sessions.get("u1"); s.IsActive {
		t.Errorf("persisted session = %+v, want idle", s)
	}
	if err := h.engine.Cancel(ctx); err != nil {
		t.Errorf("second Cancel() error: %v", err)
	}
}

// ─── Ledger Failure ─────────────────────────────────────────────────────────

func TestEngine_LedgerFailureKeepsAccrued(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.clock.Advance(time.Hour)

	h.ledger.setFail(errLedgerDown)
	reward, err := h.engine.Collect(ctx)
	if !errors.Is(err, domain.ErrLedgerWrite) || !errors.Is(err, errLedgerDown) {
		t.Fatalf("Collect() err = %v, want ErrLedgerWrite wrapping cause", err)
	}
	if !reward.IsZero() {
		t.Errorf("reward on failure = %s, want 0", reward)
	}
	s := h.engine.Session()
	if !s.IsActive || !approx(s.Accrued, 1.0) {
		t.Fatalf("session after failure = %+v, want active with 1.0 accrued", s)
	}
	if stored := h.sessions.get("u1"); !approx(stored.Accrued, 1.0) {
		t.Errorf("persisted accrued = %v, want 1.0", stored.Accrued)
	}

	h.ledger.setFail(nil)
	reward, err = h.engine.Collect(ctx)
	if err != nil || reward.StringFixed(2) != "1.00" {
		t.Fatalf("retry Collect() = %s, %v; want 1.00", reward, err)
	}
	if h.ledger.count() != 1 {
		t.Errorf("ledger credits = %d, want 1", h.ledger.count())
	}
}

func TestEngine_AlreadyCreditedCountsAsSuccess(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.clock.Advance(time.Hour)
	h.ledger.seen["sess-a"] = true

	reward, err := h.engine.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if reward.StringFixed(2) != "1.00" {
		t.Errorf("reward = %s, want 1.00", reward)
	}
	if h.engine.IsActive() {
		t.Error("session should close when the ledger already holds the credit")
	}
	if h.ledger.count() != 0 {
		t.Error("no second credit expected")
	}
}

func TestEngine_AutoFinalizeRetriesAfterLedgerFailure(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)

	h.ledger.setFail(errLedgerDown)
	h.clock.Advance(3 * time.Hour)
	h.engine.Tick(ctx)
	if !h.engine.IsActive() {
		t.Fatal("failed auto-collect must keep the session")
	}

	h.ledger.setFail(nil)
	h.clock.Advance(time.Minute)
	h.engine.Tick(ctx)
	if h.engine.IsActive() {
		t.Fatal("auto-collect should succeed on the next tick")
	}
	if got := h.ledger.credits[0].Amount.StringFixed(2); got != "2.00" {
		t.Errorf("credited = %s, want 2.00 (accrual stops at EndsAt)", got)
	}
}

// ─── Clock & Inputs ─────────────────────────────────────────────────────────

func TestEngine_ClockSkewNeverSubtracts(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)

	h.clock.Advance(10 * time.Minute)
	h.engine.Tick(ctx)
	before := h.engine.Session()

	h.clock.Advance(-5 * time.Minute)
	h.engine.Tick(ctx)
	after := h.engine.Session()
	if after.Accrued != before.Accrued || !after.LastTickAt.Equal(before.LastTickAt) {
		t.Errorf("backwards clock changed session: %+v -> %+v", before, after)
	}

	h.clock.Advance(10 * time.Minute)
	h.engine.Tick(ctx)
	want := before.Accrued + 5.0/60
	if got := h.engine.Session().Accrued; !approx(got, want) {
		t.Errorf("Accrued = %v, want %v", got, want)
	}
}

func TestEngine_UnreadableInputsSkipTick(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	start := h.engine.Session().StartedAt

	h.inputs.setFail(domain.ErrLedgerRead)
	h.clock.Advance(10 * time.Minute)
	h.engine.Tick(ctx)
	s := h.engine.Session()
	if s.Accrued != 0 || !s.LastTickAt.Equal(start) {
		t.Fatalf("skipped tick moved session: %+v", s)
	}

	if _, err := h.engine.Collect(ctx); err == nil || errors.Is(err, domain.ErrLedgerWrite) {
		t.Errorf("Collect() with unreadable inputs err = %v, want read error", err)
	}

	h.inputs.setFail(nil)
	h.clock.Advance(10 * time.Minute)
	h.engine.Tick(ctx)
	if got := h.engine.Session().Accrued; !approx(got, 20.0/60) {
		t.Errorf("Accrued = %v, want the whole 20 minutes", got)
	}
}

func TestEngine_MidSessionUpgradeAppliesFromNextTick(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	endsAt := h.engine.Session().EndsAt

	h.clock.Advance(time.Hour)
	h.engine.Tick(ctx)
	h.inputs.set(domain.BoostInputs{Level: 1, Upgrades: domain.UpgradeLevels{Rate: 1}})
	if got := h.engine.Session().Accrued; !approx(got, 1.0) {
		t.Fatalf("Accrued = %v, want 1.0 before next tick", got)
	}

	h.clock.Advance(30 * time.Minute)
	h.engine.Tick(ctx)
	if got := h.engine.Session().Accrued; !approx(got, 2.0) {
		t.Errorf("Accrued = %v, want 1.0 + 0.5h × 2/h", got)
	}
	if !h.engine.Session().EndsAt.Equal(endsAt) {
		t.Error("EndsAt must stay fixed for the session")
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

func TestEngine_ProgressMonotoneToHundred(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	if got := h.engine.ProgressPercent(); got != 0 {
		t.Errorf("idle ProgressPercent() = %v, want 0", got)
	}
	h.engine.Start(ctx)

	prev := -1.0
	for i := 0; i <= 12; i++ {
		got := h.engine.ProgressPercent()
		if got < prev {
			t.Fatalf("progress decreased: %v -> %v", prev, got)
		}
		prev = got
		if i < 12 {
			h.clock.Advance(10 * time.Minute)
		}
	}
	if prev != 100 {
		t.Errorf("ProgressPercent() at EndsAt = %v, want 100", prev)
	}
	if r := h.engine.Remaining(); r != 0 {
		t.Errorf("Remaining() at EndsAt = %v, want 0", r)
	}
	h.clock.Advance(time.Hour)
	if got := h.engine.ProgressPercent(); got != 100 {
		t.Errorf("ProgressPercent() after EndsAt = %v, want 100", got)
	}
}

func TestEngine_Snapshot(t *testing.T) {
	h := newHarness(levelOne())
	h.engine.Start(context.Background())
	h.clock.Advance(30 * time.Minute)

	st := h.engine.Snapshot()
	if st.UserID != "u1" || !st.Session.IsActive {
		t.Fatalf("Snapshot() = %+v", st)
	}
	if st.ProgressPercent != 25 {
		t.Errorf("ProgressPercent = %v, want 25", st.ProgressPercent)
	}
	if st.RemainingMs != (90 * time.Minute).Milliseconds() {
		t.Errorf("RemainingMs = %d, want 90m", st.RemainingMs)
	}
	if st.Profile.TotalRatePerHour != 1 {
		t.Errorf("Profile.TotalRatePerHour = %v, want 1", st.Profile.TotalRatePerHour)
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

func TestEngine_ResumeAccruesOverGap(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.clock.Advance(30 * time.Minute)
	h.engine.Tick(ctx)
	if err := h.engine.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	stored := h.sessions.get("u1")
	if !stored.IsActive || !approx(stored.Accrued, 0.5) {
		t.Fatalf("stored session = %+v, want active with 0.5", stored)
	}

	// process restart after a 600s gap
	h.clock.Advance(600 * time.Second)
	resumed := NewEngine("u1", h.inputs, h.ledger, h.sessions, nil, Config{Now: h.clock.Now})
	if err := resumed.Resume(stored); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	resumed.Tick(ctx)

	rate := ComputeMiningProfile(levelOne()).RatePerSecond()
	want := stored.Accrued + rate*600
	if got := resumed.Session().Accrued; !approx(got, want) {
		t.Errorf("Accrued after gap = %v, want %v", got, want)
	}
}

func TestEngine_ResumeRejectsInvalidSession(t *testing.T) {
	h := newHarness(levelOne())
	bad := domain.MiningSession{IsActive: true}
	if err := h.engine.Resume(bad); !errors.Is(err, domain.ErrInvalidSession) {
		t.Errorf("Resume(invalid) err = %v, want ErrInvalidSession", err)
	}
	if h.engine.IsActive() {
		t.Error("invalid session must not be adopted")
	}
}

func TestEngine_PersistEveryTicks(t *testing.T) {
	h := newHarness(levelOne())
	cfg := h.config()
	cfg.PersistEvery = 3
	e := NewEngine("u1", h.inputs, h.ledger, h.sessions, nil, cfg)
	ctx := context.Background()
	e.Start(ctx)
	saves := h.sessions.saves

	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Second)
		e.Tick(ctx)
	}
	if h.sessions.saves != saves+1 {
		t.Errorf("saves = %d, want %d", h.sessions.saves, saves+1)
	}
	if got := h.sessions.get("u1").Accrued; got == 0 {
		t.Error("persisted session should carry accrual")
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestEngine_PublishesTransitions(t *testing.T) {
	h := newHarness(levelOne())
	ctx := context.Background()
	h.engine.Start(ctx)
	h.clock.Advance(time.Minute)
	h.engine.Tick(ctx)
	h.ledger.setFail(errLedgerDown)
	h.clock.Advance(time.Hour)
	h.engine.Collect(ctx)
	h.ledger.setFail(nil)
	h.engine.Collect(ctx)
	h.engine.Start(ctx)
	h.engine.Cancel(ctx)

	want := []domain.MiningEventType{
		domain.EventStarted,
		domain.EventCollectFailed,
		domain.EventCollected,
		domain.EventStarted,
		domain.EventCancelled,
	}
	got := h.sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

// ─── Owned Ticker ───────────────────────────────────────────────────────────

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestEngine_TickerStopsOnCancel(t *testing.T) {
	h := newHarness(levelOne())
	cfg := h.config()
	cfg.TickInterval = 2 * time.Millisecond
	e := NewEngine("u1", h.inputs, h.ledger, h.sessions, nil, cfg)
	ctx := context.Background()

	e.Start(ctx)
	if !e.ticking() {
		t.Fatal("ticker not running after Start")
	}
	e.mu.Lock()
	first := e.ticker
	e.mu.Unlock()

	e.Start(ctx)
	e.mu.Lock()
	same := e.ticker == first
	e.mu.Unlock()
	if !same {
		t.Error("second Start replaced the ticker")
	}

	e.Cancel(ctx)
	if e.ticking() {
		t.Error("ticker still running after Cancel")
	}
}

func TestEngine_TickerAutoFinalizes(t *testing.T) {
	h := newHarness(levelOne())
	cfg := h.config()
	cfg.TickInterval = 2 * time.Millisecond
	e := NewEngine("u1", h.inputs, h.ledger, h.sessions, nil, cfg)
	e.Start(context.Background())

	h.clock.Advance(2*time.Hour + time.Second)
	waitFor(t, func() bool { return !e.IsActive() })

	if e.ticking() {
		t.Error("ticker still running after auto-finalize")
	}
	if h.ledger.count() != 1 {
		t.Fatalf("ledger credits = %d, want 1", h.ledger.count())
	}
	if got := h.ledger.credits[0].Amount.StringFixed(2); got != "2.00" {
		t.Errorf("credited = %s, want 2.00", got)
	}
}
