package mining

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/observability"
)

// ─── Collaborators ──────────────────────────────────────────────────────────

// Ledger receives rewards on collect.
type Ledger interface {
	CreditReward(ctx context.Context, reward domain.MiningReward) error
}

// SessionSaver persists the session after every transition.
type SessionSaver interface {
	SaveSession(ctx context.Context, userID string, s domain.MiningSession) error
}

// ─── Config ─────────────────────────────────────────────────────────────────

// Config tunes an engine.
type Config struct {
	// TickInterval is the accrual cadence. Zero or negative disables the
	// owned ticker; Tick must then be driven by the caller.
	TickInterval time.Duration
	// PersistEvery saves the session every N ticks. Zero disables it.
	PersistEvery int
	// TickTimeout bounds the collaborator calls of one ticker-driven tick.
	TickTimeout time.Duration

	Now   func() time.Time
	NewID func() string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		PersistEvery: 30,
		TickTimeout:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = func() string { return uuid.NewString() }
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 5 * time.Second
	}
	return c
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Status is a read-only view of an engine.
type Status struct {
	UserID          string               `json:"user_id"`
	Session         domain.MiningSession `json:"session"`
	Profile         domain.MiningProfile `json:"profile"`
	ProgressPercent float64              `json:"progress_percent"`
	RemainingMs     int64                `json:"remaining_ms"`
}

// Engine owns the mining session of one user. All mutators serialize on a
// single mutex; the ticker goroutine is started on Start and stopped on every
// exit from the active state.
type Engine struct {
	userID string
	inputs InputSource
	ledger Ledger
	store  SessionSaver
	sink   domain.EventSink
	cfg    Config
	log    *log.Entry

	mu      sync.Mutex
	session domain.MiningSession
	profile domain.MiningProfile
	ticker  *ownedTicker
	ticks   int
	dirty   bool // the stored row is behind the in-memory session
}

type ownedTicker struct {
	stop chan struct{}
}

// NewEngine creates an idle engine. sink may be nil.
func NewEngine(userID string, inputs InputSource, ledger Ledger, store SessionSaver, sink domain.EventSink, cfg Config) *Engine {
	if sink == nil {
		sink = domain.MultiSink(nil)
	}
	return &Engine{
		userID: userID,
		inputs: inputs,
		ledger: ledger,
		store:  store,
		sink:   sink,
		cfg:    cfg.withDefaults(),
		log:    log.WithField("user", userID),
	}
}

// UserID returns the owner of this engine.
func (e *Engine) UserID() string { return e.userID }

// Start opens a session. It returns false without touching anything when a
// session is already active.
func (e *Engine) Start(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.IsActive {
		return false, nil
	}

	in, err := e.inputs.Inputs(ctx, e.userID)
	if err != nil {
		return false, fmt.Errorf("read mining inputs: %w", err)
	}
	profile := ComputeMiningProfile(in)

	now := e.cfg.Now()
	s := domain.MiningSession{
		ID:         e.cfg.NewID(),
		IsActive:   true,
		StartedAt:  now,
		EndsAt:     now.Add(profile.Duration()),
		LastTickAt: now,
	}
	if err := e.store.SaveSession(ctx, e.userID, s); err != nil {
		return false, fmt.Errorf("persist session: %w", err)
	}

	e.dirty = false
	e.session = s
	e.profile = profile
	e.ticks = 0
	e.startTickerLocked()

	e.log.WithFields(log.Fields{
		"session":  s.ID,
		"rate":     profile.TotalRatePerHour,
		"boost":    profile.TotalBoostPercent,
		"duration": profile.Duration(),
	}).Info("mining session started")
	e.publishLocked(domain.EventStarted, decimal.Zero, "")
	return true, nil
}

// Resume adopts a persisted session after a restart. An invalid session is
// discarded. The first tick reconciles accrual against wall-clock time.
func (e *Engine) Resume(s domain.MiningSession) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !s.IsActive {
		return nil
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if e.session.IsActive {
		return nil
	}
	e.session = s
	e.ticks = 0
	e.startTickerLocked()
	e.log.WithFields(log.Fields{"session": s.ID, "accrued": s.Accrued}).Info("mining session resumed")
	e.publishLocked(domain.EventResumed, decimal.Zero, "")
	return nil
}

// Tick advances the session by the elapsed wall-clock time and
// auto-finalizes at EndsAt. It is a no-op while idle.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickLocked(ctx)
}

func (e *Engine) tickLocked(ctx context.Context) {
	if !e.session.IsActive {
		if e.dirty {
			e.persistLocked(ctx)
		}
		return
	}
	now := e.cfg.Now()
	if err := e.accrueLocked(ctx, now); err != nil {
		observability.TicksSkipped.Inc()
		e.log.WithError(err).Warn("mining tick skipped")
		return
	}

	if !now.Before(e.session.EndsAt) {
		if _, err := e.finalizeLocked(ctx, now); err != nil {
			e.log.WithError(err).Warn("auto-collect failed, will retry")
		}
		return
	}

	e.ticks++
	if e.cfg.PersistEvery > 0 && e.ticks%e.cfg.PersistEvery == 0 {
		e.persistLocked(ctx)
	}
	e.publishLocked(domain.EventTick, decimal.Zero, "")
}

// accrueLocked adds rate × elapsed for the interval (LastTickAt, min(now, EndsAt)].
// Inputs are read fresh; on failure nothing moves so the next call covers
// the whole interval.
func (e *Engine) accrueLocked(ctx context.Context, now time.Time) error {
	until := now
	if until.After(e.session.EndsAt) {
		until = e.session.EndsAt
	}
	elapsed := until.Sub(e.session.LastTickAt).Seconds()
	if elapsed <= 0 || math.IsNaN(elapsed) {
		return nil
	}

	in, err := e.inputs.Inputs(ctx, e.userID)
	if err != nil {
		return err
	}
	e.profile = ComputeMiningProfile(in)
	if gain := e.profile.RatePerSecond() * elapsed; gain > 0 {
		e.session.Accrued += gain
	}
	e.session.LastTickAt = until
	return nil
}

// Collect finalizes the session and credits the rounded reward.
// Idle or a reward that rounds to zero returns 0 and nil. A ledger failure
// returns an error wrapping domain.ErrLedgerWrite and keeps the session
// active with its accrued amount.
func (e *Engine) Collect(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.IsActive {
		return decimal.Zero, nil
	}
	now := e.cfg.Now()
	if err := e.accrueLocked(ctx, now); err != nil {
		return decimal.Zero, fmt.Errorf("read mining inputs: %w", err)
	}
	return e.finalizeLocked(ctx, now)
}

func (e *Engine) finalizeLocked(ctx context.Context, now time.Time) (decimal.Decimal, error) {
	reward := domain.RoundReward(e.session.Accrued)
	if reward.Sign() <= 0 {
		if !now.Before(e.session.EndsAt) {
			sessionID := e.session.ID
			e.clearLocked(ctx)
			e.publishCollected(sessionID, decimal.Zero)
		}
		return decimal.Zero, nil
	}

	r := domain.MiningReward{
		UserID:     e.userID,
		SessionID:  e.session.ID,
		Amount:     reward,
		Experience: domain.ExperienceForReward(reward),
		CreditedAt: now,
	}
	if err := e.ledger.CreditReward(ctx, r); err != nil && !errors.Is(err, domain.ErrAlreadyCredited) {
		e.persistLocked(ctx)
		e.publishLocked(domain.EventCollectFailed, reward, err.Error())
		return decimal.Zero, fmt.Errorf("%w: %w", domain.ErrLedgerWrite, err)
	}

	e.log.WithFields(log.Fields{
		"session": r.SessionID,
		"reward":  reward.StringFixed(2),
		"xp":      r.Experience,
	}).Info("mining reward collected")
	sessionID := e.session.ID
	e.clearLocked(ctx)
	e.publishCollected(sessionID, reward)
	return reward, nil
}

// Cancel ends the session without crediting anything. The idle state is
// stored first: if that fails the session keeps running and the error is
// returned, so a restart can never resume a cancelled session.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.IsActive {
		return nil
	}
	if err := e.store.SaveSession(ctx, e.userID, domain.MiningSession{}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	id := e.session.ID
	e.publishLocked(domain.EventCancelled, decimal.Zero, "")
	e.stopTickerLocked()
	e.session = domain.MiningSession{}
	e.ticks = 0
	e.dirty = false
	e.log.WithField("session", id).Info("mining session cancelled")
	return nil
}

// Close stops the ticker and persists the current session so it can be
// resumed later. The session itself stays active. An idle engine whose
// last save failed writes its idle row again.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTickerLocked()
	if !e.session.IsActive && !e.dirty {
		return nil
	}
	if err := e.store.SaveSession(ctx, e.userID, e.session); err != nil {
		e.dirty = true
		return err
	}
	e.dirty = false
	return nil
}

func (e *Engine) clearLocked(ctx context.Context) {
	e.stopTickerLocked()
	e.session = domain.MiningSession{}
	e.ticks = 0
	e.persistLocked(ctx)
}

func (e *Engine) persistLocked(ctx context.Context) {
	if err := e.store.SaveSession(ctx, e.userID, e.session); err != nil {
		e.dirty = true
		e.log.WithError(err).Error("persist mining session")
		return
	}
	e.dirty = false
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Session returns a copy of the current session.
func (e *Engine) Session() domain.MiningSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// IsActive reports whether a session is running.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.IsActive
}

// ProgressPercent is the elapsed share of the session, clamped to [0, 100].
func (e *Engine) ProgressPercent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked(e.cfg.Now())
}

// Remaining is the time left until EndsAt, never negative.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remainingLocked(e.cfg.Now())
}

// Snapshot returns session, last profile and derived progress together.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.cfg.Now()
	return Status{
		UserID:          e.userID,
		Session:         e.session,
		Profile:         e.profile,
		ProgressPercent: e.progressLocked(now),
		RemainingMs:     e.remainingLocked(now).Milliseconds(),
	}
}

func (e *Engine) progressLocked(now time.Time) float64 {
	if !e.session.IsActive {
		return 0
	}
	total := e.session.EndsAt.Sub(e.session.StartedAt)
	if total <= 0 || !now.Before(e.session.EndsAt) {
		return 100
	}
	pct := 100 * float64(now.Sub(e.session.StartedAt)) / float64(total)
	return math.Min(math.Max(pct, 0), 100)
}

func (e *Engine) remainingLocked(now time.Time) time.Duration {
	if !e.session.IsActive {
		return 0
	}
	if d := e.session.EndsAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ─── Ticker ─────────────────────────────────────────────────────────────────

// ticking reports whether the owned ticker is running.
func (e *Engine) ticking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker != nil
}

func (e *Engine) startTickerLocked() {
	if e.cfg.TickInterval <= 0 || e.ticker != nil {
		return
	}
	t := &ownedTicker{stop: make(chan struct{})}
	e.ticker = t
	go e.run(t)
}

// stopTickerLocked never waits for the goroutine: it may be the caller.
func (e *Engine) stopTickerLocked() {
	if e.ticker == nil {
		return
	}
	close(e.ticker.stop)
	e.ticker = nil
}

func (e *Engine) run(t *ownedTicker) {
	tk := time.NewTicker(e.cfg.TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-tk.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TickTimeout)
			e.mu.Lock()
			// A tick queued behind Cancel must not touch a later session.
			if e.ticker == t {
				e.tickLocked(ctx)
			}
			e.mu.Unlock()
			cancel()
		}
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func (e *Engine) publishLocked(typ domain.MiningEventType, reward decimal.Decimal, errMsg string) {
	now := e.cfg.Now()
	e.sink.Publish(domain.MiningEvent{
		Type:        typ,
		UserID:      e.userID,
		SessionID:   e.session.ID,
		Accrued:     e.session.Accrued,
		Reward:      reward,
		RatePerHour: e.profile.TotalRatePerHour * (1 + e.profile.TotalBoostPercent/100),
		Progress:    e.progressLocked(now),
		Error:       errMsg,
		At:          now,
	})
}

func (e *Engine) publishCollected(sessionID string, reward decimal.Decimal) {
	e.sink.Publish(domain.MiningEvent{
		Type:      domain.EventCollected,
		UserID:    e.userID,
		SessionID: sessionID,
		Reward:    reward,
		Progress:  100,
		At:        e.cfg.Now(),
	})
}
