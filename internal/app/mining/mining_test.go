package mining

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tutu-network/idlemine/internal/domain"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeLedger credits each session at most once, like the real stores.
type fakeLedger struct {
	mu      sync.Mutex
	credits []domain.MiningReward
	seen    map[string]bool
	fail    error
}

func newFakeLedger() *fakeLedger { return &fakeLedger{seen: map[string]bool{}} }

func (l *fakeLedger) CreditReward(_ context.Context, r domain.MiningReward) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	if l.seen[r.SessionID] {
		return domain.ErrAlreadyCredited
	}
	l.seen[r.SessionID] = true
	l.credits = append(l.credits, r)
	return nil
}

func (l *fakeLedger) setFail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.credits)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.MiningSession
	saves    int
	failIdle error // returned for saves of idle sessions while set
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]domain.MiningSession{}}
}

func (s *fakeSessions) SaveSession(_ context.Context, userID string, sess domain.MiningSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIdle != nil && !sess.IsActive {
		return s.failIdle
	}
	s.sessions[userID] = sess
	s.saves++
	return nil
}

func (s *fakeSessions) setFailIdle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIdle = err
}

func (s *fakeSessions) LoadSession(_ context.Context, userID string) (domain.MiningSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID], nil
}

func (s *fakeSessions) ActiveSessionUsers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, sess := range s.sessions {
		if sess.IsActive {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeSessions) get(userID string) domain.MiningSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// mutableInputs lets a test change boosts mid-session.
type mutableInputs struct {
	mu   sync.Mutex
	in   domain.BoostInputs
	fail error
}

func (m *mutableInputs) Inputs(context.Context, string) (domain.BoostInputs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return domain.BoostInputs{}, m.fail
	}
	return m.in, nil
}

func (m *mutableInputs) set(in domain.BoostInputs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in = in
}

func (m *mutableInputs) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.MiningEvent
}

func (r *recordingSink) Publish(ev domain.MiningEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) types() []domain.MiningEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MiningEventType, 0, len(r.events))
	for _, ev := range r.events {
		if ev.Type != domain.EventTick {
			out = append(out, ev.Type)
		}
	}
	return out
}

var (
	errLedgerDown = errors.New("ledger unreachable")
	errDiskFull   = errors.New("disk full")
)

type harness struct {
	clock    *fakeClock
	ledger   *fakeLedger
	sessions *fakeSessions
	inputs   *mutableInputs
	sink     *recordingSink
	engine   *Engine
}

func newHarness(in domain.BoostInputs) *harness {
	h := &harness{
		clock:    newFakeClock(),
		ledger:   newFakeLedger(),
		sessions: newFakeSessions(),
		inputs:   &mutableInputs{in: in},
		sink:     &recordingSink{},
	}
	h.engine = NewEngine("u1", h.inputs, h.ledger, h.sessions, h.sink, h.config())
	return h
}

func (h *harness) config() Config {
	n := 0
	return Config{
		Now: h.clock.Now,
		NewID: func() string {
			n++
			return "sess-" + string(rune('a'+n-1))
		},
	}
}

func levelOne() domain.BoostInputs { return domain.BoostInputs{Level: 1} }

func approx(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
