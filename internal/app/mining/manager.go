package mining

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/idlemine/internal/domain"
)

// restoreConcurrency bounds parallel session loads during Restore.
const restoreConcurrency = 8

// Manager keeps exactly one engine per user. Engines of different users are
// independent and never share locks.
type Manager struct {
	inputs InputSource
	ledger Ledger
	store  domain.SessionStore
	sink   domain.EventSink
	cfg    Config

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a manager. sink may be nil.
func NewManager(inputs InputSource, ledger Ledger, store domain.SessionStore, sink domain.EventSink, cfg Config) *Manager {
	return &Manager{
		inputs:  inputs,
		ledger:  ledger,
		store:   store,
		sink:    sink,
		cfg:     cfg,
		engines: make(map[string]*Engine),
	}
}

// Engine returns the user's engine, creating an idle one on first use.
func (m *Manager) Engine(userID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[userID]
	if !ok {
		e = NewEngine(userID, m.inputs, m.ledger, m.store, m.sink, m.cfg)
		m.engines[userID] = e
	}
	return e
}

// Lookup returns the user's engine if one exists.
func (m *Manager) Lookup(userID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[userID]
	return e, ok
}

// Users lists users that have an engine, sorted.
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.engines))
	for id := range m.engines {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ActiveCount counts engines with a running session.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, id := range m.Users() {
		if e, ok := m.Lookup(id); ok && e.IsActive() {
			n++
		}
	}
	return n
}

// Restore resumes every persisted active session. Sessions that fail
// validation are reset to idle in the store. It returns the number of
// sessions resumed.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	users, err := m.store.ActiveSessionUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	var (
		mu      sync.Mutex
		resumed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for _, userID := range users {
		g.Go(func() error {
			s, err := m.store.LoadSession(gctx, userID)
			if err != nil {
				return fmt.Errorf("load session %s: %w", userID, err)
			}
			if err := m.Engine(userID).Resume(s); err != nil {
				log.WithFields(log.Fields{"user": userID, "error": err}).Warn("discarding invalid mining session")
				return m.store.SaveSession(gctx, userID, domain.MiningSession{})
			}
			mu.Lock()
			resumed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resumed, err
	}
	if resumed > 0 {
		log.WithField("sessions", resumed).Info("mining sessions restored")
	}
	return resumed, nil
}

// Close stops every ticker and persists active sessions.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, id := range m.Users() {
		if e, ok := m.Lookup(id); ok {
			if err := e.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close engine %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
