// Package daemon wires storage, mining engines, engagement services and the
// HTTP API into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/idlemine/internal/api"
	"github.com/tutu-network/idlemine/internal/app/engagement"
	"github.com/tutu-network/idlemine/internal/app/mining"
	"github.com/tutu-network/idlemine/internal/domain"
	"github.com/tutu-network/idlemine/internal/infra/observability"
	"github.com/tutu-network/idlemine/internal/infra/postgres"
	"github.com/tutu-network/idlemine/internal/infra/sqlite"
)

const shutdownTimeout = 10 * time.Second

// Daemon is a configured, ready-to-run idlemine instance.
type Daemon struct {
	Config Config
	Store  domain.Store
	Miner  *mining.Manager
	Inputs mining.InputSource

	Streak       *engagement.StreakService
	Level        *engagement.LevelService
	Upgrades     *engagement.UpgradeService
	Collectibles *engagement.CollectibleService
	Referrals    *engagement.ReferralService

	Hub    *api.LiveHub
	Events *observability.EventLog
	Server *api.Server
}

// OpenStore opens the configured store and applies its schema.
func OpenStore(ctx context.Context, cfg Config, home string) (domain.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.NewStore(pool), nil
	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = home
		}
		db, err := sqlite.Open(dir)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// New opens storage, builds services and restores persisted sessions.
func New(ctx context.Context, cfg Config, home string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg, home)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d, err := build(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	if _, err := d.Miner.Restore(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("restore sessions: %w", err)
	}
	return d, nil
}

func build(cfg Config, store domain.Store) (*Daemon, error) {
	tick, err := cfg.TickInterval()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.TickTimeout()
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		Config:       cfg,
		Store:        store,
		Streak:       engagement.NewStreakService(store),
		Level:        engagement.NewLevelService(store),
		Upgrades:     engagement.NewUpgradeService(store),
		Collectibles: engagement.NewCollectibleService(store, store),
		Referrals:    engagement.NewReferralService(store),
		Hub:          api.NewLiveHub(),
		Events:       observability.NewEventLog(observability.DefaultEventLogConfig()),
	}
	d.Inputs = &mining.LedgerInputs{
		Users:     store,
		NFT:       d.Collectibles,
		Referrals: d.Referrals,
	}

	sink := domain.MultiSink{d.Hub, d.Events, observability.MetricsSink{}}
	d.Miner = mining.NewManager(d.Inputs, store, store, sink, mining.Config{
		TickInterval: tick,
		PersistEvery: cfg.Mining.PersistEvery,
		TickTimeout:  timeout,
	})

	d.Server = api.NewServer(store, d.Miner, d.Inputs)
	d.Server.SetLiveHub(d.Hub)
	d.Server.SetEventLog(d.Events)
	d.Server.SetEngagement(&api.EngagementAPI{
		Streak:       d.Streak,
		Level:        d.Level,
		Upgrades:     d.Upgrades,
		Collectibles: d.Collectibles,
		Referrals:    d.Referrals,
	})
	if cfg.Metrics.Enabled {
		d.Server.EnableMetrics()
	}
	return d, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully:
// the listener drains, engines stop ticking and sessions are persisted.
func (d *Daemon) Run(ctx context.Context) error {
	// Live feeds hold their connection open; end them when shutdown starts.
	streams, endStreams := context.WithCancel(context.Background())
	defer endStreams()
	srv := &http.Server{
		Addr:              d.Config.API.Addr(),
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streams },
	}
	srv.RegisterOnShutdown(endStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("idlemine API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	return errors.Join(err, d.Close())
}

// Close stops every engine, persists active sessions and closes the store.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(d.Miner.Close(ctx), d.Store.Close())
}
