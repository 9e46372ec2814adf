package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/ytfetch/internal/dedupe"
	"github.com/desertthunder/ytfetch/internal/proxy"
	"github.com/desertthunder/ytfetch/internal/repositories"
	"github.com/desertthunder/ytfetch/internal/services"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/desertthunder/ytfetch/internal/tasks"
)

// stack is the orchestrator wired to its registry, bridge, worker pool, proxies and history.
type stack struct {
	db        *sql.DB
	repo      *repositories.TaskRepository
	registry  *tasks.Registry
	bridge    *tasks.Bridge
	orch      *tasks.Orchestrator
	proxies   *proxy.Pool
	refresher *proxy.Refresher
	provider  *services.CachedProvider
	cancel    context.CancelFunc
}

// openRepository opens the history database without starting anything else.
func (r *Runner) openRepository() (*repositories.TaskRepository, func(), error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repositories.NewTaskRepository(db), func() { db.Close() }, nil
}

// proxyStack builds the proxy pool and its refresher, or nils when proxying is disabled.
func (r *Runner) proxyStack() (*proxy.Pool, *proxy.Refresher) {
	cfg := r.config.Proxy
	if !cfg.Enabled {
		return nil, nil
	}
	pool := proxy.NewPool(cfg.Endpoints...)
	return pool, proxy.NewRefresherFromConfig(pool, cfg, r.httpClient, r.logger)
}

// build wires every component. The bridge runs until [stack.Close].
func (r *Runner) build(ctx context.Context) (*stack, error) {
	cfg := r.config

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	inner := r.provider
	if inner == nil {
		inner = services.NewYTDLPProvider(r.logger)
	}
	provider, err := services.NewCachedProvider(inner, cfg.Cache, r.logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	proxies, refresher := r.proxyStack()

	runCtx, cancel := context.WithCancel(ctx)
	registry := tasks.NewRegistry()
	bridge := tasks.NewBridge(registry, tasks.BridgeOpts{
		Heartbeat: cfg.Server.HeartbeatInterval.Duration,
		Logger:    r.logger,
	})
	go func() {
		if err := bridge.Run(runCtx); err != nil {
			r.logger.Error("bridge stopped", "error", err)
		}
	}()

	index := dedupe.NewIndex(dedupe.LocalDirectory{}, cfg.Downloads.SimilarityThreshold, r.logger)
	r.logger.Debug("duplicate index ready", "threshold", index.Threshold())
	pool := tasks.NewWorkerPool(registry, bridge, index, proxies, provider, tasks.PoolOpts{
		Workers:      cfg.Downloads.Workers,
		ItemTimeout:  cfg.Downloads.ItemTimeout.Duration,
		ProgressRate: cfg.Downloads.ProgressRate,
		UseProxy:     proxies != nil,
		RequireProxy: cfg.Proxy.Require,
		Logger:       r.logger,
	})

	repo := repositories.NewTaskRepository(db)
	orch := tasks.NewOrchestrator(runCtx, registry, bridge, pool, provider, index, tasks.OrchestratorOpts{
		Downloads: cfg.Downloads,
		History:   repo,
		Logger:    r.logger,
	})

	return &stack{
		db:        db,
		repo:      repo,
		registry:  registry,
		bridge:    bridge,
		orch:      orch,
		proxies:   proxies,
		refresher: refresher,
		provider:  provider,
		cancel:    cancel,
	}, nil
}

// refreshProxies loads the pool once; failures leave the static endpoints in place.
func (s *stack) refreshProxies(ctx context.Context, r *Runner) {
	if s.refresher == nil {
		return
	}
	n, err := s.refresher.Refresh(ctx)
	if err != nil {
		r.logger.Warn("initial proxy refresh failed", "error", err)
		return
	}
	r.logger.Info("proxy pool loaded", "endpoints", n)
}

// Close stops background runs, the bridge and the cache, then closes the database.
func (s *stack) Close() {
	s.orch.Shutdown()
	s.cancel()
	<-s.bridge.Done()
	s.provider.Close()
	s.db.Close()
}
