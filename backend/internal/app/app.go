// Package app assembles the stores, the graph index, the snapshot cache and
// the consistency coordinator from configuration. The server and arkctl both
// start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"noahs-ark/backend/internal/api"
	"noahs-ark/backend/internal/consistency"
	"noahs-ark/backend/internal/graph"
	"noahs-ark/backend/internal/plugins"
	"noahs-ark/backend/internal/records"
	"noahs-ark/backend/internal/snapshot"
	"noahs-ark/backend/pkg/config"
	"noahs-ark/backend/pkg/logger"
)

// App holds the wired components and the resources to release on Close
type App struct {
	Config      *config.Config
	Records     records.Store
	Graph       graph.Store
	Index       *graph.Index
	Cache       *snapshot.Cache
	Propagator  *consistency.Propagator
	Coordinator *consistency.Coordinator
	Checks      map[string]api.HealthCheck

	closers []func(context.Context) error
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// New connects every backend selected by cfg. On error the resources opened
// so far are released.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{
		Config: cfg,
		Checks: map[string]api.HealthCheck{},
		logger: logger.Component("app"),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := a.openRecords(ctx); err != nil {
		return nil, err
	}
	if err := a.openGraph(ctx); err != nil {
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		return nil, err
	}

	reporter := consistency.NewLogReporter()
	opts := []consistency.Option{consistency.WithReporter(reporter)}
	if cfg.GraphSyncMode == config.SyncModeAsync {
		runCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.Propagator = consistency.NewPropagator(a.Index, reporter,
			consistency.WithWorkers(cfg.GraphSyncWorkers),
			consistency.WithRetryWindow(0, cfg.GraphSyncMaxElapsed),
		)
		a.Propagator.Start(runCtx)
		opts = append(opts, consistency.WithPropagator(a.Propagator))
	}
	a.Coordinator = consistency.NewCoordinator(a.Records, a.Index, a.Cache, opts...)

	a.logger.Info("Application wired",
		zap.String("graph_sync_mode", cfg.GraphSyncMode),
		zap.String("cache_backend", cfg.CacheBackend),
	)
	return a, nil
}

func (a *App) openRecords(ctx context.Context) error {
	if a.Config.DatabaseURL == config.BackendMemory {
		mem := records.NewMemoryStore()
		a.Records = mem
		a.Checks["records"] = mem.Ping
		return nil
	}

	pg, err := records.OpenPostgres(ctx, a.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	a.Records = pg
	a.Checks["records"] = pg.Ping
	a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
	return nil
}

func (a *App) openGraph(ctx context.Context) error {
	opts := []graph.Option{graph.WithCallTimeout(a.Config.GraphTimeout)}

	if a.Config.Neo4jURI == config.BackendMemory {
		a.Graph = graph.NewMemoryStore()
		a.Index = graph.NewIndex(a.Graph, opts...)
		return nil
	}

	store, err := graph.Connect(ctx, a.Config.Neo4jURI, a.Config.Neo4jUser, a.Config.Neo4jPassword)
	if err != nil {
		return fmt.Errorf("failed to open graph store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.Graph = store
	a.Index = graph.NewIndex(store, opts...)
	a.Checks["graph"] = store.Ping
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	var backend snapshot.Backend
	switch a.Config.CacheBackend {
	case config.BackendRedis:
		rb, err := snapshot.OpenRedis(a.Config.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return rb.Close() })
		if err := rb.Ping(ctx); err != nil {
			// the cache is optional; reads fall through to the record store
			a.logger.Warn("Redis unreachable at startup", zap.Error(err))
		}
		a.Checks["cache"] = rb.Ping
		backend = rb
	default:
		backend = snapshot.NewLocalBackend(a.Config.CacheSize, a.Config.CacheTTL)
	}
	a.Cache = snapshot.NewCache(backend, a.Config.CacheTTL)
	return nil
}

// APIDeps returns what the HTTP layer needs
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Coordinator:    a.Coordinator,
		Index:          a.Index,
		Plugins:        plugins.NewDefaultRegistry(),
		MaxGenerations: a.Config.MaxGenerations,
		HealthChecks:   a.Checks,
		Production:     a.Config.IsProduction(),
	}
}

// Close drains the propagator, then releases the backends in reverse order
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Propagator != nil {
		if err := a.Propagator.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
