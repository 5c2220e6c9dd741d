// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package main is the entry point for the Tunedrift server.
//
// Tunedrift serves personalized music recommendations blending listening
// history, Big Five personality traits, and an online reinforcement
// learner, with cold-start handling for new accounts.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings via Koanf v2 (env > file > defaults)
//  2. Store: DuckDB for history, profiles, served tracks, and interactions
//  3. Learner: per-user Q-tables restored from BadgerDB snapshots
//  4. Provider: content catalog client behind a circuit breaker
//  5. Events: in-process feedback bus for asynchronous persistence
//  6. Engine: candidate generation, scoring, caching, rate limiting
//  7. Supervisor tree: HTTP server, snapshotter, janitor, bus consumer
//
// # Configuration
//
// Key environment variables:
//   - PROVIDER_BASE_URL, PROVIDER_API_KEY: content catalog endpoint
//   - DATABASE_PATH: DuckDB file (empty = in-memory)
//   - LEARNER_SNAPSHOT_PATH: BadgerDB directory for learner state
//   - SERVER_PORT: HTTP listen port (default 8780)
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: in-flight requests
// drain, a final learner snapshot is taken, and the store closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tunedrift/tunedrift/internal/api"
	"github.com/tunedrift/tunedrift/internal/cache"
	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/events"
	"github.com/tunedrift/tunedrift/internal/logging"
	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/provider"
	"github.com/tunedrift/tunedrift/internal/ratelimit"
	"github.com/tunedrift/tunedrift/internal/recommend"
	"github.com/tunedrift/tunedrift/internal/recommend/learner"
	"github.com/tunedrift/tunedrift/internal/store"
	"github.com/tunedrift/tunedrift/internal/supervisor"
	"github.com/tunedrift/tunedrift/internal/supervisor/services"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// learnerSnapshotter pairs the registry with its badger store for the
// snapshot service.
type learnerSnapshotter struct {
	registry *learner.Registry
	store    learner.SnapshotStore
}

func (l learnerSnapshotter) Snapshot(ctx context.Context) error {
	return l.registry.Snapshot(ctx, l.store)
}

//nolint:gocyclo // sequential startup wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("provider_url", cfg.Provider.BaseURL).
		Msg("Starting Tunedrift")

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	// === STORE ===

	st, err := store.Open(store.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	}, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store initialized")

	// === ENGINE CONFIG ===

	engineCfg := recommend.DefaultConfig()
	engineCfg.DefaultResults = cfg.Engine.DefaultResults
	engineCfg.MaxResults = cfg.Engine.MaxResults
	engineCfg.CandidateTarget = cfg.Engine.CandidateTarget
	engineCfg.CandidateMin = cfg.Engine.CandidateMin
	engineCfg.CandidateMax = cfg.Engine.CandidateMax
	engineCfg.HistoryDepth = cfg.Engine.HistoryDepth
	engineCfg.CacheTTL = cfg.Cache.TTL

	// === LEARNER ===

	learnerCfg := learner.DefaultConfig()
	learnerCfg.AdjustmentScale = engineCfg.RLAdjustmentScale
	learnerCfg.LearningRate = cfg.Learner.LearningRate
	learnerCfg.ReplayBufferSize = cfg.Learner.ReplayBufferSize
	learnerCfg.ReplayBatchSize = cfg.Learner.ReplayBatchSize
	learnerCfg.ReplayEvery = cfg.Learner.ReplayEvery
	registry, err := learner.NewRegistry(learnerCfg, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create learner registry")
	}

	snapStore, err := learner.OpenBadgerStore(cfg.Learner.SnapshotPath, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open learner snapshot store")
	}
	defer func() {
		if err := snapStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing learner snapshot store")
		}
	}()

	if err := registry.Restore(snapStore); err != nil {
		if errors.Is(err, recommend.ErrSnapshotCorrupt) {
			logging.Warn().Err(err).Msg("Some learner snapshots were corrupt and reset")
		} else {
			logging.Fatal().Err(err).Msg("Failed to restore learner state")
		}
	}
	logging.Info().Int("users", registry.UserCount()).Msg("Learner state restored")

	// === PROVIDER ===

	source, err := provider.NewSource(provider.Config{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		Timeout:        cfg.Provider.Timeout,
		CallsPerSecond: cfg.Provider.CallsPerSecond,
		Burst:          cfg.Provider.Burst,
		RetryAttempts:  cfg.Provider.RetryAttempts,
		RetryBaseDelay: cfg.Provider.RetryBaseDelay,
		BatchSize:      cfg.Provider.BatchSize,
	}, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create content provider")
	}

	// === RATE LIMITER ===

	limiter := ratelimit.NewUserLimiter(ratelimit.Config{
		Disabled:          cfg.RateLimit.Disabled,
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		Window:            cfg.RateLimit.Window,
		MaxTrackedUsers:   cfg.RateLimit.MaxTrackedUsers,
	}, logger)

	// === FEEDBACK BUS ===

	bus, err := events.NewBus(st.Interactions(), st.Profiles(), st.History(), logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create feedback bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing feedback bus")
		}
	}()

	// === ENGINE ===

	recCache := cache.New(cfg.Cache.TTL)
	featureMemo := cache.NewLRUCache(cfg.Cache.FeatureMemoSize, cfg.Cache.FeatureMemoTTL)

	engine, err := recommend.NewEngine(recommend.Options{
		Config:      engineCfg,
		Source:      source,
		History:     st.History(),
		Profiles:    st.Profiles(),
		Served:      st.Served(),
		GenreStats:  st.Interactions(),
		Popularity:  st.History(),
		Learner:     registry,
		Cache:       recCache,
		Limiter:     limiter,
		Publisher:   bus,
		FeatureMemo: featureMemo,
		Logger:      logger,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create recommendation engine")
	}
	logging.Info().Msg("Recommendation engine initialized")

	// === HTTP SERVER ===

	handler := api.NewHandler(api.HandlerOptions{
		Engine:       engine,
		PingStore:    st.Ping,
		BreakerState: func() string { return source.State().String() },
		Version:      version,
		Logger:       logger,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	// === SUPERVISOR TREE ===

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(services.NewSnapshotService(
		learnerSnapshotter{registry: registry, store: snapStore},
		cfg.Learner.SnapshotInterval, logger))
	tree.AddDataService(services.NewJanitorService(
		recCache, limiter, st.Served(),
		services.JanitorConfig{Interval: cfg.Cache.CleanupInterval}, logger))
	tree.AddEventsService(services.NewBusService(bus))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", addr).Msg("HTTP server service added")

	// Uptime gauge, updated out of band.
	startedAt := time.Now()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.AppUptime.Set(time.Since(startedAt).Seconds())
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Tunedrift stopped gracefully")
}
