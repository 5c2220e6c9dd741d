// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CacheCleaner removes expired cache entries and reports how many.
type CacheCleaner interface {
	Cleanup() int
}

// LimiterCleaner drops rate-limit windows for inactive users.
type LimiterCleaner interface {
	CleanupInactive() int
}

// ServedPruner removes served-track records older than the cutoff.
type ServedPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// JanitorService sweeps expired state on an interval: recommendation
// cache entries, idle rate-limit windows, and stale served-track rows.
// Any collaborator may be nil when the corresponding sweep is not
// wanted.
type JanitorService struct {
	cache           CacheCleaner
	limiter         LimiterCleaner
	served          ServedPruner
	interval        time.Duration
	servedRetention time.Duration
	logger          zerolog.Logger
	name            string
}

// JanitorConfig holds the sweep intervals.
type JanitorConfig struct {
	// Interval is how often the janitor runs. Default: 10m.
	Interval time.Duration

	// ServedRetention is how long served-track records are kept.
	// Default: 7 days, comfortably past the cache TTL so feedback on
	// stale-served sets still resolves.
	ServedRetention time.Duration
}

// NewJanitorService creates the janitor.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewJanitorService(cache CacheCleaner, limiter LimiterCleaner, served ServedPruner, cfg JanitorConfig, logger zerolog.Logger) *JanitorService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.ServedRetention <= 0 {
		cfg.ServedRetention = 7 * 24 * time.Hour
	}
	return &JanitorService{
		cache:           cache,
		limiter:         limiter,
		served:          served,
		interval:        cfg.Interval,
		servedRetention: cfg.ServedRetention,
		logger:          logger.With().Str("service", "janitor").Logger(),
		name:            "janitor",
	}
}

// Serve implements suture.Service.
func (j *JanitorService) Serve(ctx context.Context) error {
	j.logger.Info().
		Dur("interval", j.interval).
		Dur("served_retention", j.servedRetention).
		Msg("janitor starting")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *JanitorService) sweep(ctx context.Context) {
	if j.cache != nil {
		if removed := j.cache.Cleanup(); removed > 0 {
			j.logger.Debug().Int("removed", removed).Msg("expired cache entries removed")
		}
	}
	if j.limiter != nil {
		if removed := j.limiter.CleanupInactive(); removed > 0 {
			j.logger.Debug().Int("removed", removed).Msg("inactive limiter windows removed")
		}
	}
	if j.served != nil {
		cutoff := time.Now().Add(-j.servedRetention)
		removed, err := j.served.PruneOlderThan(ctx, cutoff)
		if err != nil {
			j.logger.Warn().Err(err).Msg("served-track prune failed")
		} else if removed > 0 {
			j.logger.Debug().Int64("removed", removed).Msg("stale served-track rows pruned")
		}
	}
}

// String returns the service name for logging.
func (j *JanitorService) String() string {
	return j.name
}
