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

// Snapshotter persists learner state. Implemented by the learner
// registry paired with its badger store.
type Snapshotter interface {
	Snapshot(ctx context.Context) error
}

// SnapshotService periodically persists the learner's Q-tables so a
// restart resumes from recent state instead of relearning from scratch.
// A final snapshot is taken on shutdown.
type SnapshotService struct {
	snapshotter Snapshotter
	interval    time.Duration
	logger      zerolog.Logger
	name        string
}

// NewSnapshotService creates the snapshot service. Interval defaults to
// five minutes.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewSnapshotService(snapshotter Snapshotter, interval time.Duration, logger zerolog.Logger) *SnapshotService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SnapshotService{
		snapshotter: snapshotter,
		interval:    interval,
		logger:      logger.With().Str("service", "snapshot").Logger(),
		name:        "learner-snapshot",
	}
}

// Serve implements suture.Service.
func (s *SnapshotService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("learner snapshot service starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort final snapshot before the process exits.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.snapshotter.Snapshot(shutdownCtx); err != nil {
				s.logger.Error().Err(err).Msg("final learner snapshot failed")
			}
			cancel()
			return ctx.Err()

		case <-ticker.C:
			if err := s.snapshotter.Snapshot(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled learner snapshot failed")
			}
		}
	}
}

// String returns the service name for logging.
func (s *SnapshotService) String() string {
	return s.name
}
