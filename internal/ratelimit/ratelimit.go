// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package ratelimit implements the per-user request limiter on top of
// sliding-window counters. Transport-level IP limiting is handled
// separately by httprate middleware in the API layer.
package ratelimit

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/cache"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// windowBuckets divides the limit window for counting resolution.
const windowBuckets = 12

// Config holds per-user rate limit settings.
type Config struct {
	// Disabled turns the limiter into a pass-through.
	Disabled bool

	// RequestsPerWindow is the per-user allowance inside Window.
	RequestsPerWindow int

	// Window is the sliding limit window.
	Window time.Duration

	// MaxTrackedUsers bounds the counter store.
	MaxTrackedUsers int
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		MaxTrackedUsers:   100000,
	}
}

// UserLimiter limits request rates per user ID with a sliding window.
type UserLimiter struct {
	cfg    Config
	store  *cache.SlidingWindowStore
	logger zerolog.Logger
}

var _ recommend.RateLimiter = (*UserLimiter)(nil)

// NewUserLimiter creates a per-user limiter.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewUserLimiter(cfg Config, logger zerolog.Logger) *UserLimiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultConfig().RequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}

	return &UserLimiter{
		cfg:    cfg,
		store:  cache.NewSlidingWindowStore(cfg.Window, windowBuckets, cfg.MaxTrackedUsers),
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow reports whether the user may proceed. Allowed requests count
// against the window; denied requests do not, so a saturated user is
// not pushed further into the future. The returned duration is the
// suggested wait before retrying.
func (l *UserLimiter) Allow(userID string) (bool, time.Duration) {
	if l.cfg.Disabled {
		return true, 0
	}

	if l.store.Count(userID) >= int64(l.cfg.RequestsPerWindow) {
		retryAfter := l.cfg.Window / windowBuckets
		l.logger.Debug().Str("user_id", userID).
			Dur("retry_after", retryAfter).Msg("user rate limit exceeded")
		return false, retryAfter
	}

	l.store.Increment(userID)
	return true, 0
}

// Remaining returns how many requests the user has left in the window.
func (l *UserLimiter) Remaining(userID string) int64 {
	if l.cfg.Disabled {
		return int64(l.cfg.RequestsPerWindow)
	}
	remaining := int64(l.cfg.RequestsPerWindow) - l.store.Count(userID)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CleanupInactive drops counters with no activity in the window and
// returns the number removed. Driven by the supervisor janitor.
func (l *UserLimiter) CleanupInactive() int {
	return l.store.CleanupInactive()
}

// TrackedUsers returns how many users currently have counters.
func (l *UserLimiter) TrackedUsers() int {
	return l.store.Len()
}
