// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// breakerName labels circuit breaker metrics.
const breakerName = "catalog-api"

// Source wraps the catalog client with a circuit breaker and implements
// recommend.ContentSource. The breaker opens at a 60% failure rate over
// at least 10 requests and probes recovery after 2 minutes.
//
// The breaker uses real time for its interval and timeout bookkeeping.
// That timing only governs recovery, never data integrity, so unit tests
// exercise the wrapped client directly.
type Source struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger zerolog.Logger
}

var _ recommend.ContentSource = (*Source)(nil)

// NewSource creates a circuit-breaker protected catalog source.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewSource(cfg Config, logger zerolog.Logger) (*Source, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newSourceWithClient(client, logger), nil
}

//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func newSourceWithClient(client *Client, logger zerolog.Logger) *Source {
	log := logger.With().Str("component", "provider_breaker").Logger()

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				log.Warn().Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening catalog circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			log.Info().Str("from", fromStr).Str("to", toStr).Msg("catalog circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Source{
		client: client,
		cb:     cb,
		logger: log,
	}
}

// execute wraps a catalog call with circuit breaker protection.
func (s *Source) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := s.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			return nil, fmt.Errorf("%w: catalog circuit open: %v", recommend.ErrProviderUnavailable, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	return result, nil
}

// castResult type-casts a circuit breaker result with error checking.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Recommendations returns related tracks with circuit breaker protection.
func (s *Source) Recommendations(ctx context.Context, seedTrackIDs []string, limit int) ([]recommend.Track, error) {
	return castResult[[]recommend.Track](s.execute(func() (interface{}, error) {
		return s.client.Recommendations(ctx, seedTrackIDs, limit)
	}))
}

// BrowseGenre returns genre tracks with circuit breaker protection.
func (s *Source) BrowseGenre(ctx context.Context, genre string, limit int) ([]recommend.Track, error) {
	return castResult[[]recommend.Track](s.execute(func() (interface{}, error) {
		return s.client.BrowseGenre(ctx, genre, limit)
	}))
}

// NewReleases returns recent tracks with circuit breaker protection.
func (s *Source) NewReleases(ctx context.Context, limit int) ([]recommend.Track, error) {
	return castResult[[]recommend.Track](s.execute(func() (interface{}, error) {
		return s.client.NewReleases(ctx, limit)
	}))
}

// Popular returns popular tracks with circuit breaker protection.
func (s *Source) Popular(ctx context.Context, limit int) ([]recommend.Track, error) {
	return castResult[[]recommend.Track](s.execute(func() (interface{}, error) {
		return s.client.Popular(ctx, limit)
	}))
}

// AudioFeatures returns audio descriptors with circuit breaker protection.
func (s *Source) AudioFeatures(ctx context.Context, trackIDs []string) (map[string]recommend.AudioFeatures, error) {
	return castResult[map[string]recommend.AudioFeatures](s.execute(func() (interface{}, error) {
		return s.client.AudioFeatures(ctx, trackIDs)
	}))
}

// State returns the current circuit breaker state.
func (s *Source) State() gobreaker.State {
	return s.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
