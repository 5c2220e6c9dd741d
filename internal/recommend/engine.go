// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package recommend implements the personality-aware recommendation
// engine: candidate generation, multi-signal scoring, cold-start
// staging, reinforcement adjustment, caching and feedback intake.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/cache"
	"github.com/tunedrift/tunedrift/internal/metrics"
)

// HistoryStore reads a user's listening history.
// Implemented by the store package; defined here to avoid circular
// imports.
type HistoryStore interface {
	// TopTracks returns the user's most engaged tracks, most recent
	// first, up to limit.
	TopTracks(ctx context.Context, userID string, limit int) ([]HistoryTrack, error)

	// Lookup returns a single history entry by track ID.
	Lookup(ctx context.Context, userID, trackID string) (HistoryTrack, bool, error)
}

// ProfileStore reads Big Five personality profiles.
type ProfileStore interface {
	// Profile returns the user's profile. Users without an assessment
	// get BalancedProfile.
	Profile(ctx context.Context, userID string) (UserProfile, error)
}

// ServedIndex records which tracks were served to which user so
// feedback can be validated and resolved back to track metadata.
type ServedIndex interface {
	// MarkServed records the tracks of a served recommendation set.
	MarkServed(ctx context.Context, userID string, tracks []Track) error

	// ServedTrack returns the served track snapshot for a track ID.
	ServedTrack(ctx context.Context, userID, trackID string) (Track, bool, error)
}

// GenreStatsReader reads per-genre feedback aggregates for insights.
type GenreStatsReader interface {
	TopGenres(ctx context.Context, userID string, limit int) ([]GenreInsight, error)
	BottomGenres(ctx context.Context, userID string, limit int) ([]GenreInsight, error)
}

// Learner is the per-user reinforcement learner. Implemented by the
// learner package.
type Learner interface {
	// Adjustment returns the bounded score adjustment for a candidate.
	Adjustment(userID string, t Track, profile UserProfile) float64

	// Epsilon returns the user's current exploration rate.
	Epsilon(userID string) float64

	// Process applies a feedback event and returns the update outcome.
	Process(event InteractionEvent, t Track, profile UserProfile) (FeedbackResult, error)

	// Stats summarizes the user's learner state.
	Stats(userID string) LearnerStats
}

// RateLimiter gates per-user request rates.
type RateLimiter interface {
	// Allow reports whether the user may proceed and, when denied, how
	// long to wait before retrying.
	Allow(userID string) (bool, time.Duration)
}

// FeedbackPublisher forwards accepted feedback events for asynchronous
// persistence (interaction log, genre aggregates).
type FeedbackPublisher interface {
	PublishFeedback(event InteractionEvent, t Track) error
}

// Options wires an Engine's dependencies.
type Options struct {
	Config     Config
	Source     ContentSource
	History    HistoryStore
	Profiles   ProfileStore
	Served     ServedIndex
	GenreStats GenreStatsReader
	Learner    Learner
	Cache      cache.Cacher
	Limiter    RateLimiter
	Publisher  FeedbackPublisher
	// Popularity is the stored popularity list used when the provider's
	// popular feed is down. Optional.
	Popularity PopularityFallback
	// FeatureMemo is the shared audio-feature LRU. Optional; a default
	// is created when nil.
	FeatureMemo *cache.LRUCache
	Logger      zerolog.Logger
}

// Engine is the recommendation façade: it owns candidate generation,
// scoring, caching, rate limiting, feedback intake and insights.
type Engine struct {
	cfg        Config
	scorer     *Scorer
	candidates *CandidateGenerator
	enricher   *Enricher
	history    HistoryStore
	profiles   ProfileStore
	served     ServedIndex
	genreStats GenreStatsReader
	learner    Learner
	cache      cache.Cacher
	limiter    RateLimiter
	publisher  FeedbackPublisher
	logger     zerolog.Logger

	// now and randFloat are injectable for deterministic tests.
	now       func() time.Time
	randFloat func() float64
	randIntn  func(int) int
}

// NewEngine creates an engine from the given options.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if opts.Source == nil {
		return nil, errors.New("content source is required")
	}
	if opts.History == nil || opts.Profiles == nil || opts.Served == nil {
		return nil, errors.New("history, profile and served stores are required")
	}
	if opts.Learner == nil {
		return nil, errors.New("learner is required")
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(opts.Config.CacheTTL)
	}
	if opts.FeatureMemo == nil {
		opts.FeatureMemo = cache.NewLRUCache(20000, 24*time.Hour)
	}

	logger := opts.Logger.With().Str("component", "engine").Logger()

	return &Engine{
		cfg:        opts.Config,
		scorer:     NewScorer(opts.Config),
		candidates: NewCandidateGenerator(opts.Config, opts.Source, opts.Popularity, opts.Logger),
		enricher:   NewEnricher(opts.Source, opts.FeatureMemo, 100, opts.Logger),
		history:    opts.History,
		profiles:   opts.Profiles,
		served:     opts.Served,
		genreStats: opts.GenreStats,
		learner:    opts.Learner,
		cache:      opts.Cache,
		limiter:    opts.Limiter,
		publisher:  opts.Publisher,
		logger:     logger,
		now:        time.Now,
		randFloat:  rand.Float64,
		randIntn:   rand.Intn,
	}, nil
}

// cacheKeyParams is the cache key identity for a recommendation set.
// Two requests differing only in ForceRefresh share an entry.
type cacheKeyParams struct {
	UserID     string `json:"user_id"`
	MaxResults int    `json:"max_results"`
}

// GetRecommendations returns the ranked recommendation set for a user.
// Fresh cached sets are returned as-is unless the request forces a
// refresh. On total provider failure a stale cached set is served with
// degraded metadata rather than failing the request.
func (e *Engine) GetRecommendations(ctx context.Context, req Request) (*RecommendationSet, error) {
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = e.cfg.DefaultResults
	}
	if maxResults > e.cfg.MaxResults {
		maxResults = e.cfg.MaxResults
	}

	if e.limiter != nil {
		if ok, retryAfter := e.limiter.Allow(req.UserID); !ok {
			metrics.APIRateLimitHits.WithLabelValues("recommendations").Inc()
			return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, retryAfter)
		}
	}

	key := cache.GenerateKey("recommendations", cacheKeyParams{
		UserID:     req.UserID,
		MaxResults: maxResults,
	})

	// Read through GetStale so an expired set stays available as a
	// degraded fallback if regeneration fails below.
	var stale *RecommendationSet
	if cached, present, fresh := e.cache.GetStale(key); present {
		set := cached.(*RecommendationSet)
		if fresh && !req.ForceRefresh {
			metrics.RecordCacheResult("recommendations", true)
			metrics.RecommendationsServed.WithLabelValues("cache").Inc()
			out := *set
			out.FromCache = true
			return &out, nil
		}
		stale = set
	}
	if !req.ForceRefresh {
		metrics.RecordCacheResult("recommendations", false)
	}

	started := e.now()
	set, err := e.generate(ctx, req.UserID, maxResults)
	if err != nil {
		// Total provider failure: fall back to the stale set if one exists.
		if errors.Is(err, ErrProviderUnavailable) && stale != nil {
			out := *stale
			out.FromCache = true
			out.Degraded = true
			out.DegradedReason = "stale_cache"
			metrics.RecommendationsServed.WithLabelValues("stale").Inc()
			e.logger.Warn().Str("user_id", req.UserID).
				Msg("provider unavailable, serving stale recommendation set")
			return &out, nil
		}
		return nil, err
	}
	metrics.RecommendationDuration.Observe(e.now().Sub(started).Seconds())

	e.cache.SetWithTTL(key, set, e.cfg.CacheTTL)

	tracks := make([]Track, 0, len(set.Tracks))
	for _, st := range set.Tracks {
		tracks = append(tracks, st.Track)
	}
	if err := e.served.MarkServed(ctx, req.UserID, tracks); err != nil {
		e.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to record served tracks")
	}

	source := "generated"
	if set.Degraded {
		source = "fallback"
	}
	metrics.RecommendationsServed.WithLabelValues(source).Inc()

	return set, nil
}

// generate runs the full pipeline: profile, history, candidates,
// enrichment, scoring and exploration.
func (e *Engine) generate(ctx context.Context, userID string, maxResults int) (*RecommendationSet, error) {
	profile, err := e.profiles.Profile(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("profile lookup failed, using balanced profile")
		profile = BalancedProfile(userID)
	}

	history, err := e.history.TopTracks(ctx, userID, e.cfg.HistoryDepth)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("history lookup failed, proceeding without history")
		history = nil
	}

	stage := StageFor(profile, len(history))
	metrics.RecommendationColdStartStage.WithLabelValues(stage.String()).Inc()

	pool, degraded, err := e.candidates.Generate(ctx, history, stage)
	if err != nil {
		return nil, err
	}
	pool = e.enricher.Enrich(ctx, pool)
	metrics.RecommendationCandidatePoolSize.Observe(float64(len(pool)))

	adjust := func(t Track) float64 {
		return e.learner.Adjustment(userID, t, profile)
	}

	scored := e.scorer.Rank(pool, history, profile, adjust, maxResults)
	scored = e.explore(userID, scored, pool, history, profile)

	now := e.now()
	set := &RecommendationSet{
		UserID:         userID,
		Tracks:         scored,
		GeneratedAt:    now,
		ExpiresAt:      now.Add(e.cfg.CacheTTL),
		Stage:          stage,
		StageEmphasis:  e.cfg.WeightsFor(stage).ToMap(),
		CandidateCount: len(pool),
		Degraded:       degraded,
	}
	if degraded {
		set.DegradedReason = "provider_fallback"
	}
	return set, nil
}

// explore occasionally swaps the last-ranked slot for a random unranked
// candidate, at the learner's exploration rate. The swapped track keeps
// a fully computed score breakdown and is marked Explore.
func (e *Engine) explore(userID string, scored []ScoredTrack, pool []Track, history []HistoryTrack, profile UserProfile) []ScoredTrack {
	if len(scored) == 0 || len(pool) <= len(scored) {
		return scored
	}

	eps := e.learner.Epsilon(userID)
	if e.randFloat() >= eps {
		return scored
	}

	ranked := make(map[string]struct{}, len(scored))
	for _, st := range scored {
		ranked[st.Track.ID] = struct{}{}
	}
	unranked := make([]Track, 0, len(pool)-len(scored))
	for _, t := range pool {
		if _, ok := ranked[t.ID]; !ok {
			unranked = append(unranked, t)
		}
	}
	if len(unranked) == 0 {
		return scored
	}

	pick := unranked[e.randIntn(len(unranked))]
	selected := make([]Track, 0, len(scored)-1)
	for _, st := range scored[:len(scored)-1] {
		selected = append(selected, st.Track)
	}
	swapped := e.scorer.Composite(pick, history, profile, selected,
		e.learner.Adjustment(userID, pick, profile))
	swapped.Explore = true
	scored[len(scored)-1] = swapped

	e.logger.Debug().Str("user_id", userID).Str("track_id", pick.ID).
		Float64("epsilon", eps).Msg("exploration swap applied")
	return scored
}

// SubmitFeedback validates and applies a feedback event. The referenced
// track must have been served to the user or appear in their history;
// otherwise the event is rejected with ErrUnknownTrack and learner state
// stays untouched. Accepted events update the learner synchronously and
// are forwarded for asynchronous persistence.
func (e *Engine) SubmitFeedback(ctx context.Context, event InteractionEvent) (*FeedbackResult, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}

	track, ok, err := e.resolveTrack(ctx, event.UserID, event.TrackID)
	if err != nil {
		return nil, fmt.Errorf("resolving feedback track: %w", err)
	}
	if !ok {
		metrics.RecordFeedbackRejection("unknown_track")
		return nil, fmt.Errorf("%w: track %q for user %q", ErrUnknownTrack, event.TrackID, event.UserID)
	}

	profile, err := e.profiles.Profile(ctx, event.UserID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", event.UserID).Msg("profile lookup failed, using balanced profile")
		profile = BalancedProfile(event.UserID)
	}

	result, err := e.learner.Process(event, track, profile)
	if err != nil {
		return nil, fmt.Errorf("processing feedback: %w", err)
	}

	if e.publisher != nil {
		if err := e.publisher.PublishFeedback(event, track); err != nil {
			e.logger.Warn().Err(err).Str("user_id", event.UserID).
				Msg("failed to publish feedback event for persistence")
		}
	}

	metrics.RecordFeedback(event.Kind.String())
	return &result, nil
}

// resolveTrack finds the track metadata for a feedback reference, first
// in the served index, then in listening history.
func (e *Engine) resolveTrack(ctx context.Context, userID, trackID string) (Track, bool, error) {
	track, ok, err := e.served.ServedTrack(ctx, userID, trackID)
	if err != nil {
		return Track{}, false, err
	}
	if ok {
		return track, true, nil
	}

	h, ok, err := e.history.Lookup(ctx, userID, trackID)
	if err != nil {
		return Track{}, false, err
	}
	if ok {
		return h.Track, true, nil
	}
	return Track{}, false, nil
}

// GetInsights returns the user's learner statistics and per-genre
// feedback aggregates.
func (e *Engine) GetInsights(ctx context.Context, userID string) (*Insights, error) {
	stats := e.learner.Stats(userID)

	insights := &Insights{
		UserID: userID,
		Stats:  stats,
	}

	if e.genreStats != nil {
		top, err := e.genreStats.TopGenres(ctx, userID, 5)
		if err != nil {
			e.logger.Warn().Err(err).Str("user_id", userID).Msg("top genre lookup failed")
		} else {
			insights.TopGenres = top
		}

		bottom, err := e.genreStats.BottomGenres(ctx, userID, 3)
		if err != nil {
			e.logger.Warn().Err(err).Str("user_id", userID).Msg("bottom genre lookup failed")
		} else {
			insights.BottomGenres = bottom
		}
	}

	profile, err := e.profiles.Profile(ctx, userID)
	if err == nil {
		history, herr := e.history.TopTracks(ctx, userID, 1)
		historySize := 0
		if herr == nil {
			historySize = len(history)
		}
		insights.Stage = StageFor(profile, historySize)
	}

	return insights, nil
}

// CacheStats exposes recommendation cache counters for diagnostics.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.GetStats()
}
