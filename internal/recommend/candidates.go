// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
)

// ContentSource is the catalog abstraction the engine generates
// candidates from. The provider package implements it over HTTP with a
// circuit breaker and call budget; tests substitute fakes.
type ContentSource interface {
	// Recommendations returns tracks related to the given seed tracks.
	Recommendations(ctx context.Context, seedTrackIDs []string, limit int) ([]Track, error)

	// BrowseGenre returns tracks for a genre label.
	BrowseGenre(ctx context.Context, genre string, limit int) ([]Track, error)

	// NewReleases returns recently released tracks.
	NewReleases(ctx context.Context, limit int) ([]Track, error)

	// Popular returns globally popular tracks, most popular first.
	Popular(ctx context.Context, limit int) ([]Track, error)

	// AudioFeatures returns audio descriptors for the given track IDs.
	// Missing IDs are absent from the result map.
	AudioFeatures(ctx context.Context, trackIDs []string) (map[string]AudioFeatures, error)
}

// PopularityFallback serves a locally stored popularity list when the
// provider's popular feed is unreachable. Implemented by the store over
// aggregate listening history.
type PopularityFallback interface {
	GlobalTopTracks(ctx context.Context, limit int) ([]Track, error)
}

// maxSeedTracks bounds the recency-based seed list used when history
// carries no genre labels.
const maxSeedTracks = 5

// seedsPerGenre is how many history tracks seed each genre's
// related-tracks query.
const seedsPerGenre = 2

// topGenreCount is how many history genres get seed and browse queries.
const topGenreCount = 3

// CandidateGenerator assembles the candidate pool from multiple catalog
// sources with per-source fail-open behavior.
type CandidateGenerator struct {
	cfg      Config
	source   ContentSource
	fallback PopularityFallback
	logger   zerolog.Logger
}

// NewCandidateGenerator creates a candidate generator. fallback may be
// nil; without it a full provider outage cannot be recovered locally.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewCandidateGenerator(cfg Config, source ContentSource, fallback PopularityFallback, logger zerolog.Logger) *CandidateGenerator {
	return &CandidateGenerator{
		cfg:      cfg,
		source:   source,
		fallback: fallback,
		logger:   logger.With().Str("component", "candidates").Logger(),
	}
}

// Generate builds the candidate pool for a user. Sources are queried in
// order: per-genre seeded recommendations, genre browses for the user's
// top genres, new releases, and the popularity list when the stage is
// new or the pool came up short. Duplicates keep the first source tag.
//
// Individual source failures are logged and skipped. When the provider's
// popular feed also fails, the stored popularity list fills the pool;
// only if nothing at all is reachable is ErrProviderUnavailable
// returned. The returned degraded flag is set when the pool was rebuilt
// after primary source failures or from the stored list.
func (g *CandidateGenerator) Generate(ctx context.Context, history []HistoryTrack, stage ColdStartStage) ([]Track, bool, error) {
	target := g.cfg.CandidateTarget

	pool := make([]Track, 0, target)
	seen := make(map[string]struct{}, target)
	primaryFailures := 0
	primaryAttempts := 0

	add := func(tracks []Track, source CandidateSource) {
		for _, t := range tracks {
			if t.ID == "" {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			t.Source = source
			pool = append(pool, t)
		}
	}

	// Seeded recommendations need history to seed from.
	if stage != StageNew && len(history) > 0 {
		for _, seeds := range seedSets(history) {
			primaryAttempts++
			tracks, err := g.source.Recommendations(ctx, seeds, target/3)
			if err != nil {
				primaryFailures++
				g.logger.Warn().Err(err).Msg("seeded recommendations failed, skipping source")
				continue
			}
			add(tracks, SourceSeeded)
		}
	}

	for _, genre := range topGenres(history, topGenreCount) {
		primaryAttempts++
		tracks, err := g.source.BrowseGenre(ctx, genre, target/6)
		if err != nil {
			primaryFailures++
			g.logger.Warn().Err(err).Str("genre", genre).Msg("genre browse failed, skipping source")
			continue
		}
		add(tracks, SourceGenre)
	}

	primaryAttempts++
	releases, err := g.source.NewReleases(ctx, 50)
	if err != nil {
		primaryFailures++
		g.logger.Warn().Err(err).Msg("new releases failed, skipping source")
	} else {
		add(releases, SourceNewRelease)
	}

	allPrimaryFailed := primaryAttempts > 0 && primaryFailures == primaryAttempts
	usedStoredFallback := false

	if stage == StageNew || len(pool) < target/2 {
		want := target - len(pool)
		if want > 0 {
			popular, perr := g.source.Popular(ctx, want)
			if perr == nil {
				add(popular, SourcePopularity)
			} else {
				g.logger.Warn().Err(perr).Msg("provider popularity list failed, trying stored list")
				stored, serr := g.storedPopular(ctx, want)
				if serr != nil {
					g.logger.Warn().Err(serr).Msg("stored popularity list failed")
				}
				if len(stored) > 0 {
					add(stored, SourcePopularity)
					usedStoredFallback = true
				} else if len(pool) == 0 {
					return nil, true, ErrProviderUnavailable
				}
			}
		}
	}

	if len(pool) == 0 {
		return nil, true, ErrProviderUnavailable
	}

	if len(pool) > g.cfg.CandidateMax {
		pool = pool[:g.cfg.CandidateMax]
	}

	degraded := allPrimaryFailed || usedStoredFallback
	if degraded {
		g.logger.Warn().
			Int("pool_size", len(pool)).
			Bool("stored_fallback", usedStoredFallback).
			Msg("candidate pool rebuilt from popularity fallback")
	}

	return pool, degraded, nil
}

// storedPopular reads the local popularity list, if one is wired.
func (g *CandidateGenerator) storedPopular(ctx context.Context, limit int) ([]Track, error) {
	if g.fallback == nil {
		return nil, nil
	}
	return g.fallback.GlobalTopTracks(ctx, limit)
}

// seedSets groups seeds for the related-tracks queries: the user's top
// seedsPerGenre history tracks for each top genre, one query per genre.
// History without genre labels falls back to a single recency-based set.
func seedSets(history []HistoryTrack) [][]string {
	byGenre := make(map[string][]string)
	for _, h := range history {
		genre := h.Track.PrimaryGenre()
		if genre == "" {
			continue
		}
		if len(byGenre[genre]) < seedsPerGenre {
			byGenre[genre] = append(byGenre[genre], h.Track.ID)
		}
	}

	sets := make([][]string, 0, topGenreCount)
	for _, genre := range topGenres(history, topGenreCount) {
		if seeds := byGenre[genre]; len(seeds) > 0 {
			sets = append(sets, seeds)
		}
	}
	if len(sets) == 0 {
		sets = append(sets, recentSeedIDs(history))
	}
	return sets
}

// recentSeedIDs picks the most recent history tracks as seeds.
func recentSeedIDs(history []HistoryTrack) []string {
	n := maxSeedTracks
	if len(history) < n {
		n = len(history)
	}
	seeds := make([]string, 0, n)
	for _, h := range history[:n] {
		seeds = append(seeds, h.Track.ID)
	}
	return seeds
}

// topGenres returns the most frequent genres in the history, weighted by
// play count, most frequent first. Ties break alphabetically for
// deterministic queries.
func topGenres(history []HistoryTrack, limit int) []string {
	counts := make(map[string]int)
	for _, h := range history {
		weight := h.PlayCount
		if weight < 1 {
			weight = 1
		}
		for _, genre := range h.Track.Genres {
			if genre != "" {
				counts[genre] += weight
			}
		}
	}

	genres := make([]string, 0, len(counts))
	for genre := range counts {
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool {
		if counts[genres[i]] != counts[genres[j]] {
			return counts[genres[i]] > counts[genres[j]]
		}
		return genres[i] < genres[j]
	})

	if len(genres) > limit {
		genres = genres[:limit]
	}
	return genres
}
