// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

// fakeSource is a configurable ContentSource test double. Unset
// functions return empty results.
type fakeSource struct {
	recommendations func(ctx context.Context, seedTrackIDs []string, limit int) ([]Track, error)
	browseGenre     func(ctx context.Context, genre string, limit int) ([]Track, error)
	newReleases     func(ctx context.Context, limit int) ([]Track, error)
	popular         func(ctx context.Context, limit int) ([]Track, error)
	audioFeatures   func(ctx context.Context, trackIDs []string) (map[string]AudioFeatures, error)

	recommendationCalls int
	popularCalls        int
}

func (f *fakeSource) Recommendations(ctx context.Context, seedTrackIDs []string, limit int) ([]Track, error) {
	f.recommendationCalls++
	if f.recommendations == nil {
		return nil, nil
	}
	return f.recommendations(ctx, seedTrackIDs, limit)
}

func (f *fakeSource) BrowseGenre(ctx context.Context, genre string, limit int) ([]Track, error) {
	if f.browseGenre == nil {
		return nil, nil
	}
	return f.browseGenre(ctx, genre, limit)
}

func (f *fakeSource) NewReleases(ctx context.Context, limit int) ([]Track, error) {
	if f.newReleases == nil {
		return nil, nil
	}
	return f.newReleases(ctx, limit)
}

func (f *fakeSource) Popular(ctx context.Context, limit int) ([]Track, error) {
	f.popularCalls++
	if f.popular == nil {
		return nil, nil
	}
	return f.popular(ctx, limit)
}

func (f *fakeSource) AudioFeatures(ctx context.Context, trackIDs []string) (map[string]AudioFeatures, error) {
	if f.audioFeatures == nil {
		return map[string]AudioFeatures{}, nil
	}
	return f.audioFeatures(ctx, trackIDs)
}

func makeTracks(prefix string, n int) []Track {
	tracks := make([]Track, 0, n)
	for i := 0; i < n; i++ {
		tracks = append(tracks, Track{
			ID:      fmt.Sprintf("%s-%d", prefix, i),
			Artists: []string{prefix + " artist"},
			Genres:  []string{"pop"},
		})
	}
	return tracks
}

func testGeneratorConfig() Config {
	cfg := DefaultConfig()
	cfg.CandidateTarget = 30
	cfg.CandidateMin = 10
	cfg.CandidateMax = 60
	return cfg
}

func TestGenerateCombinesSources(t *testing.T) {
	source := &fakeSource{
		recommendations: func(_ context.Context, seeds []string, limit int) ([]Track, error) {
			if len(seeds) == 0 {
				t.Error("expected seed track IDs")
			}
			return makeTracks("seeded", limit), nil
		},
		browseGenre: func(_ context.Context, genre string, limit int) ([]Track, error) {
			return makeTracks("genre-"+genre, limit), nil
		},
		newReleases: func(_ context.Context, limit int) ([]Track, error) {
			return makeTracks("release", 5), nil
		},
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, nil, zerolog.Nop())

	history := historyOf(energeticPop("h1"), energeticPop("h2"))
	pool, degraded, err := g.Generate(context.Background(), history, StageEstablished)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Error("pool should not be degraded when sources succeed")
	}

	sources := make(map[CandidateSource]int)
	for _, track := range pool {
		sources[track.Source]++
	}
	if sources[SourceSeeded] == 0 || sources[SourceGenre] == 0 || sources[SourceNewRelease] == 0 {
		t.Errorf("expected tracks from all primary sources, got %v", sources)
	}
}

func TestGenerateDedupesKeepingFirstSource(t *testing.T) {
	shared := Track{ID: "shared", Genres: []string{"pop"}}
	source := &fakeSource{
		recommendations: func(_ context.Context, _ []string, _ int) ([]Track, error) {
			return []Track{shared}, nil
		},
		browseGenre: func(_ context.Context, _ string, _ int) ([]Track, error) {
			return []Track{shared}, nil
		},
		popular: func(_ context.Context, limit int) ([]Track, error) {
			return makeTracks("popular", limit), nil
		},
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, nil, zerolog.Nop())

	pool, _, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageEstablished)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, track := range pool {
		if track.ID == "shared" {
			count++
			if track.Source != SourceSeeded {
				t.Errorf("duplicate kept source %s, want %s", track.Source, SourceSeeded)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one copy of the shared track, got %d", count)
	}
}

func TestGenerateSkipsSeededForNewStage(t *testing.T) {
	source := &fakeSource{
		popular: func(_ context.Context, limit int) ([]Track, error) {
			return makeTracks("popular", limit), nil
		},
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, nil, zerolog.Nop())

	_, _, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageNew)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.recommendationCalls != 0 {
		t.Errorf("seeded recommendations should be skipped for new users, got %d calls", source.recommendationCalls)
	}
	if source.popularCalls == 0 {
		t.Error("new stage should always query the popularity list")
	}
}

func TestGeneratePopularityTopUpWhenShort(t *testing.T) {
	source := &fakeSource{
		newReleases: func(_ context.Context, _ int) ([]Track, error) {
			return makeTracks("release", 3), nil
		},
		popular: func(_ context.Context, limit int) ([]Track, error) {
			return makeTracks("popular", limit), nil
		},
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, nil, zerolog.Nop())

	pool, _, err := g.Generate(context.Background(), nil, StageEstablished)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.popularCalls != 1 {
		t.Errorf("expected one popularity top-up call, got %d", source.popularCalls)
	}
	if len(pool) != testGeneratorConfig().CandidateTarget {
		t.Errorf("expected pool topped up to target %d, got %d", testGeneratorConfig().CandidateTarget, len(pool))
	}
}

func TestGenerateAllSourcesFail(t *testing.T) {
	boom := errors.New("provider down")
	source := &fakeSource{
		recommendations: func(_ context.Context, _ []string, _ int) ([]Track, error) { return nil, boom },
		browseGenre:     func(_ context.Context, _ string, _ int) ([]Track, error) { return nil, boom },
		newReleases:     func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
		popular:         func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, nil, zerolog.Nop())

	_, _, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageEstablished)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

// fakeFallback serves a fixed track list as the stored popularity list.
type fakeFallback struct {
	tracks []Track
	err    error
	calls  int
}

func (f *fakeFallback) GlobalTopTracks(_ context.Context, limit int) ([]Track, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.tracks) {
		return f.tracks[:limit], nil
	}
	return f.tracks, nil
}

func TestGenerateUsesStoredListOnTotalProviderOutage(t *testing.T) {
	boom := errors.New("provider down")
	source := &fakeSource{
		recommendations: func(_ context.Context, _ []string, _ int) ([]Track, error) { return nil, boom },
		browseGenre:     func(_ context.Context, _ string, _ int) ([]Track, error) { return nil, boom },
		newReleases:     func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
		popular:         func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
	}
	fallback := &fakeFallback{tracks: makeTracks("stored", 12)}
	g := NewCandidateGenerator(testGeneratorConfig(), source, fallback, zerolog.Nop())

	pool, degraded, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageEstablished)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fallback.calls != 1 {
		t.Errorf("expected one stored list read, got %d", fallback.calls)
	}
	if !degraded {
		t.Error("expected degraded flag when serving the stored list")
	}
	if len(pool) == 0 {
		t.Fatal("expected stored popularity list to fill the pool")
	}
	for _, track := range pool {
		if track.Source != SourcePopularity {
			t.Errorf("expected only popularity tracks, got %s", track.Source)
		}
	}
}

func TestGenerateStoredListAlsoEmpty(t *testing.T) {
	boom := errors.New("provider down")
	source := &fakeSource{
		recommendations: func(_ context.Context, _ []string, _ int) ([]Track, error) { return nil, boom },
		browseGenre:     func(_ context.Context, _ string, _ int) ([]Track, error) { return nil, boom },
		newReleases:     func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
		popular:         func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, &fakeFallback{}, zerolog.Nop())

	_, _, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageEstablished)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestGeneratePrimaryFailuresFallBackToPopularity(t *testing.T) {
	boom := errors.New("provider down")
	source := &fakeSource{
		recommendations: func(_ context.Context, _ []string, _ int) ([]Track, error) { return nil, boom },
		browseGenre:     func(_ context.Context, _ string, _ int) ([]Track, error) { return nil, boom },
		newReleases:     func(_ context.Context, _ int) ([]Track, error) { return nil, boom },
		popular: func(_ context.Context, limit int) ([]Track, error) {
			return makeTracks("popular", limit), nil
		},
	}
	g := NewCandidateGenerator(testGeneratorConfig(), source, nil, zerolog.Nop())

	pool, degraded, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageEstablished)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !degraded {
		t.Error("expected degraded flag when every primary source failed")
	}
	if len(pool) == 0 {
		t.Error("expected popularity fallback to fill the pool")
	}
	for _, track := range pool {
		if track.Source != SourcePopularity {
			t.Errorf("expected only popularity tracks, got %s", track.Source)
		}
	}
}

func TestGenerateCapsPoolAtMax(t *testing.T) {
	cfg := testGeneratorConfig()
	source := &fakeSource{
		newReleases: func(_ context.Context, _ int) ([]Track, error) {
			return makeTracks("release", cfg.CandidateMax+50), nil
		},
	}
	g := NewCandidateGenerator(cfg, source, nil, zerolog.Nop())

	pool, _, err := g.Generate(context.Background(), historyOf(energeticPop("h1")), StageEstablished)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool) > cfg.CandidateMax {
		t.Errorf("pool size %d exceeds max %d", len(pool), cfg.CandidateMax)
	}
}

func TestSeedSetsGroupsByTopGenre(t *testing.T) {
	history := []HistoryTrack{
		{Track: Track{ID: "j1", Genres: []string{"jazz"}}, PlayCount: 10},
		{Track: Track{ID: "j2", Genres: []string{"jazz"}}, PlayCount: 8},
		{Track: Track{ID: "j3", Genres: []string{"jazz"}}, PlayCount: 2},
		{Track: Track{ID: "p1", Genres: []string{"pop"}}, PlayCount: 3},
		{Track: Track{ID: "r1", Genres: []string{"rock"}}, PlayCount: 1},
	}

	sets := seedSets(history)
	if len(sets) != 3 {
		t.Fatalf("expected one seed set per top genre, got %d", len(sets))
	}

	// Jazz is the top genre and contributes at most seedsPerGenre seeds.
	if len(sets[0]) != seedsPerGenre || sets[0][0] != "j1" || sets[0][1] != "j2" {
		t.Errorf("jazz seed set = %v, want [j1 j2]", sets[0])
	}
	if len(sets[1]) != 1 || sets[1][0] != "p1" {
		t.Errorf("pop seed set = %v, want [p1]", sets[1])
	}
	if len(sets[2]) != 1 || sets[2][0] != "r1" {
		t.Errorf("rock seed set = %v, want [r1]", sets[2])
	}
}

func TestSeedSetsFallsBackToRecencyWithoutGenres(t *testing.T) {
	history := historyOf(
		Track{ID: "a"}, Track{ID: "b"}, Track{ID: "c"},
		Track{ID: "d"}, Track{ID: "e"}, Track{ID: "f"},
	)

	sets := seedSets(history)
	if len(sets) != 1 {
		t.Fatalf("expected a single recency-based set, got %d sets", len(sets))
	}
	if len(sets[0]) != maxSeedTracks {
		t.Fatalf("expected %d seeds, got %d", maxSeedTracks, len(sets[0]))
	}
	if sets[0][0] != "a" {
		t.Errorf("expected most recent track first, got %q", sets[0][0])
	}
}

func TestTopGenresWeightedByPlayCount(t *testing.T) {
	history := []HistoryTrack{
		{Track: Track{ID: "a", Genres: []string{"jazz"}}, PlayCount: 10},
		{Track: Track{ID: "b", Genres: []string{"pop"}}, PlayCount: 3},
		{Track: Track{ID: "c", Genres: []string{"rock"}}, PlayCount: 3},
		{Track: Track{ID: "d", Genres: []string{"folk"}}, PlayCount: 1},
	}

	genres := topGenres(history, 3)
	if len(genres) != 3 {
		t.Fatalf("expected 3 genres, got %d", len(genres))
	}
	if genres[0] != "jazz" {
		t.Errorf("expected jazz first, got %q", genres[0])
	}
	// pop and rock tie at 3 plays; alphabetical order breaks the tie.
	if genres[1] != "pop" || genres[2] != "rock" {
		t.Errorf("expected tie broken alphabetically, got %v", genres)
	}
}

func TestTopGenresEmptyHistory(t *testing.T) {
	if got := topGenres(nil, 3); len(got) != 0 {
		t.Errorf("expected no genres for empty history, got %v", got)
	}
}
