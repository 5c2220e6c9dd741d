// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package learner implements per-user online Q-learning over discretized
// track and personality states, with experience replay and badger-backed
// snapshots.
package learner

import (
	"sort"
	"strings"

	"github.com/tunedrift/tunedrift/internal/recommend"
)

// Discretization boundaries. Continuous [0,1] values split into three
// levels; tempo splits on BPM.
const (
	levelLowMax  = 0.33
	levelMedMax  = 0.67
	tempoSlowMax = 90.0
	tempoMedMax  = 140.0
)

// levelBucket maps a [0,1] value to low/med/high.
func levelBucket(v float64) string {
	switch {
	case v < levelLowMax:
		return "low"
	case v < levelMedMax:
		return "med"
	default:
		return "high"
	}
}

// tempoBucket maps BPM to slow/medium/fast.
func tempoBucket(bpm float64) string {
	switch {
	case bpm < tempoSlowMax:
		return "slow"
	case bpm < tempoMedMax:
		return "medium"
	default:
		return "fast"
	}
}

// StateKey discretizes a track and personality profile into a compact,
// order-independent state identifier. Components are sorted and joined
// with "|" so equivalent states always produce the same key.
func StateKey(t recommend.Track, profile recommend.UserProfile) string {
	genre := strings.ToLower(t.PrimaryGenre())
	if genre == "" {
		genre = "unknown"
	}

	parts := []string{
		"openness_" + levelBucket(profile.Openness),
		"conscientiousness_" + levelBucket(profile.Conscientiousness),
		"extraversion_" + levelBucket(profile.Extraversion),
		"agreeableness_" + levelBucket(profile.Agreeableness),
		"neuroticism_" + levelBucket(profile.Neuroticism),
		"danceability_" + levelBucket(t.Features.Danceability),
		"energy_" + levelBucket(t.Features.Energy),
		"valence_" + levelBucket(t.Features.Valence),
		"acousticness_" + levelBucket(t.Features.Acousticness),
		"tempo_" + tempoBucket(t.Features.Tempo),
		"genre_" + genre,
	}

	sort.Strings(parts)
	return strings.Join(parts, "|")
}
