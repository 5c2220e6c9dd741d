// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/cache"
	"github.com/tunedrift/tunedrift/internal/metrics"
)

// Enricher attaches audio features to candidate tracks. Lookups are
// batched against the provider and memoized in a bounded LRU so repeated
// candidates across requests do not re-fetch.
type Enricher struct {
	source    ContentSource
	memo      *cache.LRUCache
	batchSize int
	logger    zerolog.Logger
}

// NewEnricher creates an enricher. memo may be shared across engines.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewEnricher(source ContentSource, memo *cache.LRUCache, batchSize int, logger zerolog.Logger) *Enricher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Enricher{
		source:    source,
		memo:      memo,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "enrich").Logger(),
	}
}

// Enrich fills in Features for every track in place. Tracks whose
// analysis cannot be fetched carry NeutralFeatures so scoring stays
// total. Batches already merged before a failure or cancellation are
// kept.
func (e *Enricher) Enrich(ctx context.Context, tracks []Track) []Track {
	fetched := make(map[string]AudioFeatures, len(tracks))
	var missing []string

	for _, t := range tracks {
		if val, ok := e.memo.Get(t.ID); ok {
			metrics.RecordCacheResult("audio_features", true)
			fetched[t.ID] = val.(AudioFeatures)
			continue
		}
		metrics.RecordCacheResult("audio_features", false)
		missing = append(missing, t.ID)
	}

	for start := 0; start < len(missing); start += e.batchSize {
		if ctx.Err() != nil {
			e.logger.Debug().Err(ctx.Err()).Msg("enrichment cancelled, keeping merged batches")
			break
		}

		end := start + e.batchSize
		if end > len(missing) {
			end = len(missing)
		}

		features, err := e.source.AudioFeatures(ctx, missing[start:end])
		if err != nil {
			e.logger.Warn().Err(err).
				Int("batch_start", start).
				Msg("audio feature batch failed, affected tracks fall back to neutral")
			continue
		}

		for id, f := range features {
			fetched[id] = f
			e.memo.Add(id, f)
		}
	}

	for i := range tracks {
		if f, ok := fetched[tracks[i].ID]; ok {
			tracks[i].Features = f
		} else {
			tracks[i].Features = NeutralFeatures()
		}
	}
	return tracks
}
