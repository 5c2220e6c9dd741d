// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// ProfileStore reads and writes Big Five personality profiles. Trait
// values are stored on the assessment's 0-100 scale and normalized to
// [0, 1] on read.
type ProfileStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ recommend.ProfileStore = (*ProfileStore)(nil)

// Profile returns the user's profile. Users without a stored assessment
// get the balanced profile with zero account age.
func (p *ProfileStore) Profile(ctx context.Context, userID string) (recommend.UserProfile, error) {
	started := time.Now()

	query := `SELECT openness, conscientiousness, extraversion, agreeableness, neuroticism,
			account_created_at, interactions
		FROM personality_profiles
		WHERE user_id = ?`

	var (
		o, c, e, a, n float64
		createdAt     time.Time
		interactions  int64
	)
	err := p.db.QueryRowContext(ctx, query, userID).
		Scan(&o, &c, &e, &a, &n, &createdAt, &interactions)
	metrics.RecordStoreQuery("select", "personality_profiles", time.Since(started), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return recommend.BalancedProfile(userID), nil
	}
	if err != nil {
		return recommend.UserProfile{}, fmt.Errorf("querying profile for user %q: %w", userID, err)
	}

	return recommend.UserProfile{
		UserID:            userID,
		Openness:          normalizeTrait(o),
		Conscientiousness: normalizeTrait(c),
		Extraversion:      normalizeTrait(e),
		Agreeableness:     normalizeTrait(a),
		Neuroticism:       normalizeTrait(n),
		AccountAgeDays:    int(time.Since(createdAt).Hours() / 24),
		Interactions:      interactions,
	}, nil
}

// Upsert stores an assessment. Trait values are on the 0-100 scale.
func (p *ProfileStore) Upsert(ctx context.Context, userID string, traits map[string]float64, accountCreatedAt time.Time) error {
	started := time.Now()

	query := `INSERT INTO personality_profiles (
			user_id, openness, conscientiousness, extraversion, agreeableness, neuroticism,
			account_created_at, interactions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			openness = excluded.openness,
			conscientiousness = excluded.conscientiousness,
			extraversion = excluded.extraversion,
			agreeableness = excluded.agreeableness,
			neuroticism = excluded.neuroticism,
			updated_at = excluded.updated_at`

	_, err := p.db.ExecContext(ctx, query,
		userID,
		traits["openness"], traits["conscientiousness"], traits["extraversion"],
		traits["agreeableness"], traits["neuroticism"],
		accountCreatedAt, time.Now(),
	)
	metrics.RecordStoreQuery("upsert", "personality_profiles", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("upserting profile for user %q: %w", userID, err)
	}
	return nil
}

// IncrementInteractions bumps the user's lifetime feedback counter.
func (p *ProfileStore) IncrementInteractions(ctx context.Context, userID string) error {
	started := time.Now()

	query := `UPDATE personality_profiles
		SET interactions = interactions + 1
		WHERE user_id = ?`

	_, err := p.db.ExecContext(ctx, query, userID)
	metrics.RecordStoreQuery("update", "personality_profiles", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("incrementing interactions for user %q: %w", userID, err)
	}
	return nil
}

// normalizeTrait maps an assessment value (0-100) into [0, 1].
func normalizeTrait(v float64) float64 {
	normalized := v / 100.0
	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}
	return normalized
}
