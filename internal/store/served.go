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

// ServedIndex records which tracks were served to which user, with a
// metadata snapshot so feedback can resolve tracks without a catalog
// round trip.
type ServedIndex struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ recommend.ServedIndex = (*ServedIndex)(nil)

// MarkServed records the tracks of a served recommendation set.
// Re-serving a track refreshes its snapshot and timestamp.
func (s *ServedIndex) MarkServed(ctx context.Context, userID string, tracks []recommend.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	started := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning served-index transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `INSERT INTO served_tracks (
			user_id, track_id, title, artists, genres, popularity,
			danceability, energy, valence, tempo, acousticness, instrumentalness, speechiness,
			served_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, track_id) DO UPDATE SET
			title = excluded.title,
			artists = excluded.artists,
			genres = excluded.genres,
			popularity = excluded.popularity,
			served_at = excluded.served_at`

	now := time.Now()
	for _, t := range tracks {
		if _, err := tx.ExecContext(ctx, query,
			userID, t.ID, t.Title, encodeStrings(t.Artists), encodeStrings(t.Genres), t.Popularity,
			t.Features.Danceability, t.Features.Energy, t.Features.Valence, t.Features.Tempo,
			t.Features.Acousticness, t.Features.Instrumentalness, t.Features.Speechiness,
			now,
		); err != nil {
			metrics.RecordStoreQuery("upsert", "served_tracks", time.Since(started), err)
			return fmt.Errorf("marking track %q served for user %q: %w", t.ID, userID, err)
		}
	}

	err = tx.Commit()
	metrics.RecordStoreQuery("upsert", "served_tracks", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("committing served-index update: %w", err)
	}
	return nil
}

// ServedTrack returns the served track snapshot for a track ID.
func (s *ServedIndex) ServedTrack(ctx context.Context, userID, trackID string) (recommend.Track, bool, error) {
	started := time.Now()

	query := `SELECT track_id, title, artists, genres, popularity,
			danceability, energy, valence, tempo, acousticness, instrumentalness, speechiness
		FROM served_tracks
		WHERE user_id = ? AND track_id = ?`

	var (
		t               recommend.Track
		artists, genres string
	)
	err := s.db.QueryRowContext(ctx, query, userID, trackID).Scan(
		&t.ID, &t.Title, &artists, &genres, &t.Popularity,
		&t.Features.Danceability, &t.Features.Energy, &t.Features.Valence, &t.Features.Tempo,
		&t.Features.Acousticness, &t.Features.Instrumentalness, &t.Features.Speechiness,
	)
	metrics.RecordStoreQuery("select", "served_tracks", time.Since(started), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return recommend.Track{}, false, nil
	}
	if err != nil {
		return recommend.Track{}, false, fmt.Errorf("querying served track: %w", err)
	}

	t.Artists = decodeStrings(artists)
	t.Genres = decodeStrings(genres)
	return t, true, nil
}

// PruneOlderThan removes served entries past the retention cutoff and
// returns the number removed. Driven by the supervisor janitor.
func (s *ServedIndex) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	started := time.Now()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM served_tracks WHERE served_at < ?`, cutoff)
	metrics.RecordStoreQuery("delete", "served_tracks", time.Since(started), err)
	if err != nil {
		return 0, fmt.Errorf("pruning served tracks: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // rows-affected unsupported is not a failure
	}
	return removed, nil
}
