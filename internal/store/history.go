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

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// HistoryStore reads and writes listening history.
type HistoryStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

var (
	_ recommend.HistoryStore       = (*HistoryStore)(nil)
	_ recommend.PopularityFallback = (*HistoryStore)(nil)
)

// historyColumns is the shared select list for history rows.
const historyColumns = `track_id, title, artists, genres, popularity,
	danceability, energy, valence, tempo, acousticness, instrumentalness, speechiness,
	played_at, play_count`

// TopTracks returns the user's history, most recently played first.
func (h *HistoryStore) TopTracks(ctx context.Context, userID string, limit int) ([]recommend.HistoryTrack, error) {
	started := time.Now()

	query := `SELECT ` + historyColumns + `
		FROM listening_history
		WHERE user_id = ?
		ORDER BY played_at DESC
		LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, userID, limit)
	metrics.RecordStoreQuery("select", "listening_history", time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("querying listening history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var history []recommend.HistoryTrack
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating listening history: %w", err)
	}
	return history, nil
}

// Lookup returns a single history entry by track ID.
func (h *HistoryStore) Lookup(ctx context.Context, userID, trackID string) (recommend.HistoryTrack, bool, error) {
	started := time.Now()

	query := `SELECT ` + historyColumns + `
		FROM listening_history
		WHERE user_id = ? AND track_id = ?`

	row := h.db.QueryRowContext(ctx, query, userID, trackID)
	entry, err := scanHistoryRow(row)
	metrics.RecordStoreQuery("select", "listening_history", time.Since(started), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return recommend.HistoryTrack{}, false, nil
	}
	if err != nil {
		return recommend.HistoryTrack{}, false, err
	}
	return entry, true, nil
}

// Record upserts a play: new tracks insert with play count 1, repeats
// bump the count and refresh the played-at timestamp.
func (h *HistoryStore) Record(ctx context.Context, userID string, t recommend.Track, playedAt time.Time) error {
	started := time.Now()

	query := `INSERT INTO listening_history (
			user_id, track_id, title, artists, genres, popularity,
			danceability, energy, valence, tempo, acousticness, instrumentalness, speechiness,
			played_at, play_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (user_id, track_id) DO UPDATE SET
			played_at = excluded.played_at,
			play_count = listening_history.play_count + 1`

	_, err := h.db.ExecContext(ctx, query,
		userID, t.ID, t.Title, encodeStrings(t.Artists), encodeStrings(t.Genres), t.Popularity,
		t.Features.Danceability, t.Features.Energy, t.Features.Valence, t.Features.Tempo,
		t.Features.Acousticness, t.Features.Instrumentalness, t.Features.Speechiness,
		playedAt,
	)
	metrics.RecordStoreQuery("upsert", "listening_history", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("recording play for user %q track %q: %w", userID, t.ID, err)
	}
	return nil
}

// GlobalTopTracks returns the most popular tracks across all users,
// one row per track. Backs the candidate pool when the provider's
// popular feed is unreachable.
func (h *HistoryStore) GlobalTopTracks(ctx context.Context, limit int) ([]recommend.Track, error) {
	started := time.Now()

	query := `SELECT track_id, title, artists, genres, popularity,
			danceability, energy, valence, tempo, acousticness, instrumentalness, speechiness,
			MAX(played_at) AS played_at, SUM(play_count) AS play_count
		FROM listening_history
		GROUP BY track_id, title, artists, genres, popularity,
			danceability, energy, valence, tempo, acousticness, instrumentalness, speechiness
		ORDER BY popularity DESC, play_count DESC, track_id
		LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, limit)
	metrics.RecordStoreQuery("select", "listening_history", time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("querying global top tracks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var tracks []recommend.Track
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, entry.Track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating global top tracks: %w", err)
	}
	return tracks, nil
}

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHistoryRow(row rowScanner) (recommend.HistoryTrack, error) {
	var (
		entry           recommend.HistoryTrack
		artists, genres string
	)
	err := row.Scan(
		&entry.Track.ID, &entry.Track.Title, &artists, &genres, &entry.Track.Popularity,
		&entry.Track.Features.Danceability, &entry.Track.Features.Energy,
		&entry.Track.Features.Valence, &entry.Track.Features.Tempo,
		&entry.Track.Features.Acousticness, &entry.Track.Features.Instrumentalness,
		&entry.Track.Features.Speechiness,
		&entry.PlayedAt, &entry.PlayCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return recommend.HistoryTrack{}, err
		}
		return recommend.HistoryTrack{}, fmt.Errorf("scanning history row: %w", err)
	}
	entry.Track.Artists = decodeStrings(artists)
	entry.Track.Genres = decodeStrings(genres)
	return entry, nil
}

// encodeStrings stores a string slice as a JSON text column.
func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

// ignoreNoRows keeps sql.ErrNoRows out of error metrics; an absent row
// is a normal outcome.
func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
