// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// InteractionStore appends feedback events and maintains per-genre
// reward aggregates for insights.
type InteractionStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ recommend.GenreStatsReader = (*InteractionStore)(nil)

// Append logs one feedback event and folds its reward into the genre
// aggregates of the track's genres.
func (i *InteractionStore) Append(ctx context.Context, event recommend.InteractionEvent, t recommend.Track, reward float64) error {
	started := time.Now()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning interaction transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO interactions (user_id, track_id, kind, reward, context, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.UserID, event.TrackID, event.Kind.String(), reward, event.Context, event.Timestamp,
	)
	if err != nil {
		metrics.RecordStoreQuery("insert", "interactions", time.Since(started), err)
		return fmt.Errorf("appending interaction: %w", err)
	}

	genreQuery := `INSERT INTO genre_feedback (user_id, genre, total_reward, interactions)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, genre) DO UPDATE SET
			total_reward = genre_feedback.total_reward + excluded.total_reward,
			interactions = genre_feedback.interactions + 1`

	for _, genre := range t.Genres {
		genre = strings.ToLower(strings.TrimSpace(genre))
		if genre == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, genreQuery, event.UserID, genre, reward); err != nil {
			metrics.RecordStoreQuery("upsert", "genre_feedback", time.Since(started), err)
			return fmt.Errorf("updating genre aggregate %q: %w", genre, err)
		}
	}

	err = tx.Commit()
	metrics.RecordStoreQuery("insert", "interactions", time.Since(started), err)
	if err != nil {
		return fmt.Errorf("committing interaction: %w", err)
	}
	return nil
}

// TopGenres returns the user's best-performing genres by average reward.
func (i *InteractionStore) TopGenres(ctx context.Context, userID string, limit int) ([]recommend.GenreInsight, error) {
	return i.genresByReward(ctx, userID, limit, "DESC")
}

// BottomGenres returns the user's worst-performing genres.
func (i *InteractionStore) BottomGenres(ctx context.Context, userID string, limit int) ([]recommend.GenreInsight, error) {
	return i.genresByReward(ctx, userID, limit, "ASC")
}

func (i *InteractionStore) genresByReward(ctx context.Context, userID string, limit int, direction string) ([]recommend.GenreInsight, error) {
	started := time.Now()

	query := fmt.Sprintf(`SELECT genre, total_reward / interactions AS avg_reward, interactions
		FROM genre_feedback
		WHERE user_id = ? AND interactions > 0
		ORDER BY avg_reward %s, genre ASC
		LIMIT ?`, direction)

	rows, err := i.db.QueryContext(ctx, query, userID, limit)
	metrics.RecordStoreQuery("select", "genre_feedback", time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("querying genre aggregates: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var insights []recommend.GenreInsight
	for rows.Next() {
		var g recommend.GenreInsight
		if err := rows.Scan(&g.Genre, &g.AverageReward, &g.Interactions); err != nil {
			return nil, fmt.Errorf("scanning genre aggregate: %w", err)
		}
		insights = append(insights, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating genre aggregates: %w", err)
	}
	return insights, nil
}

// CountForUser returns how many interactions the user has logged.
func (i *InteractionStore) CountForUser(ctx context.Context, userID string) (int64, error) {
	started := time.Now()

	var count int64
	err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE user_id = ?`, userID).Scan(&count)
	metrics.RecordStoreQuery("select", "interactions", time.Since(started), err)
	if err != nil {
		return 0, fmt.Errorf("counting interactions: %w", err)
	}
	return count, nil
}
