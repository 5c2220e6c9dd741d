// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package store persists Tunedrift's durable state in DuckDB: listening
// history, personality profiles, the served-track index, the interaction
// log and per-genre feedback aggregates.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
	"github.com/rs/zerolog"
)

// Config holds DuckDB settings.
type Config struct {
	// Path is the database file. Empty opens an in-memory database.
	Path string

	// MaxMemory caps DuckDB's memory use, e.g. "1GB".
	MaxMemory string

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int
}

// Store owns the DuckDB connection and exposes the typed sub-stores.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database and ensures the schema exists.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	dsn := cfg.Path
	if dsn != "" {
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d", cfg.Path, threads)
		if cfg.MaxMemory != "" {
			dsn += "&max_memory=" + cfg.MaxMemory
		}
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %q: %w", cfg.Path, err)
	}

	// DuckDB is an embedded single-writer database; a small pool avoids
	// write contention.
	db.SetMaxOpenConns(threads)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck,gosec // best-effort cleanup
		return nil, fmt.Errorf("pinging duckdb: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := s.createSchema(); err != nil {
		db.Close() //nolint:errcheck,gosec // best-effort cleanup
		return nil, err
	}
	return s, nil
}

// createSchema creates all tables and indexes if they do not exist.
func (s *Store) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS listening_history (
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			title TEXT,
			artists TEXT,
			genres TEXT,
			popularity INTEGER DEFAULT 0,
			danceability DOUBLE DEFAULT 0.5,
			energy DOUBLE DEFAULT 0.5,
			valence DOUBLE DEFAULT 0.5,
			tempo DOUBLE DEFAULT 120,
			acousticness DOUBLE DEFAULT 0.5,
			instrumentalness DOUBLE DEFAULT 0.5,
			speechiness DOUBLE DEFAULT 0.5,
			played_at TIMESTAMP NOT NULL,
			play_count INTEGER DEFAULT 1,
			PRIMARY KEY (user_id, track_id)
		)`,

		`CREATE TABLE IF NOT EXISTS personality_profiles (
			user_id TEXT PRIMARY KEY,
			openness DOUBLE NOT NULL,
			conscientiousness DOUBLE NOT NULL,
			extraversion DOUBLE NOT NULL,
			agreeableness DOUBLE NOT NULL,
			neuroticism DOUBLE NOT NULL,
			account_created_at TIMESTAMP NOT NULL,
			interactions BIGINT DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS served_tracks (
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			title TEXT,
			artists TEXT,
			genres TEXT,
			popularity INTEGER DEFAULT 0,
			danceability DOUBLE DEFAULT 0.5,
			energy DOUBLE DEFAULT 0.5,
			valence DOUBLE DEFAULT 0.5,
			tempo DOUBLE DEFAULT 120,
			acousticness DOUBLE DEFAULT 0.5,
			instrumentalness DOUBLE DEFAULT 0.5,
			speechiness DOUBLE DEFAULT 0.5,
			served_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, track_id)
		)`,

		`CREATE TABLE IF NOT EXISTS interactions (
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			reward DOUBLE NOT NULL,
			context TEXT,
			occurred_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS genre_feedback (
			user_id TEXT NOT NULL,
			genre TEXT NOT NULL,
			total_reward DOUBLE DEFAULT 0,
			interactions BIGINT DEFAULT 0,
			PRIMARY KEY (user_id, genre)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_history_user_played
			ON listening_history (user_id, played_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_time
			ON interactions (user_id, occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_served_user_time
			ON served_tracks (user_id, served_at DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// History returns the listening history store.
func (s *Store) History() *HistoryStore {
	return &HistoryStore{db: s.db, logger: s.logger}
}

// Profiles returns the personality profile store.
func (s *Store) Profiles() *ProfileStore {
	return &ProfileStore{db: s.db, logger: s.logger}
}

// Served returns the served-track index.
func (s *Store) Served() *ServedIndex {
	return &ServedIndex{db: s.db, logger: s.logger}
}

// Interactions returns the interaction log and genre aggregates.
func (s *Store) Interactions() *InteractionStore {
	return &InteractionStore{db: s.db, logger: s.logger}
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
