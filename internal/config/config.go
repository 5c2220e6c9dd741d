// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package config provides layered configuration for Tunedrift using koanf.
// Precedence: environment variables > config file > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Tunedrift server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Provider  ProviderConfig  `koanf:"provider"`
	Engine    EngineConfig    `koanf:"engine"`
	Learner   LearnerConfig   `koanf:"learner"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
	Environment string        `koanf:"environment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings for the analytics store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count. 0 = use runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// CacheConfig holds recommendation cache settings.
type CacheConfig struct {
	// TTL is how long a generated recommendation set stays fresh.
	TTL time.Duration `koanf:"ttl"`
	// CleanupInterval is how often the janitor sweeps expired entries.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	// FeatureMemoSize bounds the audio-feature LRU.
	FeatureMemoSize int `koanf:"feature_memo_size"`
	// FeatureMemoTTL is the audio-feature memo entry lifetime.
	FeatureMemoTTL time.Duration `koanf:"feature_memo_ttl"`
}

// RateLimitConfig holds per-user request limiting settings.
type RateLimitConfig struct {
	Disabled bool `koanf:"disabled"`
	// RequestsPerWindow is the per-user request allowance.
	RequestsPerWindow int           `koanf:"requests_per_window"`
	Window            time.Duration `koanf:"window"`
	// MaxTrackedUsers bounds the sliding-window store.
	MaxTrackedUsers int `koanf:"max_tracked_users"`
}

// ProviderConfig holds content provider client settings.
type ProviderConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	// CallsPerSecond is the outbound call budget.
	CallsPerSecond float64 `koanf:"calls_per_second"`
	Burst          int     `koanf:"burst"`
	RetryAttempts  int     `koanf:"retry_attempts"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	// BatchSize bounds audio-feature lookup batches.
	BatchSize int `koanf:"batch_size"`
}

// EngineConfig holds recommendation engine settings.
type EngineConfig struct {
	// DefaultResults is the number of tracks returned when unspecified.
	DefaultResults int `koanf:"default_results"`
	// MaxResults caps the per-request track count.
	MaxResults int `koanf:"max_results"`
	// CandidateTarget is the desired candidate pool size.
	CandidateTarget int `koanf:"candidate_target"`
	// CandidateMin and CandidateMax bound the pool.
	CandidateMin int `koanf:"candidate_min"`
	CandidateMax int `koanf:"candidate_max"`
	// HistoryDepth is how many history tracks feed similarity scoring.
	HistoryDepth int `koanf:"history_depth"`
}

// LearnerConfig holds Q-learning settings.
type LearnerConfig struct {
	// LearningRate is the Q-update step size.
	LearningRate float64 `koanf:"learning_rate"`
	// ReplayBufferSize bounds the per-user experience buffer.
	ReplayBufferSize int `koanf:"replay_buffer_size"`
	// ReplayBatchSize is the number of experiences replayed per batch.
	ReplayBatchSize int `koanf:"replay_batch_size"`
	// ReplayEvery triggers a replay batch every N processed events.
	ReplayEvery int `koanf:"replay_every"`
	// SnapshotPath is the badger directory for Q-table snapshots.
	SnapshotPath string `koanf:"snapshot_path"`
	// SnapshotInterval is how often learner state is persisted.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	if !c.RateLimit.Disabled && c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate_limit.requests_per_window must be positive, got %d", c.RateLimit.RequestsPerWindow)
	}
	if c.Engine.MaxResults < c.Engine.DefaultResults {
		return fmt.Errorf("engine.max_results %d must be >= engine.default_results %d",
			c.Engine.MaxResults, c.Engine.DefaultResults)
	}
	if c.Engine.CandidateMin > c.Engine.CandidateTarget || c.Engine.CandidateTarget > c.Engine.CandidateMax {
		return fmt.Errorf("engine candidate bounds must satisfy min <= target <= max, got %d/%d/%d",
			c.Engine.CandidateMin, c.Engine.CandidateTarget, c.Engine.CandidateMax)
	}
	if c.Learner.LearningRate <= 0 || c.Learner.LearningRate > 1 {
		return fmt.Errorf("learner.learning_rate must be in (0, 1], got %f", c.Learner.LearningRate)
	}
	if c.Learner.ReplayBatchSize > c.Learner.ReplayBufferSize {
		return fmt.Errorf("learner.replay_batch_size %d exceeds buffer size %d",
			c.Learner.ReplayBatchSize, c.Learner.ReplayBufferSize)
	}
	if c.Provider.BatchSize <= 0 {
		return fmt.Errorf("provider.batch_size must be positive, got %d", c.Provider.BatchSize)
	}
	return nil
}
