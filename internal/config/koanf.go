// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tunedrift/config.yaml",
	"/etc/tunedrift/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8780,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/tunedrift.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Cache: CacheConfig{
			TTL:             24 * time.Hour,
			CleanupInterval: 5 * time.Minute,
			FeatureMemoSize: 20000,
			FeatureMemoTTL:  24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Disabled:          false,
			RequestsPerWindow: 100,
			Window:            time.Minute,
			MaxTrackedUsers:   100000,
		},
		Provider: ProviderConfig{
			BaseURL:        "",
			APIKey:         "",
			Timeout:        10 * time.Second,
			CallsPerSecond: 10,
			Burst:          20,
			RetryAttempts:  3,
			RetryBaseDelay: 500 * time.Millisecond,
			BatchSize:      100,
		},
		Engine: EngineConfig{
			DefaultResults:  50,
			MaxResults:      100,
			CandidateTarget: 300,
			CandidateMin:    200,
			CandidateMax:    500,
			HistoryDepth:    50,
		},
		Learner: LearnerConfig{
			LearningRate:     0.1,
			ReplayBufferSize: 10000,
			ReplayBatchSize:  32,
			ReplayEvery:      10,
			SnapshotPath:     "/data/learner",
			SnapshotInterval: 5 * time.Minute,
		},
	}
}

// Load loads configuration using koanf with layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML file
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - PROVIDER_API_KEY -> provider.api_key
//   - LEARNER_SNAPSHOT_PATH -> learner.snapshot_path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"cors_origins": "server.cors_origins",
		"environment":  "server.environment",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Cache mappings
		"cache_ttl":               "cache.ttl",
		"cache_cleanup_interval":  "cache.cleanup_interval",
		"cache_feature_memo_size": "cache.feature_memo_size",
		"cache_feature_memo_ttl":  "cache.feature_memo_ttl",

		// Rate limit mappings
		"disable_rate_limit":      "rate_limit.disabled",
		"rate_limit_requests":     "rate_limit.requests_per_window",
		"rate_limit_window":       "rate_limit.window",
		"rate_limit_max_tracked":  "rate_limit.max_tracked_users",

		// Provider mappings
		"provider_base_url":         "provider.base_url",
		"provider_api_key":          "provider.api_key",
		"provider_timeout":          "provider.timeout",
		"provider_calls_per_second": "provider.calls_per_second",
		"provider_burst":            "provider.burst",
		"provider_retry_attempts":   "provider.retry_attempts",
		"provider_retry_base_delay": "provider.retry_base_delay",
		"provider_batch_size":       "provider.batch_size",

		// Engine mappings
		"engine_default_results":  "engine.default_results",
		"engine_max_results":      "engine.max_results",
		"engine_candidate_target": "engine.candidate_target",
		"engine_candidate_min":    "engine.candidate_min",
		"engine_candidate_max":    "engine.candidate_max",
		"engine_history_depth":    "engine.history_depth",

		// Learner mappings
		"learner_learning_rate":      "learner.learning_rate",
		"learner_replay_buffer_size": "learner.replay_buffer_size",
		"learner_replay_batch_size":  "learner.replay_batch_size",
		"learner_replay_every":       "learner.replay_every",
		"learner_snapshot_path":      "learner.snapshot_path",
		"learner_snapshot_interval":  "learner.snapshot_interval",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables do not
	// pollute the config.
	return ""
}
