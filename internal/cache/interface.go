// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package cache

import "time"

// Cacher defines the interface for TTL cache implementations.
// The engine depends on this rather than the concrete Cache so tests can
// substitute instrumented implementations.
type Cacher interface {
	// Get retrieves a value from the cache.
	// Returns the value and true if found and not expired.
	Get(key string) (interface{}, bool)

	// GetStale retrieves a value even if expired.
	// The second return reports presence, the third freshness.
	GetStale(key string) (interface{}, bool, bool)

	// Set stores a value in the cache with the default TTL.
	Set(key string, value interface{})

	// SetWithTTL stores a value with a custom TTL.
	SetWithTTL(key string, value interface{}, ttl time.Duration)

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all entries from the cache.
	Clear()

	// Cleanup removes expired entries, returning the number removed.
	Cleanup() int

	// GetStats returns cache statistics.
	GetStats() Stats

	// HitRate returns the cache hit rate as a percentage.
	HitRate() float64
}

// Verify interface implementation at compile time.
var _ Cacher = (*Cache)(nil)
