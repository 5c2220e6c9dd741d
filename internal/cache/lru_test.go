// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCacheAddGet(t *testing.T) {
	c := NewLRUCache(10, time.Minute)

	c.Add("t1", "features-1")
	got, ok := c.Get("t1")
	if !ok {
		t.Fatal("expected hit for t1")
	}
	if got.(string) != "features-1" {
		t.Errorf("got %v, want features-1", got)
	}

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// Touch "a" so "b" becomes least recently used
	c.Get("a")
	c.Add("d", 4)

	if c.Contains("b") {
		t.Error("expected least recently used entry b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if !c.Contains(key) {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
	if got := c.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestLRUCacheUpdateExisting(t *testing.T) {
	c := NewLRUCache(2, time.Minute)

	c.Add("k", "v1")
	c.Add("k", "v2")

	got, ok := c.Get("k")
	if !ok || got.(string) != "v2" {
		t.Errorf("got %v, want v2", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache(10, 20*time.Millisecond)

	c.Add("k", 1)
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Contains("k") {
		t.Error("Contains should report expired entries as absent")
	}
}

func TestLRUCacheStats(t *testing.T) {
	c := NewLRUCache(10, time.Minute)

	c.Add("k", 1)
	c.Get("k")
	c.Get("absent")

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("Stats() = (%d, %d, %d), want (1, 1, 1)", hits, misses, size)
	}
}

func BenchmarkLRUCacheGet(b *testing.B) {
	c := NewLRUCache(1000, time.Minute)
	for i := 0; i < 1000; i++ {
		c.Add(fmt.Sprintf("track-%d", i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprintf("track-%d", i%1000))
	}
}
