// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("key1", "value1")
	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected hit for key1")
	}
	if got.(string) != "value1" {
		t.Errorf("got %v, want value1", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCacheExpiration(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("short", 42, -time.Second)
	if _, ok := c.Get("short"); ok {
		t.Error("expected expired entry to miss")
	}

	// Expired entry is removed on Get
	c.mu.RLock()
	_, present := c.entries["short"]
	c.mu.RUnlock()
	if present {
		t.Error("expected expired entry to be deleted on Get")
	}
}

func TestCacheGetStale(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("stale", "old", -time.Second)
	data, present, fresh := c.GetStale("stale")
	if !present {
		t.Fatal("expected stale entry to be present")
	}
	if fresh {
		t.Error("expected stale entry to be reported not fresh")
	}
	if data.(string) != "old" {
		t.Errorf("got %v, want old", data)
	}

	c.Set("fresh", "new")
	_, present, fresh = c.GetStale("fresh")
	if !present || !fresh {
		t.Error("expected fresh entry to be present and fresh")
	}

	if _, present, _ := c.GetStale("absent"); present {
		t.Error("expected absent key to report not present")
	}
}

func TestCacheCleanup(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("a", 1, -time.Second)
	c.SetWithTTL("b", 2, -time.Second)
	c.Set("c", 3)

	removed := c.Cleanup()
	if removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}

	if _, ok := c.Get("c"); !ok {
		t.Error("expected live entry to survive cleanup")
	}

	stats := c.GetStats()
	if stats.TotalKeys != 1 {
		t.Errorf("TotalKeys = %d, want 1", stats.TotalKeys)
	}
}

func TestCacheClear(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("expected cleared cache to miss")
	}
	if stats := c.GetStats(); stats.TotalKeys != 0 {
		t.Errorf("TotalKeys = %d, want 0", stats.TotalKeys)
	}
}

func TestCacheHitRate(t *testing.T) {
	c := New(time.Minute)

	if rate := c.HitRate(); rate != 0 {
		t.Errorf("empty cache hit rate = %f, want 0", rate)
	}

	c.Set("k", 1)
	c.Get("k")
	c.Get("k")
	c.Get("absent")

	rate := c.HitRate()
	want := 2.0 / 3.0 * 100.0
	if rate < want-0.01 || rate > want+0.01 {
		t.Errorf("hit rate = %f, want %f", rate, want)
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	type params struct {
		User string
		Max  int
	}

	k1 := GenerateKey("recommendations", params{User: "u1", Max: 50})
	k2 := GenerateKey("recommendations", params{User: "u1", Max: 50})
	k3 := GenerateKey("recommendations", params{User: "u1", Max: 20})

	if k1 != k2 {
		t.Error("expected identical params to produce identical keys")
	}
	if k1 == k3 {
		t.Error("expected different params to produce different keys")
	}
}
