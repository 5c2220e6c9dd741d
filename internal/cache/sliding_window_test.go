// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package cache

import (
	"testing"
	"time"
)

func TestSlidingWindowCounterBasic(t *testing.T) {
	sw := NewSlidingWindowCounter(time.Minute, 12)

	sw.IncrementOne()
	sw.IncrementOne()
	sw.Increment(3)

	if got := sw.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}

	sw.Reset()
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() after Reset = %d, want 0", got)
	}
}

func TestSlidingWindowCounterDefaults(t *testing.T) {
	sw := NewSlidingWindowCounter(0, 0)
	if sw.numBuckets != 10 {
		t.Errorf("numBuckets = %d, want default 10", sw.numBuckets)
	}
	if sw.windowSize != time.Minute {
		t.Errorf("windowSize = %v, want default 1m", sw.windowSize)
	}
}

func TestSlidingWindowCounterExpiry(t *testing.T) {
	sw := NewSlidingWindowCounter(100*time.Millisecond, 10)

	sw.Increment(7)
	if got := sw.Count(); got != 7 {
		t.Fatalf("Count() = %d, want 7", got)
	}

	// After the full window elapses, all buckets expire
	time.Sleep(150 * time.Millisecond)
	if got := sw.Count(); got != 0 {
		t.Errorf("Count() after window elapsed = %d, want 0", got)
	}
}

func TestSlidingWindowStorePerKey(t *testing.T) {
	store := NewSlidingWindowStore(time.Minute, 12, 0)

	store.Increment("user:a")
	store.Increment("user:a")
	store.Increment("user:b")

	if got := store.Count("user:a"); got != 2 {
		t.Errorf("Count(user:a) = %d, want 2", got)
	}
	if got := store.Count("user:b"); got != 1 {
		t.Errorf("Count(user:b) = %d, want 1", got)
	}
	if got := store.Count("user:c"); got != 0 {
		t.Errorf("Count(user:c) = %d, want 0", got)
	}
	if got := store.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestSlidingWindowStoreCapacity(t *testing.T) {
	store := NewSlidingWindowStore(time.Minute, 12, 2)

	store.Increment("a")
	store.Increment("b")
	store.Increment("c")

	if got := store.Len(); got != 2 {
		t.Errorf("Len() = %d, want capacity bound 2", got)
	}
}

func TestSlidingWindowStoreCleanupInactive(t *testing.T) {
	store := NewSlidingWindowStore(50*time.Millisecond, 5, 0)

	store.Increment("a")
	store.Increment("b")

	time.Sleep(80 * time.Millisecond)
	removed := store.CleanupInactive()
	if removed != 2 {
		t.Errorf("CleanupInactive() = %d, want 2", removed)
	}
	if got := store.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}
