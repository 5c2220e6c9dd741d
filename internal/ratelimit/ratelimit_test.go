// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLimiter(requests int) *UserLimiter {
	return NewUserLimiter(Config{
		RequestsPerWindow: requests,
		Window:            time.Minute,
		MaxTrackedUsers:   100,
	}, zerolog.Nop())
}

func TestAllowWithinLimit(t *testing.T) {
	l := testLimiter(5)

	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("u1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestAllowDeniesOverLimit(t *testing.T) {
	l := testLimiter(3)

	for i := 0; i < 3; i++ {
		l.Allow("u1")
	}

	ok, retryAfter := l.Allow("u1")
	if ok {
		t.Error("request over the limit should be denied")
	}
	if retryAfter <= 0 {
		t.Errorf("expected positive retry-after hint, got %v", retryAfter)
	}
}

func TestDeniedRequestsDoNotCount(t *testing.T) {
	l := testLimiter(2)

	l.Allow("u1")
	l.Allow("u1")
	for i := 0; i < 10; i++ {
		l.Allow("u1")
	}

	if got := l.Remaining("u1"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
	// The window holds exactly the allowed count; denials added nothing.
	if count := l.store.Count("u1"); count != 2 {
		t.Errorf("window count = %d, want 2", count)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	l := testLimiter(2)

	l.Allow("u1")
	l.Allow("u1")
	if ok, _ := l.Allow("u1"); ok {
		t.Error("u1 should be limited")
	}
	if ok, _ := l.Allow("u2"); !ok {
		t.Error("u2 should be unaffected by u1's limit")
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewUserLimiter(Config{Disabled: true, RequestsPerWindow: 1, Window: time.Minute}, zerolog.Nop())

	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow("u1"); !ok {
			t.Fatal("disabled limiter should always allow")
		}
	}
}

func TestRemaining(t *testing.T) {
	l := testLimiter(10)

	if got := l.Remaining("u1"); got != 10 {
		t.Errorf("fresh user Remaining = %d, want 10", got)
	}
	l.Allow("u1")
	l.Allow("u1")
	if got := l.Remaining("u1"); got != 8 {
		t.Errorf("Remaining = %d, want 8", got)
	}
}

func TestMaxTrackedUsersEvicts(t *testing.T) {
	l := NewUserLimiter(Config{
		RequestsPerWindow: 5,
		Window:            time.Minute,
		MaxTrackedUsers:   10,
	}, zerolog.Nop())

	for i := 0; i < 25; i++ {
		l.Allow(fmt.Sprintf("user-%d", i))
	}
	if got := l.TrackedUsers(); got > 10 {
		t.Errorf("tracked users = %d, want <= 10", got)
	}
}

func TestCleanupInactive(t *testing.T) {
	l := testLimiter(5)
	l.Allow("u1")

	// Active counters survive cleanup.
	if removed := l.CleanupInactive(); removed != 0 {
		t.Errorf("expected no removals for active counters, got %d", removed)
	}
	if l.TrackedUsers() != 1 {
		t.Errorf("expected 1 tracked user, got %d", l.TrackedUsers())
	}
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	l := NewUserLimiter(Config{}, zerolog.Nop())

	if ok, _ := l.Allow("u1"); !ok {
		t.Error("limiter with defaulted config should allow the first request")
	}
	if got := l.Remaining("u1"); got != int64(DefaultConfig().RequestsPerWindow-1) {
		t.Errorf("Remaining = %d, want %d", got, DefaultConfig().RequestsPerWindow-1)
	}
}
