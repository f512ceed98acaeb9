// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	l, err := NewRedisLimiter(ctx, "redis://"+mr.Addr(), 2, time.Hour)
	if err != nil {
		t.Fatalf("NewRedisLimiter failed: %v", err)
	}
	defer l.Close()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "login:abc")
		if err != nil || !ok {
			t.Fatalf("Request %d should pass, got ok=%v err=%v", i, ok, err)
		}
	}

	ok, retry, err := l.Allow(ctx, "login:abc")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Error("Third request should be limited")
	}
	if retry <= 0 || retry > time.Hour {
		t.Errorf("Unexpected retry after %v", retry)
	}

	// Other keys have their own window
	if ok, _, _ := l.Allow(ctx, "login:other"); !ok {
		t.Error("Different key should not be limited")
	}
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	l, err := NewRedisLimiter(ctx, "redis://"+mr.Addr(), 1, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLimiter failed: %v", err)
	}
	defer l.Close()

	mr.Close()
	ok, _, err := l.Allow(ctx, "k")
	if err == nil {
		t.Error("Expected an error with redis down")
	}
	if !ok {
		t.Error("Limiter must allow requests when redis fails")
	}
}

func TestNewRedisLimiterBadURL(t *testing.T) {
	if _, err := NewRedisLimiter(context.Background(), "not a url", 1, time.Minute); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _, _ := l.Allow(ctx, "ip"); !ok {
			t.Fatalf("Request %d should pass", i)
		}
	}

	ok, retry, _ := l.Allow(ctx, "ip")
	if ok {
		t.Fatal("Fourth request should be limited")
	}
	if retry <= 0 || retry > 21*time.Second {
		t.Errorf("Expected retry within one token interval, got %v", retry)
	}

	// One token refills every 20s
	now = now.Add(21 * time.Second)
	if ok, _, _ := l.Allow(ctx, "ip"); !ok {
		t.Error("Request after refill should pass")
	}
}

func TestMemoryLimiterSweepsIdleKeys(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "a")
	now = now.Add(3 * time.Minute)
	l.Allow(ctx, "b")

	if _, ok := l.buckets["a"]; ok {
		t.Error("Idle bucket should have been swept")
	}
}

func TestMemoryLimiterSweepsPeriodically(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "a")
	swept := l.lastSweep

	// Within one idle period no further scan runs
	now = now.Add(30 * time.Second)
	l.Allow(ctx, "b")
	if !l.lastSweep.Equal(swept) {
		t.Errorf("Expected no sweep within the idle period, last sweep moved to %v", l.lastSweep)
	}

	now = now.Add(3 * time.Minute)
	l.Allow(ctx, "c")
	if !l.lastSweep.Equal(now) {
		t.Errorf("Expected a sweep after the idle period, last sweep %v", l.lastSweep)
	}
	if len(l.buckets) != 1 {
		t.Errorf("Expected only the fresh bucket to remain, got %d", len(l.buckets))
	}
}
