package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemory_LimitsPerKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Minute)
	m.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := m.Allow(ctx, "voice:1")
		if err != nil || !ok {
			t.Fatalf("call %d: expected allow, got %v %v", i, ok, err)
		}
	}
	if ok, _ := m.Allow(ctx, "voice:1"); ok {
		t.Fatalf("expected third call to be limited")
	}
	if ok, _ := m.Allow(ctx, "voice:2"); !ok {
		t.Fatalf("other key must have its own bucket")
	}

	now = now.Add(time.Minute)
	if ok, _ := m.Allow(ctx, "voice:1"); !ok {
		t.Fatalf("expected bucket to refill after the window")
	}
}

func TestMemory_ZeroLimitDisables(t *testing.T) {
	m := NewMemory(0, time.Minute)
	for i := 0; i < 100; i++ {
		if ok, _ := m.Allow(context.Background(), "k"); !ok {
			t.Fatalf("zero limit must not block")
		}
	}
}
