package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterExactCeiling(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	l := New(3, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.TryAcquire() {
			t.Fatalf("acquisition %d refused below the ceiling", i+1)
		}
	}
	if l.TryAcquire() {
		t.Fatalf("acquisition beyond the ceiling allowed")
	}

	count, limit := l.Usage()
	if count != 3 || limit != 3 {
		t.Errorf("usage = %d/%d, want 3/3", count, limit)
	}
}

func TestLimiterRefusalDoesNotIncrement(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	l := New(1, time.Minute)
	l.now = func() time.Time { return now }

	if !l.TryAcquire() {
		t.Fatalf("first acquisition refused")
	}
	for i := 0; i < 10; i++ {
		if l.TryAcquire() {
			t.Fatalf("acquisition allowed past the ceiling")
		}
	}
	if count, _ := l.Usage(); count != 1 {
		t.Errorf("count = %d after refusals, want 1", count)
	}
}

func TestLimiterWindowReset(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	l.TryAcquire()
	l.TryAcquire()
	if l.TryAcquire() {
		t.Fatalf("acquisition allowed at the ceiling")
	}

	now = now.Add(61 * time.Second)
	if !l.TryAcquire() {
		t.Fatalf("acquisition refused after the window elapsed")
	}
	if count, _ := l.Usage(); count != 1 {
		t.Errorf("count = %d in the new window, want 1", count)
	}
}

func TestLimiterRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	l := New(1, time.Minute)
	l.now = func() time.Time { return now }

	if got := l.RetryAfter(); got != 0 {
		t.Errorf("retry hint before any acquisition = %v, want 0", got)
	}

	l.TryAcquire()
	now = now.Add(10 * time.Second)
	if got := l.RetryAfter(); got != 50*time.Second {
		t.Errorf("retry hint = %v, want 50s", got)
	}

	now = now.Add(55 * time.Second)
	if got := l.RetryAfter(); got != 0 {
		t.Errorf("retry hint past the window = %v, want 0", got)
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := New(0, 0)
	if _, limit := l.Usage(); limit != 60 {
		t.Errorf("default limit = %d, want 60", limit)
	}
	if l.window != time.Minute {
		t.Errorf("default window = %v, want 1m", l.window)
	}
}
