package service

import (
	"context"
	"testing"
	"time"
)

func TestLocalWindowBudget(t *testing.T) {
	w := newLocalWindow()
	budget := Budget{Limit: 3, Window: time.Minute}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d := w.allow("k", budget, t0.Add(time.Duration(i)*time.Second))
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	d := w.allow("k", budget, t0.Add(3*time.Second))
	if d.Allowed {
		t.Fatal("4th attempt inside window should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > budget.Window {
		t.Fatalf("retry-after out of range: %v", d.RetryAfter)
	}
}

func TestLocalWindowRetryAfterShrinks(t *testing.T) {
	w := newLocalWindow()
	budget := Budget{Limit: 2, Window: time.Minute}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	w.allow("k", budget, t0)
	w.allow("k", budget, t0.Add(time.Second))

	early := w.allow("k", budget, t0.Add(10*time.Second))
	late := w.allow("k", budget, t0.Add(40*time.Second))
	if early.Allowed || late.Allowed {
		t.Fatal("both attempts should be rejected")
	}
	if late.RetryAfter >= early.RetryAfter {
		t.Fatalf("retry-after should shrink as the window elapses: early=%v late=%v", early.RetryAfter, late.RetryAfter)
	}
}

func TestLocalWindowSlidesOpen(t *testing.T) {
	w := newLocalWindow()
	budget := Budget{Limit: 1, Window: time.Minute}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if d := w.allow("k", budget, t0); !d.Allowed {
		t.Fatal("first attempt should be allowed")
	}
	if d := w.allow("k", budget, t0.Add(30*time.Second)); d.Allowed {
		t.Fatal("attempt inside window should be rejected")
	}
	if d := w.allow("k", budget, t0.Add(61*time.Second)); !d.Allowed {
		t.Fatal("attempt after window should be allowed again")
	}
}

func TestLocalWindowKeysIndependent(t *testing.T) {
	w := newLocalWindow()
	budget := Budget{Limit: 1, Window: time.Minute}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	w.allow("user:a", budget, t0)
	if d := w.allow("user:b", budget, t0); !d.Allowed {
		t.Fatal("a different subject must not share the bucket")
	}
}

func TestLimiterWithoutRedisStartsDegraded(t *testing.T) {
	l := NewRateLimiter(nil, map[Category]Budget{
		CategorySend: {Limit: 2, Window: time.Minute},
	})

	if !l.Degraded() {
		t.Fatal("limiter without a coordination store must report degraded")
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if d := l.Allow(ctx, "user:a", CategorySend); !d.Allowed {
			t.Fatalf("attempt %d should pass on the fallback", i+1)
		}
	}
	if d := l.Allow(ctx, "user:a", CategorySend); d.Allowed {
		t.Fatal("over-budget attempt should be rejected by the fallback")
	}
}

func TestLimiterUnknownCategoryAllowed(t *testing.T) {
	l := NewRateLimiter(nil, map[Category]Budget{})
	if d := l.Allow(context.Background(), "user:a", CategorySend); !d.Allowed {
		t.Fatal("category without a budget must not be limited")
	}
}

func TestLocalWindowPrune(t *testing.T) {
	w := newLocalWindow()
	budget := Budget{Limit: 1, Window: time.Minute}
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	w.allow("stale", budget, t0)
	w.prune(t0.Add(2 * time.Minute))

	w.mu.Lock()
	_, ok := w.entries["stale"]
	w.mu.Unlock()
	if ok {
		t.Fatal("idle key should have been pruned")
	}
}
