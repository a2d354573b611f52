package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Category names one of the three independent bucket pools.
type Category string

const (
	CategorySend   Category = "send"
	CategoryTyping Category = "typing"
	CategoryAck    Category = "delivery-ack"
)

type Budget struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one limiter check. RetryAfter is only
// meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter enforces per-subject budgets across all server processes
// through Redis. When Redis is unreachable it degrades to a process-local
// sliding window: limits stay enforced per process, but the cluster-wide
// budget becomes up to N times the configured one. That trade-off is
// surfaced through Degraded(), the health endpoint and a gauge rather
// than silently absorbed.
type RateLimiter struct {
	rdb      *redis.Client
	budgets  map[Category]Budget
	local    *localWindow
	degraded atomic.Bool

	// Unix seconds of the last reconnect probe while degraded.
	lastProbe atomic.Int64
}

const probeInterval = 30 * time.Second

func NewRateLimiter(rdb *redis.Client, budgets map[Category]Budget) *RateLimiter {
	l := &RateLimiter{
		rdb:     rdb,
		budgets: budgets,
		local:   newLocalWindow(),
	}
	if rdb == nil {
		l.enterDegraded(fmt.Errorf("no redis client configured"))
	}
	return l
}

// Allow consumes one token for (subject, category). The Redis decrement
// is atomic with respect to concurrent consumers of the same key; the
// fallback window holds a per-process lock instead.
func (l *RateLimiter) Allow(ctx context.Context, subject string, cat Category) Decision {
	budget, ok := l.budgets[cat]
	if !ok {
		return Decision{Allowed: true}
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s:%s", cat, subject)

	if !l.degraded.Load() {
		d, err := l.allowRedis(ctx, key, budget, now)
		if err != nil {
			l.enterDegraded(err)
		} else {
			l.reject(cat, d)
			return d
		}
	} else if l.rdb != nil && l.shouldProbe(now) {
		d, err := l.allowRedis(ctx, key, budget, now)
		if err == nil {
			l.exitDegraded()
			l.reject(cat, d)
			return d
		}
	}

	d := l.local.allow(key, budget, now)
	l.reject(cat, d)
	return d
}

// Degraded reports whether limiting is currently process-local only.
func (l *RateLimiter) Degraded() bool {
	return l.degraded.Load()
}

func (l *RateLimiter) reject(cat Category, d Decision) {
	if !d.Allowed {
		metrics.RateLimitRejections.WithLabelValues(string(cat)).Inc()
	}
}

// allowRedis implements a sliding window over a sorted set: prune entries
// older than the window, count what remains, record this attempt.
func (l *RateLimiter) allowRedis(ctx context.Context, key string, budget Budget, now time.Time) (Decision, error) {
	windowStart := now.Add(-budget.Window)

	pipe := l.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, budget.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	if countCmd.Val() < int64(budget.Limit) {
		return Decision{Allowed: true}, nil
	}

	// Over budget: the oldest surviving entry decides when a slot frees
	// up, so the hint shrinks as the window elapses.
	retryAfter := budget.Window
	oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		freesAt := time.UnixMilli(int64(oldest[0].Score)).Add(budget.Window)
		if d := freesAt.Sub(now); d > 0 && d < retryAfter {
			retryAfter = d
		}
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

func (l *RateLimiter) enterDegraded(err error) {
	if l.degraded.CompareAndSwap(false, true) {
		metrics.LimiterDegraded.Set(1)
		log.Printf("[Limiter] WARNING: coordination store unreachable, falling back to process-local limits (cluster budget is now per-process): %v", err)
	}
	l.lastProbe.Store(time.Now().Unix())
}

func (l *RateLimiter) exitDegraded() {
	if l.degraded.CompareAndSwap(true, false) {
		metrics.LimiterDegraded.Set(0)
		log.Printf("[Limiter] coordination store reachable again, distributed limits restored")
	}
}

func (l *RateLimiter) shouldProbe(now time.Time) bool {
	last := l.lastProbe.Load()
	if now.Unix()-last < int64(probeInterval.Seconds()) {
		return false
	}
	return l.lastProbe.CompareAndSwap(last, now.Unix())
}

// localWindow is the in-process fallback: a plain sliding window per key.
type localWindow struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func newLocalWindow() *localWindow {
	return &localWindow{entries: make(map[string][]time.Time)}
}

func (w *localWindow) allow(key string, budget Budget, now time.Time) Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	windowStart := now.Add(-budget.Window)
	kept := w.entries[key][:0]
	for _, t := range w.entries[key] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= budget.Limit {
		w.entries[key] = kept
		// kept is append-ordered, but guard anyway
		oldest := kept[0]
		for _, t := range kept {
			if t.Before(oldest) {
				oldest = t
			}
		}
		retryAfter := oldest.Add(budget.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}

	w.entries[key] = append(kept, now)
	return Decision{Allowed: true}
}

// prune drops keys with no entries inside any plausible window. Called
// from the janitor to stop idle subjects accumulating.
func (w *localWindow) prune(olderThan time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, times := range w.entries {
		if len(times) == 0 || !times[len(times)-1].After(olderThan) {
			delete(w.entries, key)
		}
	}
}

// StartJanitor periodically prunes the fallback window. Returns a stop
// func.
func (l *RateLimiter) StartJanitor(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.local.prune(time.Now().Add(-l.maxWindow()))
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (l *RateLimiter) maxWindow() time.Duration {
	var max time.Duration
	for _, b := range l.budgets {
		if b.Window > max {
			max = b.Window
		}
	}
	return max
}
