// Package ratelimit enforces per-principal request budgets. The distributed
// path uses Redis so limits hold across replicas; when Redis is absent or
// failing, a per-key in-memory limiter takes over rather than rejecting or
// waving through unbounded traffic.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/decisionlab/risk-engine/internal/store"
)

// Result reports one rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a distributed rate limiter with an in-memory fallback.
type Limiter struct {
	redis *redis_rate.Limiter

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// New builds a limiter over the shared store. A disabled store means every
// check uses the in-memory fallback.
func New(client *store.Client) *Limiter {
	l := &Limiter{fallback: make(map[string]*rate.Limiter)}
	if rdb := client.Redis(); rdb != nil {
		l.redis = redis_rate.NewLimiter(rdb)
	}
	return l
}

// Allow checks whether the key may make a request under its per-minute
// budget.
func (l *Limiter) Allow(ctx context.Context, key string, rpm int) Result {
	if rpm < 1 {
		rpm = 1
	}

	if l.redis != nil {
		res, err := l.redis.Allow(ctx, "rl:"+key, redis_rate.PerMinute(rpm))
		if err == nil {
			return Result{
				Allowed:    res.Allowed > 0,
				Remaining:  res.Remaining,
				RetryAfter: res.RetryAfter,
			}
		}
		slog.Warn("distributed rate limit check failed, using in-memory fallback", "error", err)
	}

	lim := l.fallbackLimiter(key, rpm)
	if lim.Allow() {
		return Result{Allowed: true, Remaining: int(lim.Tokens())}
	}
	return Result{Allowed: false, RetryAfter: 10 * time.Second}
}

func (l *Limiter) fallbackLimiter(key string, rpm int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.fallback[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
		l.fallback[key] = lim
	}
	return lim
}
