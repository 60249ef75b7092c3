package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/decisionlab/risk-engine/internal/store"
)

func newFallbackLimiter() *Limiter {
	return New(store.New("", "", 0, time.Second))
}

func TestAllow_FallbackEnforcesBudget(t *testing.T) {
	l := newFallbackLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := l.Allow(ctx, "key-a", 3)
		assert.True(t, res.Allowed, "request %d should pass", i+1)
	}

	res := l.Allow(ctx, "key-a", 3)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := newFallbackLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Allow(ctx, "key-a", 3)
	}
	assert.False(t, l.Allow(ctx, "key-a", 3).Allowed)
	assert.True(t, l.Allow(ctx, "key-b", 3).Allowed)
}

func TestAllow_ZeroRPMIsTreatedAsOne(t *testing.T) {
	l := newFallbackLimiter()
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "key-a", 0).Allowed)
	assert.False(t, l.Allow(ctx, "key-a", 0).Allowed)
}
