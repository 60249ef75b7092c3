// Package store wraps the shared Redis instance behind a narrow, fail-open
// client. Every consumer treats an absent or unreachable store as a signal to
// skip optional behavior, never as a request failure.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned for every operation when the store is not
// configured or its connection check failed. Callers fail open on it.
var ErrUnavailable = errors.New("store unavailable")

// Client wraps the Redis client with bounded timeouts and graceful
// degradation when Redis is absent.
type Client struct {
	client  *redis.Client
	enabled bool
	timeout time.Duration
}

// New creates a store client. An empty addr disables the store entirely,
// which downgrades drift tracking, rate limiting, and caching to their
// fail-open paths.
func New(addr, password string, db int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if addr == "" {
		slog.Warn("Redis not configured, drift stats and distributed rate limiting disabled")
		return &Client{enabled: false, timeout: timeout}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed, continuing without a shared store", "addr", addr, "error", err)
		return &Client{enabled: false, timeout: timeout}
	}

	slog.Info("Redis client connected", "addr", addr, "db", db)
	return &Client{client: client, enabled: true, timeout: timeout}
}

// Enabled reports whether the shared store is usable.
func (c *Client) Enabled() bool { return c.enabled }

// Redis exposes the underlying client for collaborators that need it
// directly (the distributed rate limiter). Nil when disabled.
func (c *Client) Redis() *redis.Client {
	if !c.enabled {
		return nil
	}
	return c.client
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// HGetAll fetches a hash. Missing keys return an empty map, not an error.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if !c.enabled {
		return nil, ErrUnavailable
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	res, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return res, nil
}

// HSetWithTTL writes hash fields and refreshes the key's TTL in one pipeline.
func (c *Client) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if !c.enabled {
		return ErrUnavailable
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Get fetches a string value; (nil, nil) on a missing key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.enabled {
		return nil, ErrUnavailable
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return raw, nil
}

// Set writes a string value with a TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.enabled {
		return ErrUnavailable
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// PushEvent appends to a capped list, trimming to maxLen entries.
func (c *Client) PushEvent(ctx context.Context, key string, payload []byte, maxLen int64) error {
	if !c.enabled {
		return ErrUnavailable
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings the store.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.enabled {
		return ErrUnavailable
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.enabled && c.client != nil {
		return c.client.Close()
	}
	return nil
}
