package drift

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/decisionlab/risk-engine/internal/store"
)

// Store is the narrow persistence contract for accumulators. The core never
// assumes in-process state: any keyed, externally durable store works.
// Concurrent read-modify-write on the same key may lose an update; that
// slightly understates n without corrupting later reads, which is acceptable
// for monitoring statistics.
type Store interface {
	// Get loads the accumulator for a (caller, feature) pair; a zero
	// Accumulator if the pair has never been observed.
	Get(ctx context.Context, caller, feature string) (Accumulator, error)
	// Put writes the accumulator back and refreshes its retention window.
	Put(ctx context.Context, caller, feature string, acc Accumulator, ttl time.Duration) error
	// Available reports whether the store can currently serve requests.
	Available() bool
}

// RedisStore keeps accumulators in Redis hashes keyed
// drift:<caller>:<feature> with fields n, mean, m2.
type RedisStore struct {
	client *store.Client
}

func NewRedisStore(client *store.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Available() bool { return s.client.Enabled() }

func driftKey(caller, feature string) string {
	return "drift:" + caller + ":" + feature
}

func (s *RedisStore) Get(ctx context.Context, caller, feature string) (Accumulator, error) {
	data, err := s.client.HGetAll(ctx, driftKey(caller, feature))
	if err != nil {
		return Accumulator{}, err
	}
	return accumulatorFromFields(data), nil
}

func (s *RedisStore) Put(ctx context.Context, caller, feature string, acc Accumulator, ttl time.Duration) error {
	fields := map[string]string{
		"n":    strconv.FormatInt(acc.N, 10),
		"mean": strconv.FormatFloat(acc.Mean, 'g', -1, 64),
		"m2":   strconv.FormatFloat(acc.M2, 'g', -1, 64),
	}
	return s.client.HSetWithTTL(ctx, driftKey(caller, feature), fields, ttl)
}

func accumulatorFromFields(data map[string]string) Accumulator {
	var acc Accumulator
	if v, err := strconv.ParseInt(data["n"], 10, 64); err == nil {
		acc.N = v
	}
	if v, err := strconv.ParseFloat(data["mean"], 64); err == nil {
		acc.Mean = v
	}
	if v, err := strconv.ParseFloat(data["m2"], 64); err == nil {
		acc.M2 = v
	}
	return acc
}

// MemoryStore is an in-process Store for tests and single-node deployments
// without Redis. Entries expire lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	acc       Accumulator
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Available() bool { return true }

func (s *MemoryStore) Get(_ context.Context, caller, feature string) (Accumulator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[driftKey(caller, feature)]
	if !ok || time.Now().After(e.expiresAt) {
		return Accumulator{}, nil
	}
	return e.acc, nil
}

func (s *MemoryStore) Put(_ context.Context, caller, feature string, acc Accumulator, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[driftKey(caller, feature)] = memoryEntry{acc: acc, expiresAt: time.Now().Add(ttl)}
	return nil
}
