// Package ratelimit implements the fixed-window attempt limiter guarding
// sensitive operations. Counters live behind CounterStore so a process
// local map can be swapped for redis without touching call sites.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// CounterStore increments key within a fixed window starting at the first
// hit and reports the new count and the time left in the window.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter allows Max attempts per scope and identity within Window.
type Limiter struct {
	Store  CounterStore
	Max    int64
	Window time.Duration
	Prefix string
}

func NewLimiter(store CounterStore, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{Store: store, Max: int64(max), Window: window, Prefix: "rl"}
}

// Hit records one attempt for scope/identity.
func (l *Limiter) Hit(ctx context.Context, scope, identity string) (Decision, error) {
	count, ttl, err := l.Store.Incr(ctx, l.key(scope, identity), l.Window)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Count: count, Remaining: l.Max - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if count > l.Max {
		if ttl <= 0 {
			ttl = l.Window
		}
		d.RetryAfter = ttl
		return d, nil
	}
	d.Allowed = true
	return d, nil
}

// Reset clears the window of one scope and identity.
func (l *Limiter) Reset(ctx context.Context, scope, identity string) error {
	return l.Store.Reset(ctx, l.key(scope, identity))
}

func (l *Limiter) key(scope, identity string) string {
	return l.Prefix + ":" + scope + ":" + identity
}

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. Not shared between
// instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]*memoryEntry{}, clock: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	m.clock = clock
	return m
}

func (m *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &memoryEntry{resetAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt.Sub(now), nil
}

func (m *MemoryStore) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired windows.
func (m *MemoryStore) Sweep() {
	now := m.clock()
	m.mu.Lock()
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}

// RunSweeper sweeps every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// RedisStore shares counters between instances with INCR + PEXPIRE.
type RedisStore struct {
	Redis *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{Redis: rdb}
}

func (r *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := r.Redis.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	ttl, err := r.Redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// key lost its expiry (crash between INCR and PEXPIRE); restart the window
		if err := r.Redis.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}

func (r *RedisStore) Reset(ctx context.Context, key string) error {
	return r.Redis.Del(ctx, key).Err()
}
