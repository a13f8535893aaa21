package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// CounterStore tracks request counts per key within a fixed window. Stores
// are injected into the limiter so tests and deployments choose the backing
// (process-local map, or Redis when multiple instances share limits).
type CounterStore interface {
	// Incr bumps the counter for key, starting a fresh window when the
	// previous one has elapsed, and returns the count within the current
	// window.
	Incr(key string, window time.Duration) (int, error)
	// Reset clears all counters.
	Reset() error
}

// sweepInterval bounds how often the memory store scans for elapsed
// windows, so the map cannot grow without bound across distinct clients.
const sweepInterval = time.Minute

// MemoryStore is the default process-local CounterStore.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*counterEntry
	lastSweep time.Time
}

type counterEntry struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*counterEntry),
		lastSweep: time.Now(),
	}
}

// Incr implements CounterStore.
func (s *MemoryStore) Incr(key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}

	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		entry = &counterEntry{windowStart: now, window: window}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// sweep drops entries whose window has elapsed. Callers must hold the lock.
func (s *MemoryStore) sweep(now time.Time) {
	for key, entry := range s.entries {
		if now.Sub(entry.windowStart) >= entry.window {
			delete(s.entries, key)
		}
	}
	s.lastSweep = now
}

// Reset implements CounterStore.
func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*counterEntry)
	return nil
}

const redisKeyPrefix = "ratelimit:"

// RedisStore backs the limiter with Redis so counters are shared across
// processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore from a Redis URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// Incr implements CounterStore via INCR plus a window-length expiry set only
// when the key is first created.
func (s *RedisStore) Incr(key string, window time.Duration) (int, error) {
	ctx := context.Background()

	count, err := s.client.Incr(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKeyPrefix+key, window).Err(); err != nil {
			return 0, err
		}
	}
	return int(count), nil
}

// Reset implements CounterStore by deleting every limiter key.
func (s *RedisStore) Reset() error {
	ctx := context.Background()

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// RateLimit returns a fixed-window limiter keyed by class + client IP +
// route path. The class keeps limiters with different windows from sharing
// counters when both guard the same route; distinct clients always count
// independently, so one client exhausting its budget never penalizes
// another.
func RateLimit(store CounterStore, class string, max int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := class + ":" + clientIP(c) + ":" + c.Path()

		count, err := store.Incr(key, window)
		if err != nil {
			// A broken counter store should not take the API down.
			return c.Next()
		}

		if count > max {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, please try again later")
		}

		return c.Next()
	}
}

// clientIP resolves the client address, honoring the first hop recorded by
// a fronting proxy.
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	return c.IP()
}
