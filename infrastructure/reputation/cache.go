package reputation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCache is an in-process CacheStore with per-entry expiry.
// It is safe for concurrent use and suitable for single-instance
// deployments or as an L1 in front of Redis.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	profile   Profile
	expiresAt time.Time
}

var _ CacheStore = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory profile cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get retrieves a cached profile, returning false when absent or expired.
// Expired entries are removed lazily on the next Set for the same key.
func (m *MemoryCache) Get(_ context.Context, key string) (Profile, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return Profile{}, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return Profile{}, false, nil
	}
	return entry.profile, true, nil
}

// Set stores a profile with an expiration time. Zero ttl means no expiry.
func (m *MemoryCache) Set(_ context.Context, key string, profile Profile, ttl time.Duration) error {
	entry := memoryEntry{profile: profile}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// RedisCache is a CacheStore backed by Redis, sharing cached profiles
// across engine instances. Profiles are stored as JSON under the key the
// client supplies.
type RedisCache struct {
	rdb *redis.Client
}

var _ CacheStore = (*RedisCache)(nil)

// NewRedisCache wraps an existing Redis client as a profile cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// NewRedisCacheFromURL connects to Redis using a URL of the form
// redis://host:port/db and verifies the connection with a ping.
func NewRedisCacheFromURL(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisCache{rdb: rdb}, nil
}

// Get retrieves a cached profile, returning false on a miss.
func (r *RedisCache) Get(ctx context.Context, key string) (Profile, bool, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, false, err
	}
	return profile, true, nil
}

// Set stores a profile with an expiration time. Zero ttl means no expiry.
func (r *RedisCache) Set(ctx context.Context, key string, profile Profile, ttl time.Duration) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key, b, ttl).Err()
}

// Close shuts down the underlying Redis connection.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
