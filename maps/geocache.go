package maps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"commute-annotator/internal/types"
)

const geocodeKeyPrefix = "geocode:"

// GeocodeCache stores geocoding results by address
type GeocodeCache interface {
	Get(ctx context.Context, address string) (Location, bool, error)
	Set(ctx context.Context, address string, loc Location) error
}

func normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// RedisGeocodeCache keeps geocodes in Redis with an expiry
type RedisGeocodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGeocodeCache creates a Redis-backed geocode cache
func NewRedisGeocodeCache(client *redis.Client, ttl time.Duration) *RedisGeocodeCache {
	return &RedisGeocodeCache{client: client, ttl: ttl}
}

// Key returns the Redis key for address
func (r *RedisGeocodeCache) Key(address string) string {
	sum := sha256.Sum256([]byte(normalize(address)))
	return geocodeKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached location for address
func (r *RedisGeocodeCache) Get(ctx context.Context, address string) (Location, bool, error) {
	val, err := r.client.Get(ctx, r.Key(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Location{}, false, nil
	}
	if err != nil {
		return Location{}, false, err
	}

	var loc Location
	if err := json.Unmarshal(val, &loc); err != nil {
		return Location{}, false, err
	}
	return loc, true, nil
}

// Set stores loc for address
func (r *RedisGeocodeCache) Set(ctx context.Context, address string, loc Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return r.client.SetEx(ctx, r.Key(address), data, r.ttl).Err()
}

type memoryEntry struct {
	loc     Location
	expires time.Time
}

// MemoryGeocodeCache is an in-process geocode cache used when Redis is not configured
type MemoryGeocodeCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryGeocodeCache creates an in-process geocode cache
func NewMemoryGeocodeCache(ttl time.Duration) *MemoryGeocodeCache {
	return &MemoryGeocodeCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached location for address
func (m *MemoryGeocodeCache) Get(_ context.Context, address string) (Location, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalize(address)
	e, ok := m.entries[key]
	if !ok {
		return Location{}, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return Location{}, false, nil
	}
	return e.loc, true, nil
}

// Set stores loc for address
func (m *MemoryGeocodeCache) Set(_ context.Context, address string, loc Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[normalize(address)] = memoryEntry{loc: loc, expires: m.now().Add(m.ttl)}
	return nil
}

// OpenGeocodeCache connects to Redis at addr, or returns an in-process cache
// when addr is empty or Redis is unreachable.
func OpenGeocodeCache(ctx context.Context, addr string, ttl time.Duration, logger types.Logger) GeocodeCache {
	if addr == "" {
		return NewMemoryGeocodeCache(ttl)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("Redis at %s unavailable, caching geocodes in memory: %v", addr, err)
		client.Close()
		return NewMemoryGeocodeCache(ttl)
	}
	logger.Infof("Caching geocodes in Redis at %s", addr)
	return NewRedisGeocodeCache(client, ttl)
}
