package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long entries stay in Redis. Stale entries within
// retention are revalidated with a conditional request instead of
// refetched.
const DefaultRetention = 24 * time.Hour

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores GitHub responses in Redis.
type Manager struct {
	redis     *redis.Client
	retention time.Duration
}

// NewManager creates a cache manager. retention <= 0 uses DefaultRetention.
func NewManager(redisClient *redis.Client, retention time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		redis:     redisClient,
		retention: retention,
	}
}

// Get retrieves an entry, fresh or stale. Returns ErrCacheMiss if absent.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	state := "stale"
	if entry.IsFresh() {
		state = "fresh"
	}
	CacheHits.WithLabelValues(state).Inc()

	return &entry, nil
}

// Set stores an entry for the retention period.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if !entry.CanRevalidate() && !entry.IsFresh() {
		// Nothing to revalidate with and already stale.
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, m.retention).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.Add(float64(len(data)))

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Revalidated records a 304 Not Modified for entry: freshness is
// recomputed from the 304's headers and the entry is stored again.
func (m *Manager) Revalidated(ctx context.Context, key CacheKey, entry *CacheEntry, headers http.Header) error {
	NotModifiedResponses.Inc()

	now := time.Now()
	entry.FreshUntil = FreshUntil(headers, now)
	entry.CachedAt = now
	if etag := headers.Get("ETag"); etag != "" {
		entry.ETag = etag
	}

	return m.Set(ctx, key, entry)
}
