package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 or skips the test.
// Integration tests use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, 0)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", manager.retention, DefaultRetention)
	}

	if m := NewManager(client, time.Hour); m.retention != time.Hour {
		t.Errorf("retention = %v, want 1h", m.retention)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, 0)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/repos/octo/hello"}
	entry := &CacheEntry{
		Data:       []byte(`{"full_name":"octo/hello"}`),
		ETag:       `"abc123"`,
		FreshUntil: time.Now().Add(time.Minute),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:   time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) || got.ETag != entry.ETag {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}

	ttl := client.TTL(ctx, key.String()).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("redis TTL = %v, want retention of 1m", ttl)
	}
}

func TestManager_StaleEntryIsKept(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/repos/octo/hello/pulls"}
	entry := &CacheEntry{
		Data:       []byte(`[]`),
		ETag:       `"stale"`,
		FreshUntil: time.Now().Add(-time.Hour),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.IsFresh() {
		t.Error("entry should be stale")
	}
}

func TestManager_StaleWithoutValidatorsNotStored(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/rate_limit"}
	if err := manager.Set(ctx, key, &CacheEntry{Data: []byte(`{}`)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/repos/octo/hello"}
	if err := manager.Set(ctx, key, &CacheEntry{ETag: `"x"`}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Revalidated(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/repos/octo/hello"}
	entry := &CacheEntry{
		Data:       []byte(`{}`),
		ETag:       `"v1"`,
		FreshUntil: time.Now().Add(-time.Minute),
	}

	headers := http.Header{
		"Cache-Control": []string{"max-age=60"},
		"Etag":          []string{`"v2"`},
	}
	if err := manager.Revalidated(ctx, key, entry, headers); err != nil {
		t.Fatalf("Revalidated failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsFresh() {
		t.Error("revalidated entry should be fresh")
	}
	if got.ETag != `"v2"` {
		t.Errorf("ETag = %q, want updated validator", got.ETag)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, 0)
	if err := manager.Set(context.Background(), CacheKey{}, nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}
