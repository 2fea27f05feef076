package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsFresh(t *testing.T) {
	tests := []struct {
		name       string
		freshUntil time.Time
		want       bool
	}{
		{"fresh", time.Now().Add(time.Minute), true},
		{"stale", time.Now().Add(-time.Minute), false},
		{"zero", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{FreshUntil: tt.freshUntil}
			if got := entry.IsFresh(); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_Age(t *testing.T) {
	if age := (&CacheEntry{}).Age(); age != 0 {
		t.Errorf("Age() of unstored entry = %v, want 0", age)
	}

	entry := &CacheEntry{CachedAt: time.Now().Add(-90 * time.Second)}
	if age := entry.Age(); age < 89*time.Second || age > 91*time.Second {
		t.Errorf("Age() = %v, want ~90s", age)
	}
}

func TestCacheEntry_CanRevalidate(t *testing.T) {
	tests := []struct {
		name  string
		entry CacheEntry
		want  bool
	}{
		{"etag", CacheEntry{ETag: `"abc"`}, true},
		{"last modified", CacheEntry{LastModified: time.Now()}, true},
		{"neither", CacheEntry{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.CanRevalidate(); got != tt.want {
				t.Errorf("CanRevalidate() = %v, want %v", got, tt.want)
			}
		})
	}
}
