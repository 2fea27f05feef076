package cache

import (
	"net/http"
	"time"
)

// CacheEntry is a cached GitHub GET response.
type CacheEntry struct {
	Data []byte `json:"data"`

	// ETag is sent back as If-None-Match on revalidation.
	ETag string `json:"etag"`

	LastModified time.Time `json:"last_modified"`

	// FreshUntil is derived from Cache-Control max-age (or Expires). A
	// stale entry is still kept and revalidated with a conditional request.
	FreshUntil time.Time `json:"fresh_until"`

	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	CachedAt   time.Time   `json:"cached_at"`
}

// IsFresh returns true while the entry may be served without revalidation.
func (e *CacheEntry) IsFresh() bool {
	return time.Now().Before(e.FreshUntil)
}

// Age returns how long ago the entry was stored or last revalidated.
func (e *CacheEntry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}

// CanRevalidate returns true if a conditional request can be built from
// the entry.
func (e *CacheEntry) CanRevalidate() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
