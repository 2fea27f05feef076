package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ResponseToEntry converts a 200 response into a CacheEntry. The body is
// read and restored so the caller can still consume it.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	entry := &CacheEntry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   now,
		FreshUntil: FreshUntil(resp.Header, now),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// IsCacheable reports whether a response may be stored. GitHub marks
// per-user data "private", which is fine for a scoped key; only no-store
// is honored.
func IsCacheable(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	for _, directive := range cacheControl(resp.Header) {
		if directive == "no-store" {
			return false
		}
	}
	return resp.Header.Get("ETag") != "" || resp.Header.Get("Last-Modified") != ""
}

// FreshUntil computes the freshness deadline from Cache-Control max-age,
// falling back to Expires. no-cache and missing headers yield now, i.e.
// every use is revalidated.
func FreshUntil(headers http.Header, now time.Time) time.Time {
	for _, directive := range cacheControl(headers) {
		if directive == "no-cache" {
			return now
		}
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return now.Add(time.Duration(secs) * time.Second)
			}
			return now
		}
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil && expires.After(now) {
			return expires
		}
	}

	return now
}

func cacheControl(headers http.Header) []string {
	raw := headers.Get("Cache-Control")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	directives := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			directives = append(directives, p)
		}
	}
	return directives
}

// AddConditionalHeaders adds If-None-Match or If-Modified-Since to req.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}

// EntryToResponse rebuilds an HTTP response from a cache entry.
func EntryToResponse(entry *CacheEntry) *http.Response {
	headers := entry.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("X-From-Cache", "1")

	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
	}
}
