// Package cache stores GitHub GET responses in Redis for conditional
// revalidation.
//
// GitHub does not count a 304 Not Modified answer to a request carrying
// If-None-Match against the primary rate limit, so revalidating a cached
// ETag is far cheaper than refetching. Entries are therefore retained well
// past their Cache-Control freshness and revalidated when stale.
//
// # Usage
//
//	manager := cache.NewManager(redisClient, cache.DefaultRetention)
//
//	key := cache.CacheKey{
//		Endpoint:    "/repos/octo/hello/pulls",
//		QueryParams: url.Values{"state": []string{"open"}},
//		Scope:       cache.ScopeForToken(token),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case err == cache.ErrCacheMiss:
//		// plain request
//	case entry.IsFresh():
//		resp := cache.EntryToResponse(entry)
//	default:
//		cache.AddConditionalHeaders(req, entry)
//		// on 304: manager.Revalidated(ctx, key, entry, resp.Header)
//	}
//
// # Metrics
//
//   - portal_github_cache_hits_total{state} - hits by freshness
//   - portal_github_cache_misses_total - misses
//   - portal_github_cache_stored_bytes_total - bytes written
//   - portal_github_304_responses_total - successful revalidations
//   - portal_github_conditional_requests_total - conditional requests sent
//   - portal_github_cache_errors_total{operation} - Redis errors
package cache
