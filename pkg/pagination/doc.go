// Package pagination fetches every issue matching a JQL query from Jira by
// following the provider's paging contract until it reports no more pages.
//
// Jira Cloud pages with an opaque nextPageToken; the search is finished
// when a response carries no token. Jira Data Center pages with a numeric
// startAt offset; the search is finished once startAt+maxResults reaches
// the reported total.
//
// Example usage:
//
//	strategy := pagination.NewStrategy(pagination.ParseProduct(cfg.JiraProduct), http.DefaultClient,
//		pagination.WithHeaders(authHeaders),
//		pagination.WithLimiter(rate.NewLimiter(rate.Limit(5), 1)),
//	)
//	tickets, err := strategy.PagedIssuesRequest(ctx, "https://example.atlassian.net/rest/api/3/", "project = OPS", nil)
//
// A failed page aborts the whole search and no partial result is returned.
// Strategies do not retry.
package pagination
