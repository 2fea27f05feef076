package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all cache keys in Redis.
const KeyPrefix = "portal:github"

// CacheKey identifies a cached GitHub response.
type CacheKey struct {
	// Endpoint is the API path, e.g. "/repos/{owner}/{repo}/pulls".
	Endpoint string

	// QueryParams are sorted into the key.
	QueryParams url.Values

	// Accept is the media type requested; GitHub varies responses on it.
	Accept string

	// Scope separates responses fetched with different credentials. Use
	// ScopeForToken rather than the raw token.
	Scope string
}

// String generates a deterministic cache key string.
// Format: portal:github:<endpoint>:<q1>=<v1>:accept=<type>:scope=<scope>
//
// Example:
//
//	portal:github:repos/octo/hello/pulls:state=open:scope=3f2a9c1b
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.QueryParams[name]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
		}
	}

	if k.Accept != "" {
		parts = append(parts, "accept="+k.Accept)
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}

// ScopeForToken returns a short, non-reversible scope for a credential.
// An empty token yields an empty scope.
func ScopeForToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
