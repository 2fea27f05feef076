// Package ratelimit classifies GitHub rate limit failures and tracks the
// quota reported by the x-ratelimit-* response headers.
//
// Two regimes are distinguished: primary limits (the hourly quota is spent,
// x-ratelimit-remaining is "0") and secondary limits (short-term abuse
// detection that fires while quota remains).
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyRemaining  = "portal:github:rate_limit:remaining"
	RedisKeyLimit      = "portal:github:rate_limit:limit"
	RedisKeyReset      = "portal:github:rate_limit:reset_timestamp"
	RedisKeyResource   = "portal:github:rate_limit:resource"
	RedisKeyLastUpdate = "portal:github:rate_limit:last_update"
)

// Header names as delivered by the GitHub REST API.
const (
	HeaderRemaining  = "x-ratelimit-remaining"
	HeaderLimit      = "x-ratelimit-limit"
	HeaderReset      = "x-ratelimit-reset"
	HeaderResource   = "x-ratelimit-resource"
	HeaderRetryAfter = "retry-after"
)

// QuotaThresholdLow marks the remaining-request count below which the
// quota is reported as unhealthy.
const QuotaThresholdLow = 100

// QuotaState is the last primary quota snapshot seen on a GitHub response.
// It is shared across processes via Redis.
type QuotaState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Limit is the size of the window.
	Limit int `json:"limit"`

	// ResetAt is when the window resets (x-ratelimit-reset, unix seconds).
	ResetAt time.Time `json:"reset_at"`

	// Resource is the quota bucket (core, search, graphql, ...).
	Resource string `json:"resource"`

	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true while Remaining >= QuotaThresholdLow.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExhausted returns true once the primary quota is spent.
func (s *QuotaState) IsExhausted() bool {
	return s.Remaining <= 0
}

// TimeUntilReset returns the duration until the window resets, or 0 if the
// reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdLow
}
