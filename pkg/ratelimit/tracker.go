package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	githubQuotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portal_github_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window by resource",
	}, []string{"resource"})

	githubQuotaExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_github_rate_limit_exhausted_total",
		Help: "Total number of responses reporting an exhausted GitHub quota by resource",
	}, []string{"resource"})
)

// Tracker records the GitHub quota reported on responses. The latest
// snapshot is kept in memory and, when a Redis client is configured,
// mirrored to Redis so that other processes see it.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu   sync.RWMutex
	last *QuotaState
}

// NewTracker creates a new quota tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState returns the current quota state, preferring Redis when
// configured. Returns a default healthy state if nothing was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	if t.redis == nil {
		t.mu.RLock()
		defer t.mu.RUnlock()
		if t.last == nil {
			return defaultState(), nil
		}
		state := *t.last
		return &state, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err == redis.Nil {
		t.logger.Debug().Msg("No GitHub quota state in Redis, returning default healthy state")
		return defaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get limit: %w", err)
	}

	reset, err := t.redis.Get(ctx, RedisKeyReset).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	resource, err := t.redis.Get(ctx, RedisKeyResource).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &QuotaState{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    time.Unix(reset, 0),
		Resource:   resource,
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses the x-ratelimit-* headers and stores the
// resulting state. Responses without quota headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, err := ParseQuotaHeaders(headers)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	t.mu.Lock()
	t.last = state
	t.mu.Unlock()

	githubQuotaRemaining.WithLabelValues(state.Resource).Set(float64(state.Remaining))
	if state.IsExhausted() {
		githubQuotaExhaustedTotal.WithLabelValues(state.Resource).Inc()
	}

	if t.redis != nil {
		lastUpdateJSON, err := json.Marshal(state.LastUpdate)
		if err != nil {
			return fmt.Errorf("marshal last update: %w", err)
		}

		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
		pipe.Set(ctx, RedisKeyLimit, state.Limit, 0)
		pipe.Set(ctx, RedisKeyReset, state.ResetAt.Unix(), 0)
		pipe.Set(ctx, RedisKeyResource, state.Resource, 0)
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store quota state in redis: %w", err)
		}
	}

	switch {
	case state.IsExhausted():
		t.logger.Warn().
			Str("resource", state.Resource).
			Time("reset_at", state.ResetAt).
			Msg("GitHub quota exhausted")
	case !state.IsHealthy:
		t.logger.Info().
			Str("resource", state.Resource).
			Int("remaining", state.Remaining).
			Msg("GitHub quota running low")
	default:
		t.logger.Debug().
			Str("resource", state.Resource).
			Int("remaining", state.Remaining).
			Msg("GitHub quota state updated")
	}

	return nil
}

// ParseQuotaHeaders parses the x-ratelimit-* headers. It returns nil, nil
// when x-ratelimit-remaining is absent.
func ParseQuotaHeaders(headers http.Header) (*QuotaState, error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	var limit int
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	resource := headers.Get(HeaderResource)
	if resource == "" {
		resource = "core"
	}

	state := &QuotaState{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    time.Unix(reset, 0),
		Resource:   resource,
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()
	return state, nil
}

func defaultState() *QuotaState {
	return &QuotaState{
		Remaining:  5000,
		Limit:      5000,
		ResetAt:    time.Now().Add(time.Hour),
		Resource:   "core",
		LastUpdate: time.Now(),
		IsHealthy:  true,
	}
}
