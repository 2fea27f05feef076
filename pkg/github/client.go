// Package github provides a GitHub REST client whose requests are
// serialized through a shared scheduler, revalidated against a Redis ETag
// cache and reported to the quota tracker.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/portal-api-client/pkg/cache"
	"github.com/Sternrassler/portal-api-client/pkg/logging"
	"github.com/Sternrassler/portal-api-client/pkg/ratelimit"
	"github.com/Sternrassler/portal-api-client/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for GitHub client operations.
var (
	githubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_github_requests_total",
		Help: "Total GitHub requests by endpoint and status",
	}, []string{"endpoint", "status"})

	githubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_github_request_duration_seconds",
		Help:    "GitHub request duration in seconds by endpoint, including queueing and retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	githubErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_github_errors_total",
		Help: "Total GitHub errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of failed GitHub requests.
type ErrorClass string

const (
	ErrorClassClient    ErrorClass = "client"
	ErrorClassServer    ErrorClass = "server"
	ErrorClassPrimary   ErrorClass = "primary_rate_limit"
	ErrorClassSecondary ErrorClass = "secondary_rate_limit"
	ErrorClassNetwork   ErrorClass = "network"
)

const (
	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"

	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "portal-api-client"

	mediaTypeJSON = "application/vnd.github+json"
	apiVersion    = "2022-11-28"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL defaults to DefaultBaseURL. Use the /api/v3 root for GitHub
	// Enterprise Server.
	BaseURL string

	// Token is sent as a Bearer token when set.
	Token string

	UserAgent string

	// MaxRetries is passed to the scheduler. Negative uses
	// scheduler.DefaultMaxRetries.
	MaxRetries int

	// Timeout per HTTP attempt. Zero uses 30s.
	Timeout time.Duration

	// Scheduler serializes requests. Nil uses scheduler.Default().
	Scheduler *scheduler.Scheduler

	// Tracker records quota headers. Nil keeps an in-memory tracker.
	Tracker *ratelimit.Tracker

	// Cache enables ETag revalidation for GET requests. Nil disables it.
	Cache *cache.Manager
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Token:      token,
		UserAgent:  DefaultUserAgent,
		MaxRetries: scheduler.DefaultMaxRetries,
		Timeout:    30 * time.Second,
	}
}

// Client is a GitHub REST client.
type Client struct {
	httpClient *http.Client
	scheduler  *scheduler.Scheduler
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	baseURL    string
	scope      string
	logger     zerolog.Logger
}

// New creates a GitHub client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("github-client")

	sched := cfg.Scheduler
	if sched == nil {
		sched = scheduler.Default()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = ratelimit.NewTracker(nil, logger)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		scheduler:  sched,
		tracker:    tracker,
		cache:      cfg.Cache,
		config:     cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		scope:      cache.ScopeForToken(cfg.Token),
		logger:     logger,
	}, nil
}

// Do sends req through the scheduler. GET requests are answered from the
// cache while fresh and revalidated with If-None-Match once stale. A
// non-2xx answer other than 304 is returned as *ratelimit.ResponseError
// after the scheduler has given up retrying it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		githubRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.setHeaders(req)

	useCache := c.cache != nil && req.Method == http.MethodGet
	cacheKey := cache.CacheKey{
		Endpoint:    endpoint,
		QueryParams: req.URL.Query(),
		Accept:      req.Header.Get("Accept"),
		Scope:       c.scope,
	}

	var cachedEntry *cache.CacheEntry
	if useCache {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil && entry.IsFresh():
			githubRequestsTotal.WithLabelValues(endpoint, "cache").Inc()
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving fresh cache entry")
			return cache.EntryToResponse(entry), nil
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	resp, err := scheduler.DoWithRelease(ctx, c.scheduler, func(ctx context.Context) (*http.Response, error) {
		return c.attempt(ctx, req, endpoint, cachedEntry)
	}, c.config.MaxRetries, closeBody)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		resp.Body.Close()
		githubRequestsTotal.WithLabelValues(endpoint, "304").Inc()
		if err := c.cache.Revalidated(ctx, cacheKey, cachedEntry, resp.Header); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to refresh cache entry")
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		return cache.EntryToResponse(cachedEntry), nil
	}

	githubRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if useCache && cache.IsCacheable(resp) {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// closeBody drains and closes a response nobody will read, so the
// connection can be reused.
func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

// attempt performs one HTTP round trip on a fresh copy of req.
func (c *Client) attempt(ctx context.Context, req *http.Request, endpoint string, cached *cache.CacheEntry) (*http.Response, error) {
	attemptReq := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("reset request body: %w", err)
		}
		attemptReq.Body = body
	}
	if cached != nil {
		cache.AddConditionalHeaders(attemptReq, cached)
		cache.ConditionalRequestsSent.Inc()
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", attemptReq.Method).
		Msg("Executing GitHub request")

	resp, err := c.httpClient.Do(attemptReq)
	if err != nil {
		githubErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		githubRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, err
	}

	if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		respErr := ratelimit.NewResponseError(resp, body)
		class := classifyError(respErr)
		githubErrorsTotal.WithLabelValues(string(class)).Inc()
		githubRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("class", string(class)).
			Msg("GitHub request error")
		return nil, respErr
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", mediaTypeJSON)
	}
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
}

// classifyError categorizes a failed response for observability.
func classifyError(err *ratelimit.ResponseError) ErrorClass {
	switch ratelimit.Classify(err) {
	case ratelimit.ClassPrimary:
		return ErrorClassPrimary
	case ratelimit.ClassSecondary:
		return ErrorClassSecondary
	}
	if err.StatusCode >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// NewRequest builds a request for path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Get fetches path and decodes the JSON body into out. out may be nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Tracker returns the quota tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
