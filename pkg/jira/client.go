// Package jira searches Jira Cloud and Jira Data Center issues.
package jira

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/portal-api-client/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds the Jira connection settings.
type Config struct {
	// BaseURL is the REST API root, e.g. "https://example.atlassian.net/rest/api/3/".
	BaseURL string

	// Product selects cursor or offset paging.
	Product pagination.Product

	// Token is a personal access token (Data Center) or API token (Cloud).
	Token string

	// Email switches to Basic auth with Email:Token, as Jira Cloud API
	// tokens require. Empty means Bearer auth.
	Email string

	// RateLimit caps page requests per second. Zero disables pacing.
	RateLimit float64

	// Timeout per HTTP request. Zero uses 30s.
	Timeout time.Duration
}

// Client runs paged issue searches.
type Client struct {
	baseURL  string
	product  pagination.Product
	strategy pagination.Strategy
	logger   zerolog.Logger
}

// New creates a Client. A nil doer uses an *http.Client with cfg.Timeout.
func New(cfg Config, doer pagination.Doer, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("jira base URL is required")
	}
	if cfg.Product == "" {
		cfg.Product = pagination.ProductCloud
	}
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}

	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []pagination.Option{
		pagination.WithHeaders(authHeaders(cfg)),
		pagination.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, pagination.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)))
	}

	return &Client{
		baseURL:  baseURL,
		product:  cfg.Product,
		strategy: pagination.NewStrategy(cfg.Product, doer, opts...),
		logger:   logger,
	}, nil
}

// Product returns the configured product.
func (c *Client) Product() pagination.Product {
	return c.product
}

// SearchIssues returns every issue matching jql. maxResults <= 0 uses the
// product's default page size.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]pagination.Ticket, error) {
	var size *int
	if maxResults > 0 {
		size = &maxResults
	}

	start := time.Now()
	tickets, err := c.strategy.PagedIssuesRequest(ctx, c.baseURL, jql, size)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	c.logger.Info().
		Str("product", string(c.product)).
		Int("issues", len(tickets)).
		Dur("duration", time.Since(start)).
		Msg("Jira search complete")

	return tickets, nil
}

func authHeaders(cfg Config) http.Header {
	h := http.Header{}
	switch {
	case cfg.Token == "":
	case cfg.Email != "":
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.Token))
		h.Set("Authorization", "Basic "+creds)
	default:
		h.Set("Authorization", "Bearer "+cfg.Token)
	}
	return h
}
