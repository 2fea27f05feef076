package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Product selects the Jira deployment flavor.
type Product string

const (
	ProductCloud      Product = "cloud"
	ProductDataCenter Product = "datacenter"
)

// ParseProduct maps a configured product name to a Product. Unrecognized
// names select Cloud.
func ParseProduct(s string) Product {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "datacenter", "data-center", "data_center", "dc", "server":
		return ProductDataCenter
	default:
		return ProductCloud
	}
}

// Doer performs one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Strategy fetches every issue matching query from the search endpoint
// under apiURL. A nil maxResults uses the product default page size.
type Strategy interface {
	PagedIssuesRequest(ctx context.Context, apiURL, query string, maxResults *int) ([]Ticket, error)
}

// Option configures a strategy.
type Option func(*pager)

// WithLimiter paces page requests. Waiting on the limiter honors ctx.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *pager) { p.limiter = l }
}

// WithHeaders adds headers, typically Authorization, to every page request.
func WithHeaders(h http.Header) Option {
	return func(p *pager) { p.headers = h.Clone() }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *pager) { p.logger = logger }
}

// NewStrategy returns the strategy for product.
func NewStrategy(product Product, doer Doer, opts ...Option) Strategy {
	p := newPager(product, doer, opts...)
	switch product {
	case ProductDataCenter:
		return &DataCenterStrategy{pager: p}
	case ProductCloud:
		return &CloudStrategy{pager: p}
	default:
		return &CloudStrategy{pager: newPager(ProductCloud, doer, opts...)}
	}
}

// pager issues single search page requests.
type pager struct {
	product Product
	doer    Doer
	limiter *rate.Limiter
	headers http.Header
	logger  zerolog.Logger
}

func newPager(product Product, doer Doer, opts ...Option) *pager {
	if doer == nil {
		doer = http.DefaultClient
	}
	p := &pager{
		product: product,
		doer:    doer,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// postPage sends body as JSON to url and decodes a 2xx response into out.
func (p *pager) postPage(ctx context.Context, url string, body, out any) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}
	for name, values := range p.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.doer.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &RequestError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
			Body:       respBody,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

// fail records an aborted search.
func (p *pager) fail(err error, page int) error {
	pageFailures.WithLabelValues(string(p.product)).Inc()
	p.logger.Error().
		Err(err).
		Int("page", page).
		Str("product", string(p.product)).
		Msg("Jira search aborted")
	return err
}

func (p *pager) pageDone(page, issues int) {
	pagesFetched.WithLabelValues(string(p.product)).Inc()
	issuesFetched.WithLabelValues(string(p.product)).Add(float64(issues))
	p.logger.Debug().
		Int("page", page).
		Int("issues", issues).
		Str("product", string(p.product)).
		Msg("Fetched search page")
}

// searchURL appends endpoint to apiURL, which is expected to end in "/".
func searchURL(apiURL, endpoint string) string {
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return apiURL + endpoint
}
