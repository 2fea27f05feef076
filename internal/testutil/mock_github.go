// Package testutil provides fake GitHub and Jira servers for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines one canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable fake GitHub REST API.
type MockGitHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
}

// NewMockGitHub starts a fake GitHub server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the server base URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears the request counters.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for path.
func (m *MockGitHub) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse serves resp for every request to path.
func (m *MockGitHub) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence serves responses in order; the last one repeats.
func (m *MockGitHub) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests received.
func (m *MockGitHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests received.
func (m *MockGitHub) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockGitHub) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockGitHub) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setQuotaHeaders(w.Header(), 4999)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.Header.Get("If-None-Match") == `"default-etag"` {
		w.Header().Set("Cache-Control", "private, max-age=60")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", `"default-etag"`)
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func setQuotaHeaders(h http.Header, remaining int) {
	h.Set("X-RateLimit-Limit", "5000")
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	h.Set("X-RateLimit-Resource", "core")
}

// NewHealthyResponse creates a 200 OK with quota headers and an ETag.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "4999",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"X-RateLimit-Resource":  "core",
			"ETag":                  `"test-etag-123"`,
			"Cache-Control":         "private, max-age=60, s-maxage=60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewNotModifiedResponse creates a 304 Not Modified.
func NewNotModifiedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "4999",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"Cache-Control":         "private, max-age=60",
		},
	}
}

// NewSecondaryRateLimitResponse creates a 403 secondary rate limit answer.
// retryAfter is sent as the retry-after header when non-empty.
func NewSecondaryRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{
		"X-RateLimit-Limit":     "5000",
		"X-RateLimit-Remaining": "4900",
		"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
		"Content-Type":          "application/json; charset=utf-8",
	}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"You have exceeded a secondary rate limit. Please wait a few minutes before you try again.","documentation_url":"https://docs.github.com/rest/overview/rate-limits-for-the-rest-api#about-secondary-rate-limits"}`,
		Headers:    headers,
	}
}

// NewPrimaryRateLimitResponse creates a 403 with an exhausted quota that
// resets at reset.
func NewPrimaryRateLimitResponse(reset time.Time) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"API rate limit exceeded for user ID 1."}`,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
			"X-RateLimit-Resource":  "core",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewConditionalHandler answers 304 when If-None-Match equals etag and
// otherwise returns data with that ETag.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setQuotaHeaders(w.Header(), 4999)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "private, max-age=0")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, data)
	}
}
