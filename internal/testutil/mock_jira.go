package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockJira serves scripted search pages and records request bodies.
type MockJira struct {
	server *httptest.Server

	mu       sync.Mutex
	pages    []MockResponse
	next     int
	requests []RecordedRequest
}

// RecordedRequest is one request received by MockJira.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

// NewMockJira starts a fake Jira server. Each request to any path
// consumes the next page; the last page repeats.
func NewMockJira(pages ...MockResponse) *MockJira {
	m := &MockJira{pages: pages}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			json.Unmarshal(raw, &body)
		}

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		var resp MockResponse
		if len(m.pages) == 0 {
			resp = MockResponse{StatusCode: http.StatusOK, Body: `{"issues":[]}`}
		} else {
			resp = m.pages[m.next]
			if m.next < len(m.pages)-1 {
				m.next++
			}
		}
		m.mu.Unlock()

		if resp.Headers == nil {
			resp.Headers = map[string]string{"Content-Type": "application/json"}
		}
		writeResponse(w, resp)
	}))

	return m
}

// URL returns the API base URL with a trailing slash.
func (m *MockJira) URL() string {
	return m.server.URL + "/rest/api/2/"
}

// Close shuts down the server.
func (m *MockJira) Close() {
	m.server.Close()
}

// Requests returns the requests received so far.
func (m *MockJira) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// JSONPage creates a 200 response carrying v as JSON.
func JSONPage(v any) MockResponse {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(data),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
