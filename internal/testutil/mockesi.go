// Package testutil provides a configurable mock ESI server for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines one canned response for a mock ESI path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockESI is a configurable mock ESI server. It tracks request counts
// per path and whether requests carried a conditional validator.
type MockESI struct {
	server *httptest.Server

	mu               sync.Mutex
	handlers         map[string]http.HandlerFunc
	requestCount     map[string]int
	conditionalCount int
	lastHeader       http.Header
}

// NewMockESI starts a new mock ESI server. Paths without a configured
// handler answer 200 with an empty JSON object and ESI-style headers.
func NewMockESI() *MockESI {
	m := &MockESI{
		handlers:     make(map[string]http.HandlerFunc),
		requestCount: make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requestCount[r.URL.Path]++
		m.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" {
			m.conditionalCount++
		}
		handler := m.handlers[r.URL.Path]
		m.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-ESI-Error-Limit-Remain", "100")
		w.Header().Set("X-ESI-Error-Limit-Reset", "60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))

	return m
}

// URL returns the mock server base URL.
func (m *MockESI) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockESI) Close() {
	m.server.Close()
}

// SetHandler installs a custom handler for a path.
func (m *MockESI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse installs a canned response for a path.
func (m *MockESI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for name, value := range resp.Headers {
			w.Header().Set(name, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns how many requests a path has received.
func (m *MockESI) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount[path]
}

// ConditionalCount returns how many requests carried If-None-Match.
func (m *MockESI) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// LastHeader returns the headers of the most recent request.
func (m *MockESI) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// CachedJSON builds a 200 response carrying an ETag and an Expires
// header the given lifetime in the future.
func CachedJSON(body, etag string, lifetime time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"ETag":         etag,
			"Expires":      time.Now().Add(lifetime).UTC().Format(http.TimeFormat),
		},
	}
}

// PagedJSON builds a 200 response for page one of a paginated
// collection.
func PagedJSON(body, etag string, pages int, lifetime time.Duration) MockResponse {
	resp := CachedJSON(body, etag, lifetime)
	resp.Headers["X-Pages"] = strconv.Itoa(pages)
	return resp
}

// NotModified builds a 304 response.
func NotModified() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers: map[string]string{
			"Expires": time.Now().Add(5 * time.Minute).UTC().Format(http.TimeFormat),
		},
	}
}

// ServerError builds a 500 response.
func ServerError() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
