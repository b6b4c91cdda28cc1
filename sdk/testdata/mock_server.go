package testdata

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockServer provides a scripted HTTP server for exercising the client
// against exact status sequences.
type MockServer struct {
	*httptest.Server
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	requestCount atomic.Int32
	requests     []RecordedRequest
}

// HandlerFunc is a custom handler function type
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (int, interface{})

// RecordedRequest stores information about a received request
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
	Time    time.Time
}

// NewMockServer creates a new mock server with a token endpoint at
// POST /oauth2/token answering every exchange with a one hour token.
func NewMockServer() *MockServer {
	ms := &MockServer{
		handlers: make(map[string]HandlerFunc),
		requests: make([]RecordedRequest, 0),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRequest)

	ms.Server = httptest.NewServer(mux)
	ms.setupDefaultHandlers()

	return ms
}

// setupDefaultHandlers sets up common handlers
func (ms *MockServer) setupDefaultHandlers() {
	var issued atomic.Int32
	ms.RegisterHandler("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		n := issued.Add(1)
		return http.StatusOK, map[string]interface{}{
			"access_token": "mock-token-" + strconv.Itoa(int(n)),
			"expires_in":   3600,
			"token_type":   "Bearer",
		}
	})
}

// DocumentsPath returns the URL path of the documents root of project
func DocumentsPath(project string) string {
	return "/v1/projects/" + project + "/databases/(default)/documents"
}

// RegisterHandler registers a custom handler for a "METHOD /path" pattern.
// A pattern ending in "/" matches every path with that prefix.
func (ms *MockServer) RegisterHandler(pattern string, handler HandlerFunc) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.handlers[pattern] = handler
}

// handleRequest routes requests to appropriate handlers
func (ms *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
		Time:    time.Now(),
	})
	ms.mu.Unlock()

	ms.requestCount.Add(1)

	pattern := r.Method + " " + r.URL.Path
	ms.mu.RLock()
	handler, exact := ms.handlers[pattern]
	if !exact {
		for p, h := range ms.handlers {
			if strings.HasSuffix(p, "/") && strings.HasPrefix(pattern, p) {
				handler = h
				break
			}
		}
	}
	ms.mu.RUnlock()

	if handler == nil {
		writeJSON(w, http.StatusNotFound, ErrorBody(http.StatusNotFound, "NOT_FOUND", "no handler for "+pattern))
		return
	}

	status, response := handler(w, r)
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if response != nil {
		_ = json.NewEncoder(w).Encode(response)
	}
}

// ErrorBody builds the service's error envelope
func ErrorBody(code int, status, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
			"status":  status,
		},
	}
}

// GetRequestCount returns the total number of requests received
func (ms *MockServer) GetRequestCount() int {
	return int(ms.requestCount.Load())
}

// GetRequests returns all recorded requests
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]RecordedRequest, len(ms.requests))
	copy(result, ms.requests)
	return result
}

// RequestsTo returns the recorded requests whose path starts with prefix
func (ms *MockServer) RequestsTo(prefix string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range ms.GetRequests() {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears all recorded requests
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.requestCount.Store(0)
	ms.requests = ms.requests[:0]
}

// WithErrorResponse sets up a handler that always returns an error envelope
func (ms *MockServer) WithErrorResponse(pattern string, statusCode int, status, message string) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return statusCode, ErrorBody(statusCode, status, message)
	})
}

// WithDelayedResponse sets up a handler that delays before responding
func (ms *MockServer) WithDelayedResponse(pattern string, delay time.Duration, handler HandlerFunc) {
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		time.Sleep(delay)
		return handler(w, r)
	})
}

// WithRetryResponse sets up a handler that fails failCount times with
// failStatus before delegating to success.
func (ms *MockServer) WithRetryResponse(pattern string, failCount int, failStatus int, success HandlerFunc) {
	attempts := atomic.Int32{}
	ms.RegisterHandler(pattern, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		current := int(attempts.Add(1))
		if current <= failCount {
			return failStatus, ErrorBody(failStatus, "UNAVAILABLE", "temporary failure")
		}
		return success(w, r)
	})
}

// Close shuts down the mock server
func (ms *MockServer) Close() {
	if ms.Server != nil {
		ms.Server.Close()
	}
}
