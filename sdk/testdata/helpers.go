package testdata

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestSuite provides common test setup and utilities
type TestSuite struct {
	T          *testing.T
	Server     *MockServer
	BaseURL    string
	Context    context.Context
	CancelFunc context.CancelFunc
}

// NewTestSuite creates a new test suite with mock server. Cleanup is
// registered with t.
func NewTestSuite(t *testing.T) *TestSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server := NewMockServer()

	ts := &TestSuite{
		T:          t,
		Server:     server,
		BaseURL:    server.URL,
		Context:    ctx,
		CancelFunc: cancel,
	}
	t.Cleanup(ts.Cleanup)
	return ts
}

// Cleanup cleans up test resources
func (ts *TestSuite) Cleanup() {
	if ts.CancelFunc != nil {
		ts.CancelFunc()
	}
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// RunConcurrently runs fn in numGoroutines goroutines, released at the
// same time, and waits for all of them.
func RunConcurrently(t *testing.T, numGoroutines int, fn func(id int)) {
	t.Helper()

	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			fn(id)
		}(i)
	}

	close(start)
	wg.Wait()
}

// MeasureTime measures the execution time of a function
func MeasureTime(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}
