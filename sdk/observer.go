package sdk

import (
	"sync"
	"time"
)

// Observer provides hooks for monitoring SDK operations.
// Implement this interface to track performance metrics, debug issues,
// or integrate with your observability stack.
//
// Observer methods are called synchronously from the calling goroutine and
// should be fast and non-blocking.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *log.Logger
//	}
//
//	func (o *LogObserver) OnRequestStart(method, path string) {
//	    o.logger.Printf("[START] %s %s", method, path)
//	}
//
//	func (o *LogObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
//	    o.logger.Printf("[END] %s %s %d (took %v) %v", method, path, status, duration, err)
//	}
//
//	config := sdk.DefaultConfig().
//	    WithObserver(&LogObserver{logger: log.Default()})
type Observer interface {
	// OnRequestStart is called before every HTTP attempt.
	//
	// Parameters:
	//   - method: HTTP method (GET, POST, PATCH, DELETE)
	//   - path: Document path or token endpoint the attempt targets
	OnRequestStart(method, path string)

	// OnRequestEnd is called when an HTTP attempt completes.
	// status is 0 when no response was received.
	OnRequestEnd(method, path string, status int, duration time.Duration, err error)

	// OnRetryAttempt is called before sleeping ahead of a retry.
	//
	// Parameters:
	//   - op: Operation name (e.g., "read", "list")
	//   - attempt: Number of attempts made so far (1, 2, 3...)
	//   - delay: Delay before the next attempt
	//   - err: The transient error that triggered the retry
	OnRetryAttempt(op string, attempt int, delay time.Duration, err error)

	// OnTokenRefresh is called after every token refresh.
	// kind is "service" or "user".
	OnTokenRefresh(kind string, duration time.Duration, err error)
}

// NoopObserver is a no-op implementation of Observer that does nothing.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {}

// OnTokenRefresh does nothing
func (n *NoopObserver) OnTokenRefresh(kind string, duration time.Duration, err error) {}

// MetricsCollector is a simple in-memory metrics implementation.
// It collects request counts, latencies, error counts, retry delays and
// token refreshes.
//
// This implementation stores all data in memory and is primarily intended
// for debugging and testing. The internal/telemetry package exports the
// same events to Prometheus.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	config := sdk.DefaultConfig().WithObserver(metrics)
//
//	client, _ := sdk.NewClient(session, config)
//	// Use client...
//
//	snapshot := metrics.GetMetrics()
//	fmt.Printf("Total retries: %v\n", snapshot["retries"])
type MetricsCollector struct {
	mu              sync.RWMutex
	requestCount    map[string]int64
	latencies       map[string][]time.Duration
	errorCount      map[string]int64
	retryCount      map[string]int64
	retryDelays     map[string][]time.Duration
	tokenRefreshes  map[string]int64
	refreshFailures map[string]int64
}

// NewMetricsCollector creates a new metrics collector for tracking SDK operations.
// The collector is thread-safe and can be used concurrently.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount:    make(map[string]int64),
		latencies:       make(map[string][]time.Duration),
		errorCount:      make(map[string]int64),
		retryCount:      make(map[string]int64),
		retryDelays:     make(map[string][]time.Duration),
		tokenRefreshes:  make(map[string]int64),
		refreshFailures: make(map[string]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method]++
}

// OnRequestEnd records request duration and errors
func (m *MetricsCollector) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[method] = append(m.latencies[method], duration)
	if err != nil {
		m.errorCount[method]++
	}
}

// OnRetryAttempt increments retry count and records the delay
func (m *MetricsCollector) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount[op]++
	m.retryDelays[op] = append(m.retryDelays[op], delay)
}

// OnTokenRefresh counts refreshes per session kind
func (m *MetricsCollector) OnTokenRefresh(kind string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenRefreshes[kind]++
	if err != nil {
		m.refreshFailures[kind]++
	}
}

// RetryDelays returns the recorded delays for op in order
func (m *MetricsCollector) RetryDelays(op string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.retryDelays[op]...)
}

// TokenRefreshes returns how many refreshes were made for kind
func (m *MetricsCollector) TokenRefreshes(kind string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokenRefreshes[kind]
}

// GetMetrics returns a snapshot of current metrics.
// The returned map is a copy and safe to read without locks.
//
// The metrics include:
//   - "requests": Map of HTTP method to attempt count
//   - "latencies": Map of HTTP method to latency measurements
//   - "errors": Map of HTTP method to failed attempt count
//   - "retries": Map of operation to retry count
//   - "token_refreshes": Map of session kind to refresh count
//   - "token_refresh_failures": Map of session kind to failed refresh count
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latenciesCopy := make(map[string][]time.Duration)
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}

	return map[string]interface{}{
		"requests":               copyCounts(m.requestCount),
		"latencies":              latenciesCopy,
		"errors":                 copyCounts(m.errorCount),
		"retries":                copyCounts(m.retryCount),
		"token_refreshes":        copyCounts(m.tokenRefreshes),
		"token_refresh_failures": copyCounts(m.refreshFailures),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CompositeObserver allows multiple observers to be combined into one.
// All observer methods are called on each child observer in order.
// If an observer panics, it's caught to prevent affecting other observers.
//
// Example:
//
//	composite := sdk.NewCompositeObserver(
//	    sdk.NewMetricsCollector(),
//	    telemetry.NewObserver(nil),
//	)
//
//	config := sdk.DefaultConfig().WithObserver(composite)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				// Observer panicked, ignore
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart notifies all observers of request start
func (c *CompositeObserver) OnRequestStart(method, path string) {
	c.each(func(o Observer) { o.OnRequestStart(method, path) })
}

// OnRequestEnd notifies all observers of request completion
func (c *CompositeObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(method, path, status, duration, err) })
}

// OnRetryAttempt notifies all observers
func (c *CompositeObserver) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	c.each(func(o Observer) { o.OnRetryAttempt(op, attempt, delay, err) })
}

// OnTokenRefresh notifies all observers
func (c *CompositeObserver) OnTokenRefresh(kind string, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnTokenRefresh(kind, duration, err) })
}
