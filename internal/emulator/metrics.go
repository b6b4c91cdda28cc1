package emulator

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firenest_emulator_request_duration_seconds",
		Help:    "Request duration in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "route", "status"})

	// Document metrics
	documentOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firenest_emulator_document_operations_total",
		Help: "Total number of document operations",
	}, []string{"operation", "result"})

	storedDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firenest_emulator_documents",
		Help: "Number of documents held by the emulator",
	})

	// Identity metrics
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firenest_emulator_tokens_issued_total",
		Help: "Total number of access tokens issued",
	}, []string{"kind"})

	authFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firenest_emulator_auth_failures_total",
		Help: "Total number of requests rejected for missing or invalid credentials",
	})

	refreshTokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firenest_emulator_refresh_tokens_revoked_total",
		Help: "Total number of idle refresh tokens revoked by the reaper",
	})
)

// PrometheusMetricsMiddleware tracks request metrics for Prometheus. The
// route pattern is used as label to keep cardinality bounded.
func PrometheusMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// c.Method() aliases the pooled request buffer; labels outlive it
		requestDuration.WithLabelValues(
			utils.CopyString(c.Method()),
			utils.CopyString(c.Route().Path),
			strconv.Itoa(c.Response().StatusCode()),
		).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordDocumentOperation records a document operation and its result,
// "ok" or the canonical error status
func RecordDocumentOperation(operation, result string) {
	documentOperations.WithLabelValues(operation, result).Inc()
}

// RecordTokenIssued records an issued token of kind "service" or "user"
func RecordTokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// RecordAuthFailure records a rejected bearer token
func RecordAuthFailure() {
	authFailures.Inc()
}

// UpdateStoredDocuments sets the document count gauge
func UpdateStoredDocuments(count int) {
	storedDocuments.Set(float64(count))
}

// RecordRefreshTokensRevoked records refresh tokens revoked by the reaper
func RecordRefreshTokensRevoked(count int) {
	refreshTokensRevoked.Add(float64(count))
}
