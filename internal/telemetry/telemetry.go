package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Init initializes all telemetry components
func Init(cfg *Config) error {
	if err := InitLogger(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := InitMetrics(cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := InitTracing(cfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	L().WithFields(map[string]interface{}{
		"service":      cfg.ServiceName,
		"version":      cfg.ServiceVersion,
		"environment":  cfg.Environment,
		"exportToFile": cfg.ExportToFile,
	}).Debug("Telemetry initialized")

	return nil
}

// Shutdown flushes and closes all telemetry components
func Shutdown(ctx context.Context) error {
	if err := CloseTracing(ctx); err != nil {
		L().WithError(err).Error("Failed to close tracing")
	}

	if err := CloseMetrics(ctx); err != nil {
		L().WithError(err).Error("Failed to close metrics")
	}

	if err := CloseLogger(); err != nil {
		L().WithError(err).Error("Failed to close logger")
	}

	return nil
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// FiberMetricsMiddleware returns a Fiber middleware recording a span and
// HTTP metrics per request. The route pattern, not the path, is the label.
func FiberMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Fiber strings alias pooled buffers unless copied; metric labels
		// and span attributes outlive the request.
		method := utils.CopyString(c.Method())
		path := utils.CopyString(c.Path())

		ctx, span := StartSpan(c.UserContext(), method+" "+path)
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		route := utils.CopyString(c.Route().Path)
		RecordHTTPRequest(method, route, strconv.Itoa(status), time.Since(start))

		span.SetAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPTargetKey.String(path),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPStatusCodeKey.Int(status),
		)

		switch {
		case err != nil:
			RecordError(ctx, err)
			SetErrorStatus(ctx, err.Error())
		case status >= 400:
			SetErrorStatus(ctx, fmt.Sprintf("HTTP %d", status))
		default:
			SetOKStatus(ctx)
		}

		return err
	}
}

// FiberLoggingMiddleware returns a Fiber middleware for structured logging
func FiberLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		entry := WithContext(c.UserContext()).WithFields(map[string]interface{}{
			"method":     utils.CopyString(c.Method()),
			"path":       utils.CopyString(c.Path()),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).Milliseconds(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		})
		if id, ok := c.Locals("requestid").(string); ok {
			entry = entry.WithField("request_id", id)
		}

		switch {
		case err != nil:
			entry.WithError(err).Error("Request failed")
		case c.Response().StatusCode() >= 500:
			entry.Error("Request completed with server error")
		case c.Response().StatusCode() >= 400:
			entry.Warn("Request completed with error status")
		default:
			entry.Info("Request completed")
		}

		return err
	}
}

// TimeOperation starts a span for operation and returns a function ending
// it. The returned function records the duration under status ("ok" or
// "error").
func TimeOperation(ctx context.Context, operation string) (context.Context, func(status string)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, operation)

	return ctx, func(status string) {
		duration := time.Since(start)
		RecordOperation(operation, status, duration)

		if status == "error" {
			SetErrorStatus(ctx, "Operation failed")
		} else {
			SetOKStatus(ctx)
		}
		span.End()

		WithContext(ctx).WithFields(map[string]interface{}{
			"operation": operation,
			"status":    status,
			"duration":  duration.Milliseconds(),
		}).Debug("Operation completed")
	}
}
