package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	metricsOnce sync.Once

	// Client metrics, fed by Observer
	clientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firenest_client_requests_total",
		Help: "Total number of HTTP attempts made by the document client",
	}, []string{"method", "status"})

	clientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firenest_client_request_duration_seconds",
		Help:    "Duration of HTTP attempts made by the document client",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	clientRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firenest_client_requests_in_flight",
		Help: "Number of HTTP attempts currently in flight",
	})

	clientRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firenest_client_retries_total",
		Help: "Total number of retried operations",
	}, []string{"operation"})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firenest_token_refreshes_total",
		Help: "Total number of access token refreshes",
	}, []string{"kind", "result"})

	tokenRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firenest_token_refresh_duration_seconds",
		Help:    "Duration of access token refreshes",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// Command metrics
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firenest_operation_duration_seconds",
		Help:    "Duration of timed operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	// Server metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firenest_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firenest_http_request_duration_seconds",
		Help:    "Duration of served HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firenest_service_up",
		Help: "Set to 1 once telemetry is initialized",
	})

	// File exporter for local-otel
	fileExporter *FileMetricsExporter
)

// FileMetricsExporter periodically writes the gathered Prometheus metric
// families to a JSON file for local-otel integration
type FileMetricsExporter struct {
	mu       sync.Mutex
	filePath string
	gatherer prometheus.Gatherer
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// InitMetrics initializes the metric exporters. Prometheus collectors are
// registered at package load; this adds OTLP export and the file exporter.
func InitMetrics(cfg *Config) error {
	var err error
	metricsOnce.Do(func() {
		if cfg.EnableMetrics && !cfg.ExportToFile {
			err = initOTELMetrics(cfg)
		}

		if cfg.ExportToFile && cfg.MetricsFilePath != "" {
			fileExporter = NewFileMetricsExporter(cfg.MetricsFilePath, prometheus.DefaultGatherer)
			fileExporter.Start(time.Duration(cfg.MetricsInterval) * time.Second)
		}

		serviceUp.Set(1)
	})
	return err
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(cfg.MetricsInterval)*time.Second),
			),
		),
	)

	otel.SetMeterProvider(provider)
	return nil
}

// NewFileMetricsExporter creates an exporter writing what gatherer
// collects to filePath
func NewFileMetricsExporter(filePath string, gatherer prometheus.Gatherer) *FileMetricsExporter {
	return &FileMetricsExporter{
		filePath: filePath,
		gatherer: gatherer,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start exports every interval until Close
func (f *FileMetricsExporter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	f.started = true
	go f.run(interval)
}

func (f *FileMetricsExporter) run(interval time.Duration) {
	defer close(f.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.Export(); err != nil {
				L().WithError(err).Error("Failed to export metrics to file")
			}
		case <-f.stop:
			return
		}
	}
}

// Export writes the current metric families, replacing the file
func (f *FileMetricsExporter) Export() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	families, err := f.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.filePath), 0755); err != nil {
		return err
	}

	file, err := os.Create(f.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"timestamp": time.Now().Unix(),
		"metrics":   families,
	})
}

// Close stops the periodic export after a final one
func (f *FileMetricsExporter) Close() error {
	close(f.stop)
	if f.started {
		<-f.done
	}
	return f.Export()
}

// CloseMetrics flushes and stops the metric exporters
func CloseMetrics(ctx context.Context) error {
	if fileExporter != nil {
		if err := fileExporter.Close(); err != nil {
			return err
		}
	}
	if mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}
	return nil
}

// Metric recording functions

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordOperation records the duration of a timed operation
func RecordOperation(operation, status string, duration time.Duration) {
	operationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}
