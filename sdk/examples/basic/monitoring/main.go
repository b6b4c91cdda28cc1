// Monitoring Example
// This example exposes client metrics for Prometheus and logs every request
// attempt, retry and token refresh through the telemetry observer.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/birbparty/firenest/internal/telemetry"
	"github.com/birbparty/firenest/sdk"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	telemetryConfig := telemetry.NewConfigFromEnv("firenest-monitoring-example")
	telemetryConfig.LogFormat = "text"
	telemetryConfig.LogLevel = "debug"
	if err := telemetry.Init(telemetryConfig); err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer telemetry.Shutdown(context.Background())

	// Serve /metrics while the example runs
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":9102", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server failed: %v", err)
		}
	}()
	defer server.Close()
	fmt.Println("📊 Metrics available at http://localhost:9102/metrics")

	creds, err := sdk.LoadCredentials(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	// The in-memory collector is handy for quick summaries, the telemetry
	// observer feeds prometheus and the structured log.
	collector := sdk.NewMetricsCollector()
	config := sdk.ConfigFromEnv().
		WithLogger(telemetry.L()).
		WithObserver(sdk.NewCompositeObserver(collector, telemetry.NewObserver(nil)))

	session, err := sdk.NewServiceSession(creds, config)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	client, err := sdk.NewClient(session, config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		opCtx, done := telemetry.TimeOperation(ctx, "example.write")
		id := fmt.Sprintf("probe-%d", i%5)
		_, err := client.Write(opCtx, "probes", id, sdk.Fields{
			"iteration": sdk.Int(i),
			"at":        sdk.Timestamp(time.Now()),
		}, sdk.WriteOptions{})
		if err != nil {
			done("error")
			telemetry.WithError(err).WithField("kind", sdk.KindOf(err).String()).Warn("Write failed")
			continue
		}
		done("ok")

		if _, err := client.Get(ctx, "probes", "missing"); err != nil && !sdk.IsNotFound(err) {
			telemetry.WithError(err).Warn("Unexpected read failure")
		}
	}

	for i := 0; i < 5; i++ {
		_ = client.Delete(ctx, fmt.Sprintf("probes/probe-%d", i), false)
	}

	snapshot := collector.GetMetrics()
	fmt.Println("\n📈 Summary")
	fmt.Printf("  requests by method: %v\n", snapshot["requests"])
	fmt.Printf("  errors by method:   %v\n", snapshot["errors"])
	fmt.Printf("  retries:            %v\n", snapshot["retries"])
	fmt.Printf("  token refreshes:    %d\n", collector.TokenRefreshes("service"))

	fmt.Println("\nPress Ctrl+C within 30s to exit, or scrape /metrics meanwhile.")
	time.Sleep(30 * time.Second)
}
