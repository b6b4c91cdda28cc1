// Connection Resilience Example
// This example shows how the client retries transient failures within its
// retry budget, and how to use the same backoff executor for your own
// operations.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/birbparty/firenest/sdk"
)

func main() {
	creds, err := sdk.LoadCredentials(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	metrics := sdk.NewMetricsCollector()

	// A tight budget: give up on transient failures after 5 seconds.
	// Permanent failures such as 404 or 403 are never retried.
	config := sdk.ConfigFromEnv().
		WithTimeout(2 * time.Second).
		WithObserver(metrics).
		WithBackoff(sdk.BackoffConfig{
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      2,
			MaxInterval:     time.Second,
			JitterPercent:   20,
			MaxElapsedTime:  5 * time.Second,
		})

	session, err := sdk.NewServiceSession(creds, config)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	client, err := sdk.NewClient(session, config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	fmt.Println("🔁 Reading a document; stop the server meanwhile to watch retries")
	_, err = client.Get(ctx, "probes", "resilience")
	report(err)

	fmt.Printf("   retry delays so far: %v\n", metrics.RetryDelays("read"))

	// The executor works for any operation. Only errors marked Transient
	// are retried.
	fmt.Println("\n🔁 Custom operation through the backoff executor")
	attempts := 0
	value, err := sdk.Execute(ctx, sdk.DefaultBackoff(), metrics, "custom",
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", sdk.Transient(errors.New("warming up"))
			}
			return "ready", nil
		})
	report(err)
	fmt.Printf("   got %q after %d attempts, delays %v\n", value, attempts, metrics.RetryDelays("custom"))

	// A canceled context stops retrying immediately
	fmt.Println("\n⏹  Canceled context")
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = client.Get(canceled, "probes", "resilience")
	report(err)
}

func report(err error) {
	if err == nil {
		fmt.Println("   ✅ success")
		return
	}

	var budget *sdk.BudgetExhaustedError
	switch {
	case errors.As(err, &budget):
		fmt.Printf("   ⌛ gave up after %d attempts in %v: %v\n", budget.Attempts, budget.Elapsed.Round(time.Millisecond), budget.Err)
	case sdk.IsNotFound(err):
		fmt.Println("   ✅ reachable, document does not exist")
	case sdk.KindOf(err) == sdk.KindAuthentication:
		fmt.Printf("   🔑 authentication failed: %v\n", err)
	default:
		fmt.Printf("   ❌ %s error: %v\n", sdk.KindOf(err), err)
	}
}
