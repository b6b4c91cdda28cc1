package sdk

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffConfig controls how transient failures are retried.
//
// The delay before retry n is:
//
//	base = InitialInterval * (Multiplier ^ (n-1))
//	delay = min(base, MaxInterval) ± JitterPercent
//
// Retries stop once MaxElapsedTime has passed since the first attempt.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithBackoff(sdk.BackoffConfig{
//	        InitialInterval: 100 * time.Millisecond,
//	        MaxInterval:     5 * time.Second,
//	        Multiplier:      2.0,
//	        JitterPercent:   20,
//	        MaxElapsedTime:  30 * time.Second,
//	    })
type BackoffConfig struct {
	// InitialInterval is the delay before the first retry.
	// Default: 50ms
	InitialInterval time.Duration

	// Multiplier is the exponential growth factor.
	// Default: 1.5
	Multiplier float64

	// MaxInterval caps the delay between two attempts.
	// Default: 10s
	MaxInterval time.Duration

	// JitterPercent randomizes each delay by up to ± this percentage.
	// Default: 10
	JitterPercent uint64

	// MaxElapsedTime is the retry budget of one operation.
	// Default: 60s
	MaxElapsedTime time.Duration
}

// DefaultBackoff returns the default backoff configuration:
//   - InitialInterval: 50ms
//   - Multiplier: 1.5
//   - MaxInterval: 10s
//   - JitterPercent: 10
//   - MaxElapsedTime: 60s
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 50 * time.Millisecond,
		Multiplier:      1.5,
		MaxInterval:     10 * time.Second,
		JitterPercent:   10,
		MaxElapsedTime:  60 * time.Second,
	}
}

// withDefaults fills zero values from DefaultBackoff
func (b BackoffConfig) withDefaults() BackoffConfig {
	def := DefaultBackoff()
	if b.InitialInterval <= 0 {
		b.InitialInterval = def.InitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = def.MaxInterval
	}
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = def.MaxElapsedTime
	}
	return b
}

// exponential returns an unbounded backoff growing by Multiplier
func (b BackoffConfig) exponential() retry.Backoff {
	next := float64(b.InitialInterval)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		cur := next
		next *= b.Multiplier
		return time.Duration(cur), false
	})
}

// newBackoff builds the backoff for one operation. The elapsed-time budget
// starts counting when this is called.
func (b BackoffConfig) newBackoff() retry.Backoff {
	backoff := retry.WithCappedDuration(b.MaxInterval, b.exponential())
	if b.JitterPercent > 0 {
		backoff = retry.WithJitterPercent(b.JitterPercent, backoff)
	}
	return retry.WithMaxDuration(b.MaxElapsedTime, backoff)
}

// transientError marks a failure that Execute may retry
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable for Execute. Any error not marked
// transient stops Execute immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Execute runs fn until it succeeds, returns a permanent error, or the
// retry budget in config expires. Attempts are strictly sequential.
//
// fn classifies its own failures: wrap an error with Transient to have it
// retried. When the budget expires while failures are still transient the
// last error is returned inside a *BudgetExhaustedError.
//
// Example:
//
//	doc, err := sdk.Execute(ctx, sdk.DefaultBackoff(), nil, "fetch",
//	    func(ctx context.Context) (*Document, error) {
//	        doc, err := fetch(ctx)
//	        if sdk.IsRetryable(err) {
//	            return nil, sdk.Transient(err)
//	        }
//	        return doc, err
//	    })
func Execute[T any](ctx context.Context, config BackoffConfig, observer Observer, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if observer == nil {
		observer = &NoopObserver{}
	}
	config = config.withDefaults()

	var (
		attempts  int
		lastErr   error
		exhausted bool
	)
	start := time.Now()

	inner := config.newBackoff()
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := inner.Next()
		if stop {
			exhausted = true
			return 0, true
		}
		observer.OnRetryAttempt(op, attempts, delay, lastErr)
		return delay, false
	})

	result, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		attempts++
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		var te *transientError
		if errors.As(err, &te) {
			lastErr = te.err
			return value, retry.RetryableError(te.err)
		}
		return value, err
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if exhausted {
		return zero, &BudgetExhaustedError{
			Attempts: attempts,
			Elapsed:  time.Since(start),
			Err:      lastErr,
		}
	}
	return zero, err
}
