// Package retrypolicy provides a retry-with-backoff helper (Do) and
// error classifiers for calls to a row's backing services. No other
// package in this module imports it.
package retrypolicy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryableErrorChecker determines if an error should trigger a retry
// attempt. Implementations should return true for transient errors
// (network timeouts, temporary unavailability) and false for permanent
// ones (bad input, auth failures, a stale version that will never apply).
type RetryableErrorChecker interface {
	IsRetryable(err error) bool
}

// MetricsSink receives retry telemetry; nil is fine and simply drops the
// events.
type MetricsSink interface {
	RecordRetryAttempt(operation, outcome, errorClass string, durationSeconds float64)
	RecordRetryBackoff(operation string, delaySeconds float64)
}

// Policy configures exponential backoff with jitter.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        bool
	ErrorChecker  RetryableErrorChecker
	Logger        *slog.Logger
	Metrics       MetricsSink
	OperationName string
}

// DefaultPolicy returns a sensible default: 3 retries, 100ms base delay,
// 5s cap, 2x multiplier, jitter on.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do executes operation under the policy, retrying retryable failures
// with backoff until MaxRetries retries are spent or ctx is done.
func Do(ctx context.Context, policy *Policy, operation func() error) error {
	if policy == nil {
		policy = DefaultPolicy()
	}
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opName := policy.OperationName
	if opName == "" {
		opName = "unknown"
	}

	var lastErr error
	delay := policy.BaseDelay

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attemptStart := time.Now()
		err := operation()
		attemptDuration := time.Since(attemptStart).Seconds()

		if err == nil {
			if policy.Metrics != nil {
				policy.Metrics.RecordRetryAttempt(opName, "success", "none", attemptDuration)
			}
			return nil
		}

		lastErr = err
		if policy.Metrics != nil {
			policy.Metrics.RecordRetryAttempt(opName, "failure", classify(err), attemptDuration)
		}

		if !shouldRetry(err, policy.ErrorChecker) {
			logger.Debug("retry: non-retryable error, stopping", "error", err, "attempt", attempt+1)
			return lastErr
		}
		if attempt >= policy.MaxRetries {
			logger.Error("retry: exhausted all attempts", "max_retries", policy.MaxRetries, "error", lastErr)
			break
		}

		logger.Warn("retry: operation failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if policy.Metrics != nil {
			policy.Metrics.RecordRetryBackoff(opName, delay.Seconds())
		}

		if !waitWithContext(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay, policy)
	}

	return fmt.Errorf("operation %q failed after %d attempts: %w", opName, policy.MaxRetries+1, lastErr)
}

func shouldRetry(err error, checker RetryableErrorChecker) bool {
	if err == nil {
		return false
	}
	if checker != nil {
		return checker.IsRetryable(err)
	}
	return true
}

func waitWithContext(ctx context.Context, delay time.Duration) bool {
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextDelay(current time.Duration, policy *Policy) time.Duration {
	next := time.Duration(float64(current) * policy.Multiplier)
	if next > policy.MaxDelay {
		next = policy.MaxDelay
	}
	if policy.Jitter {
		next += time.Duration(float64(next) * 0.1 * rand.Float64())
	}
	return next
}

func classify(err error) string {
	if err == nil {
		return "none"
	}
	return "error"
}
