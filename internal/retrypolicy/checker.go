package retrypolicy

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// DefaultErrorChecker treats every non-nil error as retryable, except
// one that is neither a transient network error nor a timeout and whose
// Temporary method reports false.
type DefaultErrorChecker struct{}

// IsRetryable implements RetryableErrorChecker.
func (c *DefaultErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if isTransientNetworkError(err) {
		return true
	}
	if isTimeoutError(err) {
		return true
	}
	type temporary interface {
		Temporary() bool
	}
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}
	return true
}

func isTransientNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ENETUNREACH),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{"timeout", "deadline exceeded", "i/o timeout", "timed out"} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	type timeout interface {
		Timeout() bool
	}
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return false
}

// NeverRetry always reports an error as non-retryable. Used for the
// conflict-resolution and version-check outcomes of the update closure,
// which must never be blindly retried by a generic backoff wrapper.
type NeverRetry struct{}

// IsRetryable implements RetryableErrorChecker.
func (NeverRetry) IsRetryable(error) bool { return false }
