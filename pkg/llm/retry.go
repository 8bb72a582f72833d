package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts bounds retries of embedding and completion calls.
const DefaultMaxAttempts = 7

// IsQuotaError reports whether err is a 429 carrying the quota-exhausted
// error code. Retrying cannot help, so these are surfaced immediately.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "insufficient_quota")
}

// isTransient reports whether err is worth retrying: network failures,
// rate limiting and server-side errors.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "EOF"):
		return true
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"):
		return true
	case strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return true
	}
	return false
}

// withRetry runs fn with exponential backoff, up to maxAttempts total
// attempts. Quota errors and plain input errors are permanent.
func withRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if IsQuotaError(err) || !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts-1)),
		ctx,
	)
	return backoff.Retry(operation, policy)
}
