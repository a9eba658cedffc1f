package providers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig controls the randomized exponential backoff applied to
// transient provider failures.
type RetryConfig struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 6,
		MinDelay:    1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// HTTPError is a non-2xx response from a provider API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // 0 when the server sent no Retry-After
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value (delta-seconds form).
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryable reports whether err is worth retrying: rate limits, timeouts,
// server errors and transport failures. Other 4xx are the caller's bug.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusTooManyRequests:
			return true
		case httpErr.Status == http.StatusRequestTimeout:
			return true
		case httpErr.Status >= 500:
			return true
		default:
			return false
		}
	}
	// Transport-level failures (connection reset, DNS, etc.)
	return true
}

// RetryDo runs fn with randomized exponential backoff until it succeeds, a
// non-retryable error occurs, attempts run out, or ctx is done. A server
// Retry-After hint overrides the computed delay when longer.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) || attempt == cfg.MaxAttempts-1 {
			return zero, err
		}

		// Random exponential: uniform in [0, min*2^attempt], capped at MaxDelay.
		ceiling := cfg.MinDelay << attempt
		if ceiling > cfg.MaxDelay {
			ceiling = cfg.MaxDelay
		}
		delay := time.Duration(rand.Int63n(int64(ceiling) + 1))
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
			delay = httpErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}
