package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 4, MinDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryDo(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &HTTPError{Status: http.StatusServiceUnavailable, Body: "overloaded"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RetryDo: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryDoStopsOnClientError(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		return "", &HTTPError{Status: http.StatusBadRequest, Body: "bad request"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", calls)
	}
}

func TestRetryDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetryConfig(), func() (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusTooManyRequests, Body: "rate limited"}
	})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want final HTTP 429", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetryDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := RetryDo(ctx, RetryConfig{MaxAttempts: 3, MinDelay: time.Hour, MaxDelay: time.Hour}, func() (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusInternalServerError, Body: "boom"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("ParseRetryAfter(7) = %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("ParseRetryAfter(empty) = %v", got)
	}
	if got := ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"); got != 0 {
		t.Errorf("ParseRetryAfter(http-date) = %v, want 0", got)
	}
}
