package retrylimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestWithRetryMaxSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetryMax(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Code: http.StatusInternalServerError, URL: "http://x"}
		}
		return nil
	}, nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryMaxStopsOnClientError(t *testing.T) {
	calls := 0
	err := WithRetryMax(context.Background(), func() error {
		calls++
		return &StatusError{Code: http.StatusNotFound, URL: "http://x"}
	}, nil, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("client errors must not be retried, got %d calls", calls)
	}
}

func TestWithRetryMaxExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetryMax(context.Background(), func() error {
		calls++
		return errors.New("connection refused")
	}, nil, 2)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestWithRetryMaxHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetryMax(ctx, func() error {
		return &StatusError{Code: http.StatusInternalServerError, URL: "http://x"}
	}, nil, 3)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAdaptiveLimiterBounds(t *testing.T) {
	lim := NewAdaptiveLimiter(5, 1, 10, 1, 0.5)

	for i := 0; i < 20; i++ {
		lim.Failure()
	}
	if got := lim.CurrentLimit(); got != 1 {
		t.Errorf("failures must bottom out at min, got %v", got)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&StatusError{Code: http.StatusTooManyRequests}, true},
		{&StatusError{Code: http.StatusBadGateway}, true},
		{&StatusError{Code: http.StatusNotFound}, false},
		{&StatusError{Code: http.StatusForbidden}, false},
		{errors.New("dial tcp: timeout"), true},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
