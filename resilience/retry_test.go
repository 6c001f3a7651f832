package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/parley-ai/parley/llm"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Jitter:      false,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
	}, nil, func() error {
		calls++
		if calls < 3 {
			return llm.NewProviderError("upstream 500", 500, nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected exactly 3 invocations, got %d", calls)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	wantErr := llm.NewNetworkError("connection reset", nil)
	err := Retry(context.Background(), fastRetryConfig(3), nil, func() error {
		calls++
		return wantErr
	})
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 invocations, got %d", calls)
	}
	if !llm.IsRetryable(err) {
		t.Errorf("Expected the last error to be returned, got %v", err)
	}
}

func TestRetryDoesNotRetryNonRetryableErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(5), nil, func() error {
		calls++
		return llm.NewAuthenticationError("invalid api key", nil)
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected a single invocation for a non-retryable error, got %d", calls)
	}
	if llm.TypeOf(err) != llm.ErrorTypeAuthentication {
		t.Errorf("Expected authentication error to surface unchanged, got %v", err)
	}
}

func TestRetryNotifiesBeforeEachRetry(t *testing.T) {
	var attempts []int
	calls := 0
	_ = Retry(context.Background(), fastRetryConfig(3), func(attempt int, err error) {
		attempts = append(attempts, attempt)
		if err == nil {
			t.Error("Expected notify to receive the failing error")
		}
	}, func() error {
		calls++
		return llm.NewTimeoutError("deadline exceeded", nil)
	})

	// 3 attempts means 2 retries, notified as attempts 1 and 2.
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("Expected notifications for attempts [1 2], got %v", attempts)
	}
	if calls != 3 {
		t.Errorf("Expected 3 invocations, got %d", calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: time.Second}, nil, func() error {
		calls++
		cancel()
		return llm.NewNetworkError("transient", nil)
	})
	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if calls != 1 {
		t.Errorf("Expected no further attempts after cancellation, got %d", calls)
	}
}
