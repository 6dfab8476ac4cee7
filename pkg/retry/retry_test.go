package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 5 {
		t.Errorf("expected MaxRetries=5, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 500*time.Millisecond {
		t.Errorf("expected InitialDelay=500ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 10*time.Second {
		t.Errorf("expected MaxDelay=10s, got %v", cfg.MaxDelay)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		callCount++
		return fmt.Errorf("attempt %d: connection refused", callCount)
	})

	if err == nil || err.Error() != "attempt 3: connection refused" {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		callCount++
		return Permanent(errors.New("bad config"))
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	err := Do(ctx, cfg, func() error { return errors.New("connection refused") })

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	attempts := []int{}
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	callCount := 0
	got, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		callCount++
		if callCount == 1 {
			return "", errors.New("i/o timeout")
		}
		return "pool", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "pool" {
		t.Errorf("expected pool, got %q", got)
	}
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("expected OnRetry once for attempt 1, got %v", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp 127.0.0.1:5432: connection refused"), true},
		{errors.New("failed to ping database: i/o timeout"), true},
		{errors.New(`FATAL: password authentication failed for user "x"`), false},
		{errors.New(`database "facilities" does not exist`), false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{Permanent(errors.New("x")), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
