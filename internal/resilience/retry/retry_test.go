package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"channelwatch/internal/domain/entity"
)

func TestWithBackoff_Success(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Strategy: Linear}

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithBackoff_SuccessAfterRetry(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Strategy: Linear}

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return entity.ClassifyStatus(500, "server error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_MaxAttemptsExceeded(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Strategy: Linear}

	attempts := 0
	testErr := entity.ClassifyStatus(500, "server error")
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return testErr
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, testErr) {
		t.Error("expected wrapped error to contain original error")
	}
}

func TestWithBackoff_NonRetryableError(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Strategy: Linear}

	attempts := 0
	testErr := &entity.ValidationError{Field: "channelId", Message: "must not be empty"}
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return testErr
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt (non-retryable), got %d", attempts)
	}
	var validationErr *entity.ValidationError
	if !errors.As(err, &validationErr) {
		t.Error("expected the validation error to be returned unwrapped")
	}
}

func TestWithBackoff_ContextCancelled(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute, Strategy: Linear}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := WithBackoff(ctx, cfg, func() error {
		attempts++
		return entity.ClassifyStatus(503, "unavailable")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestDelayFor_Linear(t *testing.T) {
	cfg := TelemetryFetchConfig(3, time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.DelayFor(tt.attempt); got != tt.want {
			t.Errorf("DelayFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayFor_ExponentialCapped(t *testing.T) {
	cfg := Config{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Strategy: Exponential, Multiplier: 2.0}

	if got := cfg.DelayFor(1); got != time.Second {
		t.Errorf("DelayFor(1) = %v, want 1s", got)
	}
	if got := cfg.DelayFor(2); got != 2*time.Second {
		t.Errorf("DelayFor(2) = %v, want 2s", got)
	}
	if got := cfg.DelayFor(6); got != 5*time.Second {
		t.Errorf("DelayFor(6) = %v, want cap of 5s", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", &entity.ValidationError{Field: "apiKey", Message: "empty"}, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"server error", entity.ClassifyStatus(500, "boom"), true},
		{"unauthorized", entity.ClassifyStatus(401, "bad key"), true},
		{"rate limited", entity.ClassifyStatus(429, "slow down"), true},
		{"not found", entity.ClassifyStatus(404, "no channel"), true},
		{"invalid response", &entity.InvalidResponseError{Reason: "no channel object"}, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"plain error", errors.New("something"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
