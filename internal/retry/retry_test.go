package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	err := Do(context.Background(), Fixed(3, 0), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	var attempts int
	last := errors.New("attempt 3")
	err := Do(context.Background(), Fixed(3, 0), func(ctx context.Context) error {
		attempts++
		if attempts == 3 {
			return last
		}
		return errors.New("earlier")
	})
	if !errors.Is(err, last) {
		t.Fatalf("expected last attempt's error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var attempts int
	cause := errors.New("rejected")
	err := Do(context.Background(), Fixed(3, 0), func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})
	if attempts != 1 {
		t.Errorf("permanent error must stop retries, got %d attempts", attempts)
	}
	// Do 解包标记，调用方拿到原始错误。
	if !errors.Is(err, cause) {
		t.Errorf("expected unwrapped cause, got %v", err)
	}
}

func TestDo_ContextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var attempts int
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Fixed(3, time.Minute), func(ctx context.Context) error {
			attempts++
			return errors.New("transient")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Do did not return after cancellation")
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt before the cancelled wait, got %d", attempts)
	}
}

func TestExponential_Doubles(t *testing.T) {
	policy := Exponential(4, 2*time.Second)
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, expected := range want {
		if got := policy.Delay(i + 1); got != expected {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestFixed_ConstantDelay(t *testing.T) {
	policy := Fixed(3, 2*time.Second)
	for attempt := 1; attempt <= 3; attempt++ {
		if got := policy.Delay(attempt); got != 2*time.Second {
			t.Errorf("delay(%d) = %v, want 2s", attempt, got)
		}
	}
}
