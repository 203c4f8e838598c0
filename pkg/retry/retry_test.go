package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fast(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2,
	}
}

type tempErr bool

func (e tempErr) Error() string   { return "temp" }
func (e tempErr) Temporary() bool { return bool(e) }

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(5), func() error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("permanent")
	err := Do(context.Background(), fast(5), func() error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func() error {
		calls++
		return tempErr(true)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestTemporaryInterface(t *testing.T) {
	if !IsRetryable(tempErr(true)) {
		t.Error("Temporary() == true should be retryable")
	}
	if IsRetryable(tempErr(false)) {
		t.Error("Temporary() == false should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
}

func TestDoWithResultContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := fast(0)
	cfg.InitialWait = time.Hour
	_, err := DoWithResult(ctx, cfg, func() (int, error) {
		return 0, Retryable(errors.New("again"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOffRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Off(), func() error {
		calls++
		return Retryable(errors.New("x"))
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := Config{InitialWait: time.Second, MaxWait: 2 * time.Second, Multiplier: 10}
	if got := Backoff(cfg, 5); got != 2*time.Second {
		t.Errorf("Backoff = %v, want 2s", got)
	}
}
