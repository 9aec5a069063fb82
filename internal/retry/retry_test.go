package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("rate limited")
var errPermanent = errors.New("bad request")

func transientOnly(err error) bool {
	return errors.Is(err, errTransient)
}

// newTestExecutor returns an executor that records delays instead of
// sleeping.
func newTestExecutor(maxAttempts int, delays *[]time.Duration) *Executor {
	ex := New(maxAttempts, 2*time.Second, transientOnly)
	ex.Sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return ex
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	ex := newTestExecutor(3, &delays)

	res := Do(context.Background(), ex, func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	if !res.OK() {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if res.Value != "ok" {
		t.Errorf("expected value 'ok', got %q", res.Value)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if len(delays) != 0 {
		t.Errorf("expected no sleeps, got %d", len(delays))
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	ex := newTestExecutor(3, &delays)

	calls := 0
	res := Do(context.Background(), ex, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})

	if !res.OK() {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(delays))
	}
}

func TestDo_BackoffIsExponentialAndMonotonic(t *testing.T) {
	var delays []time.Duration
	ex := newTestExecutor(4, &delays)

	res := Do(context.Background(), ex, func(ctx context.Context) (int, error) {
		return 0, errTransient
	})

	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", res.Attempts)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(delays))
	}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("delay[%d]: expected %v, got %v", i, want[i], d)
		}
		if i > 0 && d < delays[i-1] {
			t.Errorf("delay[%d] %v is shorter than delay[%d] %v", i, d, i-1, delays[i-1])
		}
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	ex := newTestExecutor(5, &delays)

	calls := 0
	res := Do(context.Background(), ex, func(ctx context.Context) (int, error) {
		calls++
		return 0, errPermanent
	})

	if res.OK() {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(res.Err, errPermanent) {
		t.Errorf("expected permanent error, got %v", res.Err)
	}
	if len(delays) != 0 {
		t.Errorf("expected no sleeps, got %d", len(delays))
	}
}

func TestDo_AttemptBoundHonored(t *testing.T) {
	var delays []time.Duration
	ex := newTestExecutor(3, &delays)

	calls := 0
	res := Do(context.Background(), ex, func(ctx context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	if calls != 3 {
		t.Errorf("expected exactly 3 calls, got %d", calls)
	}
	if !errors.Is(res.Err, errTransient) {
		t.Errorf("expected last transient error, got %v", res.Err)
	}
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ex := New(5, time.Millisecond, transientOnly)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := Do(ctx, ex, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})

	if res.OK() {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Err)
	}
}
