// Package retry provides the single retry abstraction shared by the text
// and video stages. Operations return a tagged Result instead of escalating
// errors, so callers can isolate a failed unit of work and keep going.
package retry

import (
	"context"
	"time"
)

// Result is the tagged outcome of a retried operation.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Executor runs operations with exponential backoff. Transient failures are
// retried up to MaxAttempts with delays Base, 2*Base, 4*Base, ...; anything
// the classifier calls permanent fails immediately.
type Executor struct {
	MaxAttempts int
	Base        time.Duration
	IsTransient func(error) bool

	// Sleep waits between attempts. Overridable in tests; the default
	// honors context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Executor with the given attempt bound and base delay. The
// classifier must be set by the caller (see client.IsTransient).
func New(maxAttempts int, base time.Duration, isTransient func(error) bool) *Executor {
	return &Executor{
		MaxAttempts: maxAttempts,
		Base:        base,
		IsTransient: isTransient,
		Sleep:       sleepContext,
	}
}

// Do runs op until it succeeds, fails permanently, or exhausts the attempt
// budget. It never panics past its boundary; the last error and the attempt
// count are carried in the Result.
func Do[T any](ctx context.Context, ex *Executor, op func(ctx context.Context) (T, error)) Result[T] {
	var zero T
	maxAttempts := ex.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := ex.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt}
		}
		lastErr = err

		if ex.IsTransient == nil || !ex.IsTransient(err) {
			return Result[T]{Value: zero, Err: err, Attempts: attempt}
		}
		if attempt == maxAttempts {
			break
		}

		delay := ex.Base << (attempt - 1)
		if err := sleep(ctx, delay); err != nil {
			return Result[T]{Value: zero, Err: err, Attempts: attempt}
		}
	}
	return Result[T]{Value: zero, Err: lastErr, Attempts: maxAttempts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
