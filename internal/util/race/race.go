// Package race runs an operation against a timer.
package race

import (
	"context"
	"time"
)

// Result is the settled outcome of WithTimeout.
// Exactly one of TimedOut, Err != nil, or a completed Value describes it.
type Result[T any] struct {
	Value    T
	Err      error
	TimedOut bool
}

// Completed reports whether the operation settled before the timer.
func (r Result[T]) Completed() bool { return !r.TimedOut }

// WithTimeout runs op and waits for whichever settles first: op, the timer, or ctx.
// When the timer wins, op keeps running with the caller's ctx and its result is discarded.
// A non-positive d waits for op (or ctx) only.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) Result[T] {
	done := make(chan Result[T], 1)
	go func() {
		v, err := op(ctx)
		done <- Result[T]{Value: v, Err: err}
	}()

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		return res
	case <-timeout:
		return Result[T]{TimedOut: true}
	case <-ctx.Done():
		return Result[T]{Err: ctx.Err()}
	}
}
