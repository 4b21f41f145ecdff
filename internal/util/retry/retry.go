// Package retry wraps cenkalti/backoff with an explicit transient/terminal split
// and a bounded attempt count.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// State describes the attempt in flight.
type State struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Last reports whether this is the final permitted attempt.
func (s State) Last() bool { return s.Attempt >= s.MaxAttempts }

// Policy configures Do.
type Policy struct {
	// MaxAttempts bounds total invocations, including the first. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay feeds the default Linear delay.
	BaseDelay time.Duration
	// Delay returns the wait before retry n. n is the retry index, not the attempt
	// index: n=1 is the wait between attempt 1 and attempt 2. Defaults to Linear(BaseDelay).
	Delay func(retry int) time.Duration
	// IsTransient decides whether a failure may be retried. Nil treats every error as terminal.
	IsTransient func(error) bool
	// OnRetry is called after a transient failure, before waiting next.
	OnRetry func(failed State, err error, next time.Duration)
}

// Linear returns a delay function that waits base*n before the n-th retry, so
// attempt k (k >= 2) starts base*(k-1) after attempt k-1 failed.
func Linear(base time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return base * time.Duration(n)
	}
}

// ExhaustedError is returned when every permitted attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// sequence adapts a delay function to backoff.BackOff.
type sequence struct {
	delay func(int) time.Duration
	n     int
}

func (s *sequence) NextBackOff() time.Duration {
	s.n++
	d := s.delay(s.n)
	if d < 0 {
		return 0
	}
	return d
}

func (s *sequence) Reset() { s.n = 0 }

// Do invokes fn until it succeeds, fails terminally, runs out of attempts, or ctx ends.
//
// A terminal failure is returned as-is. Running out of attempts on a transient
// failure returns *ExhaustedError. Cancellation during a wait returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, s State) (T, error)) (T, error) {
	var zero T

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := p.Delay
	if delay == nil {
		delay = Linear(p.BaseDelay)
	}

	attempt := 0
	var lastErr error
	lastTransient := false

	op := func() (T, error) {
		attempt++
		v, err := fn(ctx, State{Attempt: attempt, MaxAttempts: maxAttempts, BaseDelay: p.BaseDelay})
		if err == nil {
			return v, nil
		}
		lastErr = err
		lastTransient = p.IsTransient != nil && p.IsTransient(err)
		if !lastTransient {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(State{Attempt: attempt, MaxAttempts: maxAttempts, BaseDelay: p.BaseDelay}, err, next)
		}
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&sequence{delay: delay}),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return v, nil
	}

	switch {
	case lastErr == nil:
		return zero, err
	case !lastTransient:
		return zero, lastErr
	case attempt < maxAttempts && ctx.Err() != nil:
		return zero, ctx.Err()
	default:
		return zero, &ExhaustedError{Attempts: attempt, Last: lastErr}
	}
}
