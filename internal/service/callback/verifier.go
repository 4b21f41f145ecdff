package callback

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/observability/metrics"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/ports"
	"github.com/target/mmk-portal/internal/util/retry"
)

// Verification defaults: two retries after the first attempt, 1.5s linear step.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 1500 * time.Millisecond
)

// RetryState describes the verification attempt in flight.
type RetryState = retry.State

// BackendVerifier validates the provider access token with the internal backend,
// retrying transient failures with linear backoff.
type BackendVerifier struct {
	Verifier ports.TokenVerifier
	// MaxRetries is the number of additional attempts after the first. Negative means zero.
	MaxRetries int
	BaseDelay  time.Duration
	// AttemptTimeout bounds each attempt when positive.
	AttemptTimeout time.Duration
	// OnAttempt is called before every attempt.
	OnAttempt func(RetryState)
	Metrics   statsd.Sink
	Logger    *slog.Logger
}

// Verify returns the authoritative identity for accessToken.
//
// Non-transient failures return KindVerificationTerminal at once. When every attempt
// fails transiently it returns KindVerificationExhausted carrying the last error.
func (v BackendVerifier) Verify(ctx context.Context, accessToken string) (domainauth.Identity, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := v.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempts := 0
	policy := retry.Policy{
		MaxAttempts: maxRetries + 1,
		BaseDelay:   v.BaseDelay,
		IsTransient: func(err error) bool { return ctx.Err() == nil && IsTransient(err) },
		OnRetry: func(s retry.State, err error, next time.Duration) {
			logger.WarnContext(ctx, "backend verification failed, retrying",
				"attempt", s.Attempt,
				"max_attempts", s.MaxAttempts,
				"retry_in", next,
				"error", newError(KindVerificationTransient, err))
		},
	}

	identity, err := retry.Do(ctx, policy, func(ctx context.Context, s retry.State) (domainauth.Identity, error) {
		attempts = s.Attempt
		if v.OnAttempt != nil {
			v.OnAttempt(s)
		}

		attemptCtx := ctx
		if v.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, v.AttemptTimeout)
			defer cancel()
		}

		start := time.Now()
		id, err := v.Verifier.VerifyToken(attemptCtx, accessToken)
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.EmitVerifyAttempt(v.Metrics, metrics.VerifyAttemptMetric{
			Attempt:  s.Attempt,
			Result:   result,
			Duration: time.Since(start),
			Err:      err,
		})
		return id, err
	})
	if err == nil {
		return identity, nil
	}

	if ctx.Err() != nil {
		return domainauth.Identity{}, ctx.Err()
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return domainauth.Identity{}, &Error{
			Kind:     KindVerificationExhausted,
			Attempts: exhausted.Attempts,
			Cause:    exhausted.Last,
		}
	}
	return domainauth.Identity{}, &Error{Kind: KindVerificationTerminal, Attempts: attempts, Cause: err}
}

// IsTransient reports whether a verification failure may clear on retry.
// Errors carrying an application code are classified by that code alone;
// otherwise attempt deadlines and network errors are transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if apperrors.GetCode(err) != "" {
		return apperrors.IsTemporary(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
