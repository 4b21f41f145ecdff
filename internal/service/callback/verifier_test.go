package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	mockauth "github.com/target/mmk-portal/internal/mocks/auth"
)

func unavailable() error {
	return apperrors.Wrap(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		apperrors.ErrCodeUnavailable, "verify token")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: unavailable(), want: true},
		{name: "timeout code", err: &apperrors.AppError{Code: apperrors.ErrCodeTimeout}, want: true},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: true},
		{name: "net error", err: &net.DNSError{Err: "no such host", IsTimeout: true}, want: true},
		{name: "unauthorized", err: &apperrors.AppError{Code: apperrors.ErrCodeUnauthorized, Status: 401}, want: false},
		{name: "forbidden", err: &apperrors.AppError{Code: apperrors.ErrCodeForbidden, Status: 403}, want: false},
		{name: "not found", err: &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Status: 404}, want: false},
		{name: "coded wins over wrapped net error", err: apperrors.Wrap(&net.DNSError{}, apperrors.ErrCodeValidation, "bad"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "message mentioning network is not enough", err: errors.New("network timeout"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestBackendVerifier_Success(t *testing.T) {
	want := domainauth.Identity{ID: "1", Username: "jdoe", Role: domainauth.RoleManager}
	stub := &mockauth.StubTokenVerifier{Identity: want}

	got, err := BackendVerifier{Verifier: stub, MaxRetries: 2, BaseDelay: time.Millisecond}.
		Verify(context.Background(), "access-token")

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"access-token"}, stub.Tokens())
}

func TestBackendVerifier_TerminalIsNotRetried(t *testing.T) {
	stub := &mockauth.StubTokenVerifier{
		VerifyFunc: func(context.Context, string, int) (domainauth.Identity, error) {
			return domainauth.Identity{}, &apperrors.AppError{Code: apperrors.ErrCodeForbidden, Status: 403}
		},
	}

	_, err := BackendVerifier{Verifier: stub, MaxRetries: 2, BaseDelay: time.Millisecond}.
		Verify(context.Background(), "tok")

	require.Error(t, err)
	assert.Equal(t, KindVerificationTerminal, KindOf(err))
	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, 1, stub.Calls())
}

func TestBackendVerifier_ExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []time.Time
		states []RetryState
	)
	stub := &mockauth.StubTokenVerifier{
		VerifyFunc: func(context.Context, string, int) (domainauth.Identity, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return domainauth.Identity{}, unavailable()
		},
	}
	base := 20 * time.Millisecond

	_, err := BackendVerifier{
		Verifier:   stub,
		MaxRetries: 2,
		BaseDelay:  base,
		OnAttempt:  func(s RetryState) { states = append(states, s) },
	}.Verify(context.Background(), "tok")

	require.Error(t, err)
	var cbErr *Error
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, KindVerificationExhausted, cbErr.Kind)
	assert.Equal(t, 3, cbErr.Attempts)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, 3, stub.Calls())

	require.Len(t, states, 3)
	for i, s := range states {
		assert.Equal(t, i+1, s.Attempt)
		assert.Equal(t, 3, s.MaxAttempts)
		assert.Equal(t, base, s.BaseDelay)
	}

	// linear backoff: base*1 before the first retry, base*2 before the second
	require.Len(t, starts, 3)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), base)
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), 2*base)
}

func TestBackendVerifier_RecoversAfterTransient(t *testing.T) {
	stub := &mockauth.StubTokenVerifier{
		VerifyFunc: func(_ context.Context, _ string, attempt int) (domainauth.Identity, error) {
			if attempt < 2 {
				return domainauth.Identity{}, &apperrors.AppError{Code: apperrors.ErrCodeTimeout}
			}
			return domainauth.Identity{ID: "7", Role: domainauth.RoleAdmin}, nil
		},
	}

	id, err := BackendVerifier{Verifier: stub, MaxRetries: 2, BaseDelay: time.Millisecond}.
		Verify(context.Background(), "tok")

	require.NoError(t, err)
	assert.Equal(t, "7", id.ID)
	assert.Equal(t, 2, stub.Calls())
}

func TestBackendVerifier_AttemptTimeoutIsTransient(t *testing.T) {
	stub := &mockauth.StubTokenVerifier{
		VerifyFunc: func(ctx context.Context, _ string, attempt int) (domainauth.Identity, error) {
			if attempt == 1 {
				<-ctx.Done()
				return domainauth.Identity{}, fmt.Errorf("post verify-token: %w", ctx.Err())
			}
			return domainauth.Identity{ID: "1"}, nil
		},
	}

	id, err := BackendVerifier{
		Verifier:       stub,
		MaxRetries:     1,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: 10 * time.Millisecond,
	}.Verify(context.Background(), "tok")

	require.NoError(t, err)
	assert.Equal(t, "1", id.ID)
	assert.Equal(t, 2, stub.Calls())
}

func TestBackendVerifier_NoRetries(t *testing.T) {
	stub := &mockauth.StubTokenVerifier{
		VerifyFunc: func(context.Context, string, int) (domainauth.Identity, error) {
			return domainauth.Identity{}, unavailable()
		},
	}

	_, err := BackendVerifier{Verifier: stub, MaxRetries: -1}.Verify(context.Background(), "tok")

	assert.Equal(t, KindVerificationExhausted, KindOf(err))
	assert.Equal(t, 1, stub.Calls())
}

func TestBackendVerifier_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stub := &mockauth.StubTokenVerifier{
		VerifyFunc: func(context.Context, string, int) (domainauth.Identity, error) {
			cancel()
			return domainauth.Identity{}, unavailable()
		},
	}

	_, err := BackendVerifier{Verifier: stub, MaxRetries: 2, BaseDelay: time.Minute}.Verify(ctx, "tok")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, KindOf(err))
	assert.Equal(t, 1, stub.Calls())
}
