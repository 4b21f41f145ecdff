package callback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	mockauth "github.com/target/mmk-portal/internal/mocks/auth"
	"github.com/target/mmk-portal/internal/ports"
)

type harness struct {
	idp      *mockauth.MockIdentityProvider
	verifier *mockauth.StubTokenVerifier
	kv       *mockauth.MemoryKV
	state    *mockauth.RecordingPublisher
	nav      *mockauth.RecordingNavigator
	notifier *mockauth.RecordingNotifier
	waiter   *mockauth.RecordingWaiter
	guard    ports.ExecutionGuard
}

func newHarness() *harness {
	return &harness{
		idp:      mockauth.NewMockIdentityProvider(),
		verifier: &mockauth.StubTokenVerifier{Identity: domainauth.Identity{ID: "1", Username: "mgr", Name: "Manager", Email: "mgr@example.com", Role: domainauth.RoleManager}},
		kv:       mockauth.NewMemoryKV(),
		state:    &mockauth.RecordingPublisher{},
		nav:      &mockauth.RecordingNavigator{},
		notifier: &mockauth.RecordingNotifier{},
		waiter:   &mockauth.RecordingWaiter{},
	}
}

func (h *harness) callback(mutate ...func(*Options)) *Callback {
	opts := Options{
		Provider:  h.idp,
		Verifier:  h.verifier,
		Storage:   h.kv,
		State:     h.state,
		Routes:    testRoutes,
		Navigator: h.nav,
		Notifier:  h.notifier,
		Waiter:    h.waiter,
		Guard:     h.guard,
		Config: Config{
			SessionTimeout: time.Second,
			MaxRetries:     2,
			BaseDelay:      time.Millisecond,
			FailureDelay:   2 * time.Second,
			SignInPath:     "/auth/login",
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts)
}

func networkError() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection reset by peer")}
}

func states(c *Callback) []State {
	var out []State
	for _, tr := range c.History() {
		out = append(out, tr.State)
	}
	return out
}

func TestCallback_HashTokensRouteManager(t *testing.T) {
	h := newHarness()
	var access, refresh string
	h.idp.SetSessionFunc = func(_ context.Context, a, r string) error {
		access, refresh = a, r
		return nil
	}
	cb := h.callback()

	outcome, err := cb.Run(context.Background(), "https://portal.example.com/auth/callback#access_token=abc&refresh_token=def")

	require.NoError(t, err)
	success, ok := outcome.(domainauth.Success)
	require.True(t, ok, "expected success, got %#v", outcome)
	assert.False(t, success.Degraded)
	assert.Equal(t, "/manager", success.Route)
	assert.Equal(t, "abc", access)
	assert.Equal(t, "def", refresh)
	assert.Equal(t, []string{"/manager"}, h.nav.Paths())
	assert.Equal(t, 1, h.kv.WritesTo(StorageKeyUser))
	assert.Len(t, h.kv.Writes(), 1)
	require.Len(t, h.state.Published(), 1)
	assert.Equal(t, "1", h.state.Published()[0].ID)
	assert.Equal(t, StateRouted, cb.State())
	assert.Equal(t, []State{StateParsing, StateExchanging, StateWaitingSession, StateVerifying, StatePublishing, StateRouted}, states(cb))
	assert.Empty(t, h.notifier.Notices())
}

func TestCallback_CodeExchange(t *testing.T) {
	h := newHarness()
	h.verifier.Identity.Role = domainauth.RoleAdmin
	cb := h.callback()

	outcome, err := cb.Run(context.Background(), "/auth/callback?code=c-1&state=s-1")

	require.NoError(t, err)
	assert.IsType(t, domainauth.Success{}, outcome)
	assert.Equal(t, 1, h.idp.ExchangeCalls())
	assert.Equal(t, 0, h.idp.SetSessionCalls())
	assert.Equal(t, []string{"/admin"}, h.nav.Paths())
}

func TestCallback_NoCredentialsUsesExistingSession(t *testing.T) {
	h := newHarness()
	h.verifier.Identity.Role = domainauth.RoleCustomer
	cb := h.callback()

	_, err := cb.Run(context.Background(), "/auth/callback")

	require.NoError(t, err)
	assert.Zero(t, h.idp.ExchangeCalls()+h.idp.SetSessionCalls())
	assert.Equal(t, 1, h.idp.GetSessionCalls())
	assert.Equal(t, []string{"/"}, h.nav.Paths())
}

func TestCallback_ProviderErrorShortCircuits(t *testing.T) {
	h := newHarness()
	h.guard = &mockauth.MemoryGuard{Err: errors.New("must not be consulted")}
	cb := h.callback()

	outcome, err := cb.Run(context.Background(), "/auth/callback?error=access_denied&code=ignored")

	require.NoError(t, err)
	failure, ok := outcome.(domainauth.Failure)
	require.True(t, ok)
	assert.Equal(t, string(KindProviderError), failure.Kind)
	assert.Equal(t, "access_denied", failure.Message)

	assert.Zero(t, h.idp.ExchangeCalls())
	assert.Zero(t, h.idp.SetSessionCalls())
	assert.Zero(t, h.idp.GetSessionCalls())
	assert.Zero(t, h.verifier.Calls())
	assert.Empty(t, h.state.Published())

	assert.Equal(t, []ports.Notice{{Kind: "provider_error", Message: "access_denied", RetryAfter: 2 * time.Second}}, h.notifier.Notices())
	assert.Equal(t, []time.Duration{2 * time.Second}, h.waiter.Delays())
	assert.Equal(t, []string{"/auth/login"}, h.nav.Paths())
	assert.Equal(t, []State{StateParsing, StateFailed, StateRedirecting}, states(cb))
}

func TestCallback_ProviderErrorDescriptionIsShown(t *testing.T) {
	h := newHarness()

	outcome, err := h.callback().Run(context.Background(), "/auth/callback#error=server_error&error_description=Try+later")

	require.NoError(t, err)
	assert.Equal(t, "Try later", outcome.(domainauth.Failure).Message)
}

func TestCallback_SessionTimeout(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	defer close(release)
	h.idp.GetSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
		<-release
		return nil, nil
	}
	cb := h.callback(func(o *Options) { o.Config.SessionTimeout = 20 * time.Millisecond })

	outcome, err := cb.Run(context.Background(), "/auth/callback?code=c")

	require.NoError(t, err)
	failure := outcome.(domainauth.Failure)
	assert.Equal(t, string(KindSessionTimeout), failure.Kind)
	assert.Equal(t, KindSessionTimeout, KindOf(failure.Err))
	assert.Zero(t, h.verifier.Calls())
	assert.Equal(t, []string{"/auth/login"}, h.nav.Paths())
}

func TestCallback_ExpiredSession(t *testing.T) {
	h := newHarness()
	h.idp.Session.ExpiresAt = time.Now().Add(-time.Second).Unix()

	outcome, err := h.callback().Run(context.Background(), "/auth/callback#access_token=abc")

	require.NoError(t, err)
	assert.Equal(t, string(KindSessionExpired), outcome.(domainauth.Failure).Kind)
	assert.Zero(t, h.verifier.Calls())
}

func TestCallback_ExchangeError(t *testing.T) {
	h := newHarness()
	h.idp.ExchangeFunc = func(context.Context, string) error { return errors.New("invalid_grant") }

	outcome, err := h.callback().Run(context.Background(), "/auth/callback?code=used")

	require.NoError(t, err)
	assert.Equal(t, string(KindExchange), outcome.(domainauth.Failure).Kind)
	assert.Equal(t, 1, h.idp.ExchangeCalls())
	assert.Zero(t, h.idp.GetSessionCalls())
}

func TestCallback_FallbackAfterNetworkFailures(t *testing.T) {
	h := newHarness()
	h.verifier.VerifyFunc = func(context.Context, string, int) (domainauth.Identity, error) {
		return domainauth.Identity{}, networkError()
	}
	cb := h.callback(func(o *Options) { o.Config.MaxRetries = 1 })

	outcome, err := cb.Run(context.Background(), "/auth/callback#access_token=abc")

	require.NoError(t, err)
	success, ok := outcome.(domainauth.Success)
	require.True(t, ok, "expected success, got %#v", outcome)
	assert.True(t, success.Degraded)
	assert.Equal(t, 2, h.verifier.Calls())

	want, ferr := BuildFallbackIdentity(*h.idp.Session)
	require.NoError(t, ferr)
	assert.Equal(t, want, success.Identity)
	assert.Equal(t, domainauth.RoleCustomer, success.Identity.Role)
	assert.Equal(t, []domainauth.Identity{want}, h.state.Published())
	assert.Equal(t, []string{"/"}, h.nav.Paths())
	assert.Empty(t, h.notifier.Notices())
}

func TestCallback_VerifyingRecordedPerAttempt(t *testing.T) {
	h := newHarness()
	h.verifier.VerifyFunc = func(context.Context, string, int) (domainauth.Identity, error) {
		return domainauth.Identity{}, &apperrors.AppError{Code: apperrors.ErrCodeUnavailable, Status: 503}
	}
	cb := h.callback()

	_, err := cb.Run(context.Background(), "/auth/callback?code=c")

	require.NoError(t, err)
	assert.Equal(t, 3, h.verifier.Calls())
	var attempts []int
	for _, tr := range cb.History() {
		if tr.State == StateVerifying {
			attempts = append(attempts, tr.Attempt)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, StateRouted, cb.State())
}

func TestCallback_TerminalVerificationIsSurfaced(t *testing.T) {
	h := newHarness()
	h.verifier.VerifyFunc = func(context.Context, string, int) (domainauth.Identity, error) {
		return domainauth.Identity{}, &apperrors.AppError{Code: apperrors.ErrCodeForbidden, Status: 403, Message: "account disabled"}
	}

	outcome, err := h.callback().Run(context.Background(), "/auth/callback?code=c")

	require.NoError(t, err)
	failure := outcome.(domainauth.Failure)
	assert.Equal(t, string(KindVerificationTerminal), failure.Kind)
	assert.Equal(t, KindVerificationTerminal.UserMessage(), failure.Message)
	assert.Equal(t, 1, h.verifier.Calls())
	assert.Empty(t, h.state.Published())
	assert.Zero(t, h.kv.WritesTo(StorageKeyUser))
}

func TestCallback_FallbackInvalid(t *testing.T) {
	h := newHarness()
	h.idp.Session.ProviderEmail = ""
	h.verifier.VerifyFunc = func(context.Context, string, int) (domainauth.Identity, error) {
		return domainauth.Identity{}, networkError()
	}

	outcome, err := h.callback().Run(context.Background(), "/auth/callback?code=c")

	require.NoError(t, err)
	assert.Equal(t, string(KindFallbackInvalid), outcome.(domainauth.Failure).Kind)
	assert.Empty(t, h.state.Published())
}

func TestCallback_PublishFailure(t *testing.T) {
	h := newHarness()
	h.kv.SetErr = errors.New("redis down")

	outcome, err := h.callback().Run(context.Background(), "/auth/callback?code=c")

	require.NoError(t, err)
	assert.Equal(t, string(KindPublish), outcome.(domainauth.Failure).Kind)
	assert.Empty(t, h.state.Published())
	assert.Equal(t, []string{"/auth/login"}, h.nav.Paths())
}

func TestCallback_CheckPayloadRejects(t *testing.T) {
	h := newHarness()
	cb := h.callback(func(o *Options) {
		o.CheckPayload = func(p domainauth.RedirectPayload) error {
			if p.State != "expected" {
				return errors.New("state mismatch")
			}
			return nil
		}
	})

	outcome, err := cb.Run(context.Background(), "/auth/callback?code=c&state=forged")

	require.NoError(t, err)
	assert.Equal(t, string(KindProviderError), outcome.(domainauth.Failure).Kind)
	assert.Zero(t, h.idp.ExchangeCalls())
}

func TestCallback_SecondRunIsNoop(t *testing.T) {
	h := newHarness()
	cb := h.callback()

	_, err := cb.Run(context.Background(), "/auth/callback?code=c")
	require.NoError(t, err)

	outcome, err := cb.Run(context.Background(), "/auth/callback?code=c")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Nil(t, outcome)
	assert.Equal(t, 1, h.idp.ExchangeCalls())
	assert.Len(t, h.state.Published(), 1)
	assert.Len(t, h.nav.Paths(), 1)
}

func TestCallback_ConcurrentRunsPublishOnce(t *testing.T) {
	h := newHarness()
	cb := h.callback()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var already int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cb.Run(context.Background(), "/auth/callback?code=c")
			if errors.Is(err, ErrAlreadyStarted) {
				mu.Lock()
				already++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, already)
	assert.Equal(t, 1, h.idp.ExchangeCalls())
	assert.Len(t, h.state.Published(), 1)
	assert.Equal(t, 1, h.kv.WritesTo(StorageKeyUser))
}

func TestCallback_GuardRejectsDuplicateAcrossLifecycles(t *testing.T) {
	h := newHarness()
	h.guard = &mockauth.MemoryGuard{}

	_, err := h.callback().Run(context.Background(), "/auth/callback?code=same")
	require.NoError(t, err)

	outcome, err := h.callback().Run(context.Background(), "/auth/callback?code=same")
	assert.ErrorIs(t, err, ErrDuplicateInvocation)
	assert.Nil(t, outcome)
	assert.Equal(t, 1, h.idp.ExchangeCalls())
	assert.Len(t, h.state.Published(), 1)
}

func TestCallback_GuardErrorDoesNotBlock(t *testing.T) {
	h := newHarness()
	h.guard = &mockauth.MemoryGuard{Err: errors.New("redis unreachable")}

	outcome, err := h.callback().Run(context.Background(), "/auth/callback?code=c")

	require.NoError(t, err)
	assert.IsType(t, domainauth.Success{}, outcome)
}

func TestCallback_TeardownDuringFailureDelay(t *testing.T) {
	h := newHarness()
	h.waiter.Block = true
	cb := h.callback()

	done := make(chan error, 1)
	go func() {
		_, err := cb.Run(context.Background(), "/auth/callback?error=access_denied")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(h.waiter.Delays()) == 1 }, time.Second, 5*time.Millisecond)
	cb.Teardown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTornDown)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after teardown")
	}
	assert.Empty(t, h.nav.Paths())
}

func TestCallback_TeardownDuringBackoffDiscardsResult(t *testing.T) {
	h := newHarness()
	attempted := make(chan struct{}, 1)
	h.verifier.VerifyFunc = func(context.Context, string, int) (domainauth.Identity, error) {
		attempted <- struct{}{}
		return domainauth.Identity{}, networkError()
	}
	cb := h.callback(func(o *Options) { o.Config.BaseDelay = time.Hour })

	done := make(chan error, 1)
	go func() {
		_, err := cb.Run(context.Background(), "/auth/callback?code=c")
		done <- err
	}()

	<-attempted
	cb.Teardown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTornDown)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after teardown")
	}
	assert.Empty(t, h.state.Published())
	assert.Empty(t, h.nav.Paths())
	assert.Empty(t, h.notifier.Notices())
}

func TestCallback_TeardownBeforeRun(t *testing.T) {
	h := newHarness()
	cb := h.callback()
	cb.Teardown()

	_, err := cb.Run(context.Background(), "/auth/callback?code=c")

	assert.ErrorIs(t, err, ErrTornDown)
	assert.Zero(t, h.idp.ExchangeCalls())
	assert.Equal(t, StateIdle, cb.State())
}

func TestCallback_ContextCancelledDuringSessionWait(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	h.idp.GetSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
		cancel()
		<-release
		return nil, nil
	}

	_, err := h.callback().Run(ctx, "/auth/callback?code=c")

	assert.ErrorIs(t, err, ErrTornDown)
	assert.Zero(t, h.verifier.Calls())
	assert.Empty(t, h.nav.Paths())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(domainauth.RedirectPayload{Code: "abc"})
	b := Fingerprint(domainauth.RedirectPayload{HashAccessToken: "abc"})

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "abc")
	assert.Equal(t, a, Fingerprint(domainauth.RedirectPayload{Code: "abc", State: "other"}))
	assert.Empty(t, Fingerprint(domainauth.RedirectPayload{}))
}
