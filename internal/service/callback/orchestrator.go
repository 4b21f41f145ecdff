// Package callback drives the sign-in callback lifecycle: parse the redirect,
// exchange credentials, wait for the provider session, verify it with the backend
// (falling back to provider data), publish the identity once, and route the user.
package callback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/observability/metrics"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/ports"
)

// Config tunes a callback lifecycle. Zero values fall back to package defaults.
type Config struct {
	SessionTimeout time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	FailureDelay   time.Duration
	SignInPath     string
	DefaultRoute   string
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		SessionTimeout: DefaultSessionTimeout,
		MaxRetries:     DefaultMaxRetries,
		BaseDelay:      DefaultBaseDelay,
		FailureDelay:   DefaultFailureDelay,
		SignInPath:     DefaultSignInPath,
		DefaultRoute:   DefaultRoute,
	}
}

// Options groups dependencies for a Callback.
type Options struct {
	Provider  ports.IdentityProvider
	Verifier  ports.TokenVerifier
	Storage   ports.KeyValueStore
	State     ports.IdentityPublisher
	Routes    ports.RouteTable
	Navigator ports.Navigator
	Notifier  ports.Notifier
	// Waiter defaults to TimerWaiter.
	Waiter ports.Waiter
	// Guard, when set, claims the redirect credentials across processes.
	Guard ports.ExecutionGuard
	// CheckPayload validates the parsed payload before any side effect.
	CheckPayload func(domainauth.RedirectPayload) error
	// Incidents, when set, is told about degraded sign-ins and dependency failures.
	Incidents IncidentNotifier

	Config  Config
	Metrics statsd.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// Callback is one sign-in callback lifecycle. Run does its work at most once.
type Callback struct {
	exchanger    SessionExchanger
	waiter       SessionWaiter
	verifier     BackendVerifier
	publisher    SessionPublisher
	router       OutcomeRouter
	guard        ports.ExecutionGuard
	checkPayload func(domainauth.RedirectPayload) error
	incidents    IncidentNotifier
	metrics      statsd.Sink
	logger       *slog.Logger
	now          func() time.Time

	started  atomic.Bool
	tornDown atomic.Bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	state      State
	history    []Transition
	outcome    domainauth.CallbackOutcome
	degradedBy error
}

// New constructs a Callback in the Idle state.
func New(opts Options) *Callback {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	waiter := opts.Waiter
	if waiter == nil {
		waiter = TimerWaiter{}
	}

	c := &Callback{
		exchanger: SessionExchanger{Provider: opts.Provider},
		waiter: SessionWaiter{
			Provider: opts.Provider,
			Timeout:  opts.Config.SessionTimeout,
			Now:      now,
		},
		publisher: SessionPublisher{Storage: opts.Storage, State: opts.State},
		router: OutcomeRouter{
			Routes:       opts.Routes,
			Navigator:    opts.Navigator,
			Notifier:     opts.Notifier,
			Waiter:       waiter,
			DefaultRoute: opts.Config.DefaultRoute,
			SignInPath:   opts.Config.SignInPath,
			FailureDelay: opts.Config.FailureDelay,
		},
		guard:        opts.Guard,
		checkPayload: opts.CheckPayload,
		incidents:    opts.Incidents,
		metrics:      opts.Metrics,
		logger:       logger,
		now:          now,
		state:        StateIdle,
	}
	c.verifier = BackendVerifier{
		Verifier:       opts.Verifier,
		MaxRetries:     opts.Config.MaxRetries,
		BaseDelay:      opts.Config.BaseDelay,
		AttemptTimeout: opts.Config.AttemptTimeout,
		OnAttempt:      func(s RetryState) { c.enter(StateVerifying, s.Attempt) },
		Metrics:        opts.Metrics,
		Logger:         logger,
	}
	return c
}

// Run drives the lifecycle for the landing URL rawURL.
//
// Failures are outcomes, not errors: a Failure is returned with a nil error once the
// user has been sent back to sign-in. Run returns ErrAlreadyStarted on any call after
// the first, ErrDuplicateInvocation when another request already claimed the same
// credentials, and ErrTornDown when ctx ends or Teardown is called before the flow
// settles. Those cases never navigate; a teardown that lands after publishing still
// returns the Success alongside ErrTornDown.
func (c *Callback) Run(ctx context.Context, rawURL string) (domainauth.CallbackOutcome, error) {
	if !c.started.CompareAndSwap(false, true) {
		c.logger.DebugContext(ctx, "sign-in callback already started")
		return nil, ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if c.tornDown.Load() {
		return nil, ErrTornDown
	}

	start := c.now()
	outcome, err := c.run(ctx, rawURL)
	c.settle(ctx, outcome, err, c.now().Sub(start))
	return outcome, err
}

// Teardown ends the lifecycle: pending waits are cancelled and in-flight results discarded.
func (c *Callback) Teardown() {
	c.tornDown.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current lifecycle state.
func (c *Callback) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns every state entered, in order.
func (c *Callback) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition(nil), c.history...)
}

// Outcome returns the settled outcome, or nil.
func (c *Callback) Outcome() domainauth.CallbackOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *Callback) run(ctx context.Context, rawURL string) (domainauth.CallbackOutcome, error) {
	c.enter(StateParsing, 0)
	current, err := url.Parse(rawURL)
	if err != nil {
		return c.fail(ctx, nil, newError(KindProviderError, fmt.Errorf("parse callback url: %w", err)))
	}
	payload := ParseRedirectURL(current)
	if payload.HasProviderError() {
		return c.fail(ctx, current, providerError(payload))
	}
	if c.checkPayload != nil {
		if err := c.checkPayload(payload); err != nil {
			return c.fail(ctx, current, newError(KindProviderError, err))
		}
	}
	if !c.claim(ctx, payload) {
		return nil, ErrDuplicateInvocation
	}

	c.enter(StateExchanging, 0)
	mode, err := c.exchanger.Exchange(ctx, payload)
	if err != nil {
		return c.fail(ctx, current, err)
	}
	c.logger.DebugContext(ctx, "provider credentials exchanged", "mode", mode)

	c.enter(StateWaitingSession, 0)
	session, err := c.waiter.Wait(ctx)
	if err != nil {
		return c.fail(ctx, current, err)
	}

	identity, degraded, err := c.resolveIdentity(ctx, session)
	if err != nil {
		return c.fail(ctx, current, err)
	}

	if c.discarded(ctx) {
		return nil, ErrTornDown
	}
	c.enter(StatePublishing, 0)
	if err := c.publisher.Publish(ctx, identity); err != nil {
		return c.fail(ctx, current, err)
	}

	success := domainauth.Success{
		Identity: identity,
		Route:    c.router.ResolveRoute(identity.Role),
		Degraded: degraded,
	}
	c.setOutcome(success)
	if c.discarded(ctx) {
		return success, ErrTornDown
	}
	c.enter(StateRouted, 0)
	if err := c.router.Route(ctx, current, success); err != nil {
		if c.discarded(ctx) {
			return success, ErrTornDown
		}
		return success, err
	}
	return success, nil
}

// resolveIdentity verifies the session with the backend and falls back to provider
// data when verification is exhausted. Terminal rejections are not recovered.
func (c *Callback) resolveIdentity(ctx context.Context, session domainauth.ProviderSession) (domainauth.Identity, bool, error) {
	identity, err := c.verifier.Verify(ctx, session.AccessToken)
	if err == nil {
		return identity, false, nil
	}
	if KindOf(err) != KindVerificationExhausted || c.discarded(ctx) {
		return domainauth.Identity{}, false, err
	}

	c.logger.WarnContext(ctx, "backend verification unavailable, using provider identity", "error", err)
	verifyErr := err
	identity, err = BuildFallbackIdentity(session)
	if err != nil {
		return domainauth.Identity{}, false, err
	}
	c.mu.Lock()
	c.degradedBy = verifyErr
	c.mu.Unlock()
	return identity, true, nil
}

func (c *Callback) fail(ctx context.Context, current *url.URL, err error) (domainauth.CallbackOutcome, error) {
	if c.discarded(ctx) {
		return nil, ErrTornDown
	}

	var cbErr *Error
	if !errors.As(err, &cbErr) {
		cbErr = &Error{Cause: err}
	}
	failure := domainauth.Failure{
		Kind:       string(cbErr.Kind),
		Message:    cbErr.UserMessage(),
		RetryAfter: c.router.Delay(),
		Err:        cbErr,
	}

	c.enter(StateFailed, 0)
	c.logger.WarnContext(ctx, "sign-in callback failed", "kind", cbErr.Kind, "error", cbErr)
	c.setOutcome(failure)

	c.enter(StateRedirecting, 0)
	if err := c.router.Route(ctx, current, failure); err != nil {
		if c.discarded(ctx) {
			return failure, ErrTornDown
		}
		return failure, err
	}
	return failure, nil
}

// claim reports whether this lifecycle owns the payload's credentials. Guard
// backend errors do not block sign-in.
func (c *Callback) claim(ctx context.Context, p domainauth.RedirectPayload) bool {
	if c.guard == nil || !p.HasCredentials() {
		return true
	}
	ok, err := c.guard.Acquire(ctx, Fingerprint(p))
	if err != nil {
		c.logger.WarnContext(ctx, "callback guard unavailable, continuing", "error", err)
		return true
	}
	if !ok {
		c.logger.InfoContext(ctx, "duplicate sign-in callback ignored")
	}
	return ok
}

func (c *Callback) discarded(ctx context.Context) bool {
	return c.tornDown.Load() || ctx.Err() != nil
}

func (c *Callback) enter(s State, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canEnter(c.state, s) {
		c.logger.Error("invalid callback transition", "from", c.state, "to", s)
		return
	}
	c.state = s
	c.history = append(c.history, Transition{State: s, Attempt: attempt, At: c.now()})
}

func (c *Callback) setOutcome(o domainauth.CallbackOutcome) {
	c.mu.Lock()
	c.outcome = o
	c.mu.Unlock()
}

func (c *Callback) settle(ctx context.Context, outcome domainauth.CallbackOutcome, err error, took time.Duration) {
	m := metrics.CallbackMetric{Duration: took}
	switch o := outcome.(type) {
	case domainauth.Success:
		m.Result = metrics.ResultSuccess
		if o.Degraded {
			m.Result = metrics.ResultDegraded
		}
		m.Role = string(o.Identity.Role)
	case domainauth.Failure:
		m.Result = metrics.ResultError
		m.Kind = o.Kind
		m.Err = o.Err
	default:
		m.Result = metrics.ResultNoop
		switch {
		case errors.Is(err, ErrDuplicateInvocation):
			m.Kind = "duplicate"
		case errors.Is(err, ErrTornDown):
			m.Kind = "torn_down"
		}
	}
	metrics.EmitCallback(c.metrics, m)

	c.logger.InfoContext(ctx, "sign-in callback settled",
		"result", m.Result,
		"kind", m.Kind,
		"state", c.State(),
		"duration", took,
	)

	if c.incidents == nil || errors.Is(err, ErrTornDown) {
		return
	}
	c.mu.Lock()
	degradedBy := c.degradedBy
	c.mu.Unlock()
	if incident, ok := incidentFor(outcome, degradedBy, c.now()); ok {
		// delivery outlives the request; sinks bound it with their own timeouts
		go c.incidents.NotifySignInIncident(context.WithoutCancel(ctx), incident)
	}
}

func providerError(p domainauth.RedirectPayload) *Error {
	msg := p.ProviderErrorDescription
	if msg == "" {
		msg = p.ProviderError
	}
	return &Error{
		Kind:    KindProviderError,
		Message: msg,
		Cause:   fmt.Errorf("identity provider returned %q", p.ProviderError),
	}
}

// Fingerprint derives the guard key for a payload's credentials, or "" when it has none.
// Raw codes and tokens never leave the process.
func Fingerprint(p domainauth.RedirectPayload) string {
	var material string
	switch {
	case p.Code != "":
		material = "code:" + p.Code
	case p.HashAccessToken != "":
		material = "token:" + p.HashAccessToken
	default:
		return ""
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
