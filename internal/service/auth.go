package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/ports"
	"github.com/target/mmk-portal/internal/service/authstate"
	"github.com/target/mmk-portal/internal/service/callback"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Verifier ports.TokenVerifier
	Storage  ports.SessionStorage
	State    *authstate.Hub
	Routes   ports.RouteTable
	// Guard is optional; without it duplicate requests are only stopped per lifecycle.
	Guard ports.ExecutionGuard
	// Incidents is optional; it receives degraded sign-ins and dependency failures.
	Incidents callback.IncidentNotifier

	Callback callback.Config
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// AuthService wires sign-in flows: login initiation, callback lifecycles, identity reads and logout.
type AuthService struct {
	provider  ports.AuthProvider
	verifier  ports.TokenVerifier
	storage   ports.SessionStorage
	state     *authstate.Hub
	routes    ports.RouteTable
	guard     ports.ExecutionGuard
	incidents callback.IncidentNotifier
	config    callback.Config
	metrics   statsd.Sink
	logger    *slog.Logger
}

var (
	// ErrNotSignedIn is returned when a browser session has no identity.
	ErrNotSignedIn = errors.New("not signed in")

	errStateMismatch = errors.New("state parameter does not match")
	errStateMissing  = errors.New("state parameter is required")
)

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	state := opts.State
	if state == nil {
		state = authstate.NewHub()
	}
	return &AuthService{
		provider:  opts.Provider,
		verifier:  opts.Verifier,
		storage:   opts.Storage,
		state:     state,
		routes:    opts.Routes,
		guard:     opts.Guard,
		incidents: opts.Incidents,
		config:    opts.Callback,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// State exposes the process-wide auth state for read-only consumers.
func (s *AuthService) State() *authstate.Hub {
	return s.state
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow. No browser session exists until a
// callback succeeds; the callback mints it.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CallbackInput binds one callback lifecycle to a browser session and its front end.
type CallbackInput struct {
	// SessionID must be freshly minted for this callback, never taken from the request.
	SessionID string
	// ExpectedState and Nonce come from the cookies set by BeginLogin.
	ExpectedState string
	Nonce         string

	Navigator ports.Navigator
	Notifier  ports.Notifier
	Waiter    ports.Waiter
}

// NewCallback builds a callback lifecycle for one landing request.
func (s *AuthService) NewCallback(in CallbackInput) (*callback.Callback, error) {
	if in.SessionID == "" {
		return nil, errors.New("session ID is required")
	}

	scope := s.storage.Scope(in.SessionID)
	client := s.provider.NewSessionClient(ports.SessionClientInput{Storage: scope, Nonce: in.Nonce})

	return callback.New(callback.Options{
		Provider:     client,
		Verifier:     s.verifier,
		Storage:      scope,
		State:        s.state.Writer(in.SessionID),
		Routes:       s.routes,
		Navigator:    in.Navigator,
		Notifier:     in.Notifier,
		Waiter:       in.Waiter,
		Guard:        s.guard,
		CheckPayload: stateChecker(in.ExpectedState),
		Incidents:    s.incidents,
		Config:       s.config,
		Metrics:      s.metrics,
		Logger:       s.logger.With("session_id", in.SessionID),
	}), nil
}

// stateChecker requires a code redirect to echo the state issued at login.
// Fragment-token redirects are checked only when they carry a state.
func stateChecker(expected string) func(domainauth.RedirectPayload) error {
	return func(p domainauth.RedirectPayload) error {
		switch {
		case p.Code != "" && expected == "":
			return errStateMissing
		case p.Code != "" && p.State != expected:
			return errStateMismatch
		case p.HashAccessToken != "" && p.State != "" && p.State != expected:
			return errStateMismatch
		}
		return nil
	}
}

// CurrentIdentity returns the identity for sessionID. The persisted user record is
// the authority: a revoked or expired record signs the session out everywhere. The
// hub only answers on its own while storage is unreachable.
func (s *AuthService) CurrentIdentity(ctx context.Context, sessionID string) (domainauth.Identity, error) {
	if sessionID == "" {
		return domainauth.Identity{}, ErrNotSignedIn
	}

	raw, err := s.storage.Scope(sessionID).Get(ctx, callback.StorageKeyUser)
	switch {
	case err == nil:
	case apperrors.IsNotFound(err):
		s.state.Forget(sessionID)
		return domainauth.Identity{}, ErrNotSignedIn
	default:
		if identity, ok := s.state.Lookup(sessionID); ok {
			s.logger.WarnContext(ctx, "session storage unavailable, serving cached identity", "error", err)
			return identity, nil
		}
		return domainauth.Identity{}, errors.Join(ErrNotSignedIn, fmt.Errorf("load identity: %w", err))
	}

	identity, err := callback.DecodeIdentity(raw)
	if err != nil {
		s.state.Forget(sessionID)
		return domainauth.Identity{}, errors.Join(ErrNotSignedIn, err)
	}

	s.state.Restore(sessionID, identity)
	return identity, nil
}

// Logout forgets the session's identity and destroys its storage.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil // Nothing to logout
	}

	s.state.Forget(sessionID)
	if err := s.storage.Destroy(ctx, sessionID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// GenerateSessionID creates a random browser session ID.
func GenerateSessionID() string {
	return uuid.New().String()
}
