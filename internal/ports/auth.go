package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// SessionClientInput binds an identity provider client to one browser session.
type SessionClientInput struct {
	// Storage is the browser-session scoped store the client keeps its provider session in.
	Storage KeyValueStore
	// Nonce is the value sent with Begin; empty skips nonce verification.
	Nonce string
}

// AuthProvider initiates sign-in against an IdP and hands out per-session clients.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// NewSessionClient returns an IdentityProvider bound to one browser session.
	NewSessionClient(in SessionClientInput) IdentityProvider
}

// IdentityProvider is the identity-provider client consumed by the callback flow.
type IdentityProvider interface {
	// ExchangeCodeForSession trades a single-use authorization code for a provider session.
	ExchangeCodeForSession(ctx context.Context, code string) error
	// SetSession installs a session from raw tokens. refreshToken may be empty.
	SetSession(ctx context.Context, accessToken, refreshToken string) error
	// GetSession returns the current provider session, or nil when there is none.
	GetSession(ctx context.Context) (*domainauth.ProviderSession, error)
}

// TokenVerifier validates a provider access token with the internal backend.
// Errors should carry an internal/errors code so callers can tell transient from terminal failures.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, accessToken string) (domainauth.Identity, error)
}

// KeyValueStore is the persisted storage contract used for rehydration.
type KeyValueStore interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SessionStorage hands out key-value stores scoped to a browser session.
type SessionStorage interface {
	Scope(sessionID string) KeyValueStore
	Destroy(ctx context.Context, sessionID string) error
}

// ExecutionGuard claims a key once across processes.
// Acquire returns false when the key was already claimed.
type ExecutionGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// IdentityPublisher commits an identity into process-wide auth state.
type IdentityPublisher interface {
	Publish(identity domainauth.Identity)
}

// RouteTable maps a role to the first screen the user lands on.
type RouteTable interface {
	Lookup(role domainauth.Role) (string, bool)
}

// Navigator replaces the current location; history is not kept.
type Navigator interface {
	Replace(ctx context.Context, path string) error
}

// Notice is a user-facing failure message.
type Notice struct {
	Kind       string
	Message    string
	RetryAfter time.Duration
}

// Notifier displays a notice to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Waiter blocks for d or until ctx is done.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}
