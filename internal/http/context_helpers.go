package httpx

import (
	"context"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// identityKey is an unexported context key type to avoid collisions across packages.
type identityKey struct{}

// sessionIDKey carries the browser session id alongside the identity.
type sessionIDKey struct{}

// SetIdentityInContext returns a child context that carries the signed-in identity.
func SetIdentityInContext(ctx context.Context, sessionID string, identity domainauth.Identity) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey{}, sessionID)
	return context.WithValue(ctx, identityKey{}, identity)
}

// GetIdentityFromContext returns the identity from context and a boolean indicating presence.
func GetIdentityFromContext(ctx context.Context) (domainauth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domainauth.Identity)
	return id, ok
}

// SessionIDFromContext returns the browser session id set by the auth middleware.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey{}).(string)
	return sid
}
