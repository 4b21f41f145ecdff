package callback

import (
	"context"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/ports"
	"github.com/target/mmk-portal/internal/util/race"
)

// DefaultSessionTimeout bounds session retrieval when no timeout is configured.
const DefaultSessionTimeout = 30 * time.Second

// SessionWaiter reads the current provider session, bounded by Timeout.
type SessionWaiter struct {
	Provider ports.IdentityProvider
	Timeout  time.Duration
	Now      func() time.Time
}

// Wait returns a non-expired provider session.
// If ctx ends first, ctx.Err() is returned unclassified.
func (w SessionWaiter) Wait(ctx context.Context) (domainauth.ProviderSession, error) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	res := race.WithTimeout(ctx, timeout, w.Provider.GetSession)
	switch {
	case res.TimedOut:
		return domainauth.ProviderSession{}, newError(KindSessionTimeout, nil)
	case res.Err != nil:
		if ctx.Err() != nil {
			return domainauth.ProviderSession{}, ctx.Err()
		}
		return domainauth.ProviderSession{}, newError(KindNoSession, res.Err)
	case res.Value == nil:
		return domainauth.ProviderSession{}, newError(KindNoSession, nil)
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	session := *res.Value
	if session.Expired(now()) {
		return domainauth.ProviderSession{}, newError(KindSessionExpired, nil)
	}
	return session, nil
}
