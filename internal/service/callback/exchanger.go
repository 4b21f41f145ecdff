package callback

import (
	"context"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/ports"
)

// ExchangeMode reports which credential the exchanger used.
type ExchangeMode string

const (
	ExchangeNone   ExchangeMode = "none"
	ExchangeCode   ExchangeMode = "code"
	ExchangeTokens ExchangeMode = "tokens"
)

// SessionExchanger turns redirect credentials into a provider session.
// Codes are single-use, so failures are never retried.
type SessionExchanger struct {
	Provider ports.IdentityProvider
}

// Exchange installs a provider session from p. With neither a code nor a hash
// access token it does nothing, since the provider may already hold a session.
func (x SessionExchanger) Exchange(ctx context.Context, p domainauth.RedirectPayload) (ExchangeMode, error) {
	switch {
	case p.Code != "":
		if err := x.Provider.ExchangeCodeForSession(ctx, p.Code); err != nil {
			return ExchangeCode, newError(KindExchange, err)
		}
		return ExchangeCode, nil
	case p.HashAccessToken != "":
		if err := x.Provider.SetSession(ctx, p.HashAccessToken, p.HashRefreshToken); err != nil {
			return ExchangeTokens, newError(KindExchange, err)
		}
		return ExchangeTokens, nil
	default:
		return ExchangeNone, nil
	}
}
