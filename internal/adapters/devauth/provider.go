package devauth

// Package devauth provides a simple, config-driven identity provider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/ports"
)

const (
	// SessionKey is the scoped storage key for the dev provider session.
	SessionKey = "provider_session"

	tokenPrefix = "dev."
)

// Config controls the dev auth provider behavior.
// UserID and Email are required.
type Config struct {
	UserID          string
	Email           string
	Username        string
	Name            string
	Role            string        // defaults to CUSTOMER
	SessionDuration time.Duration // default 8h when zero
	CallbackPath    string        // default /auth/callback
	// Fragment makes Begin deliver tokens in the URL fragment instead of an authorization code.
	Fragment bool
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state and credentials.
type Provider struct {
	identity        domainauth.Identity
	sessionDuration time.Duration
	callbackPath    string
	fragment        bool
	now             func() time.Time
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	role := domainauth.RoleCustomer
	if cfg.Role != "" {
		r, ok := domainauth.ParseRole(cfg.Role)
		if !ok {
			return nil, fmt.Errorf("dev auth: unknown role %q", cfg.Role)
		}
		role = r
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	username := cfg.Username
	if username == "" {
		username, _, _ = strings.Cut(cfg.Email, "@")
	}
	name := cfg.Name
	if name == "" {
		name = username
	}
	callbackPath := cfg.CallbackPath
	if callbackPath == "" {
		callbackPath = "/auth/callback"
	}
	return &Provider{
		identity: domainauth.Identity{
			ID:       cfg.UserID,
			Username: username,
			Name:     name,
			Email:    cfg.Email,
			Role:     role,
		},
		sessionDuration: dur,
		callbackPath:    callbackPath,
		fragment:        cfg.Fragment,
		now:             time.Now,
	}, nil
}

// Identity returns the configured dev identity.
func (p *Provider) Identity() domainauth.Identity { return p.identity }

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	if !p.fragment {
		return p.callbackPath + "?code=dev&state=" + url.QueryEscape(state), state, nonce, nil
	}
	token, err := p.mintToken()
	if err != nil {
		return "", "", "", err
	}
	frag := url.Values{"access_token": {token}, "state": {state}, "token_type": {"bearer"}}
	return p.callbackPath + "#" + frag.Encode(), state, nonce, nil
}

// NewSessionClient returns a client that keeps the dev session in in.Storage.
func (p *Provider) NewSessionClient(in ports.SessionClientInput) ports.IdentityProvider {
	return &sessionClient{p: p, store: in.Storage}
}

// VerifyToken accepts tokens minted by this provider. It stands in for the
// backend verifier when no backend is configured.
func (p *Provider) VerifyToken(_ context.Context, accessToken string) (domainauth.Identity, error) {
	if !strings.HasPrefix(accessToken, tokenPrefix) {
		return domainauth.Identity{}, apperrors.Unauthorized("dev auth: token was not issued by dev provider")
	}
	return p.identity, nil
}

func (p *Provider) mintToken() (string, error) {
	s, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tokenPrefix + s, nil
}

func (p *Provider) session(accessToken, refreshToken string) domainauth.ProviderSession {
	return domainauth.ProviderSession{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      p.now().Add(p.sessionDuration).Unix(),
		ProviderUserID: p.identity.ID,
		ProviderEmail:  p.identity.Email,
		ProviderMetadata: map[string]string{
			"username": p.identity.Username,
			"name":     p.identity.Name,
			"role":     string(p.identity.Role),
		},
	}
}

type sessionClient struct {
	p     *Provider
	store ports.KeyValueStore
}

// ExchangeCodeForSession ignores the code value; state validation happens before exchange.
func (c *sessionClient) ExchangeCodeForSession(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("dev auth: code is required")
	}
	token, err := c.p.mintToken()
	if err != nil {
		return err
	}
	return c.save(ctx, c.p.session(token, ""))
}

func (c *sessionClient) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	if !strings.HasPrefix(accessToken, tokenPrefix) {
		return errors.New("dev auth: unknown access token")
	}
	return c.save(ctx, c.p.session(accessToken, refreshToken))
}

func (c *sessionClient) GetSession(ctx context.Context) (*domainauth.ProviderSession, error) {
	raw, err := c.store.Get(ctx, SessionKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var s domainauth.ProviderSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("dev auth: decode session: %w", err)
	}
	return &s, nil
}

func (c *sessionClient) save(ctx context.Context, s domainauth.ProviderSession) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, SessionKey, string(b))
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
