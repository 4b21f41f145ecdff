package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/ports"
)

const (
	// SessionKey is the scoped storage key holding the provider session JSON.
	SessionKey = "provider_session"
	// DefaultSessionLifetime applies when neither the token response nor the access token carries an expiry.
	DefaultSessionLifetime = time.Hour
)

// SessionClient is an IdentityProvider bound to one browser session.
type SessionClient struct {
	provider *Provider
	store    ports.KeyValueStore
	nonce    string
}

var _ ports.IdentityProvider = (*SessionClient)(nil)

// ExchangeCodeForSession trades an authorization code for tokens, verifies the
// id_token (when openid is requested) and stores the resulting session.
func (c *SessionClient) ExchangeCodeForSession(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("authorization code is required")
	}
	p := c.provider

	tok, err := p.config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchange code for token: %w", err)
	}

	claims, err := p.idTokenClaims(ctx, tok, c.nonce)
	if err != nil {
		return fmt.Errorf("extract id_token: %w", err)
	}
	if claims.userID() == "" || claims.email() == "" {
		ui, uiErr := p.userInfoClaims(ctx, tok.AccessToken)
		if uiErr != nil {
			return fmt.Errorf("get user info: %w", uiErr)
		}
		claims = claims.merge(ui)
	}

	expiresAt := p.now().Add(DefaultSessionLifetime)
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	}

	return c.save(ctx, p.buildSession(claims, tok.AccessToken, tok.RefreshToken, expiresAt))
}

// SetSession installs a session from tokens delivered in the redirect fragment.
// The user is resolved through the UserInfo endpoint, which also proves the token is live.
func (c *SessionClient) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return errors.New("access token is required")
	}
	p := c.provider

	claims, err := p.userInfoClaims(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("get user info: %w", err)
	}
	expiresAt := accessTokenExpiry(accessToken, p.now())

	return c.save(ctx, p.buildSession(claims, accessToken, refreshToken, expiresAt))
}

// GetSession returns the stored provider session, or nil when none was stored.
func (c *SessionClient) GetSession(ctx context.Context) (*domainauth.ProviderSession, error) {
	raw, err := c.store.Get(ctx, SessionKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load provider session: %w", err)
	}
	var s domainauth.ProviderSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode provider session: %w", err)
	}
	return &s, nil
}

func (c *SessionClient) save(ctx context.Context, s domainauth.ProviderSession) error {
	if s.ProviderUserID == "" {
		return errors.New("provider returned no subject")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode provider session: %w", err)
	}
	if err := c.store.Set(ctx, SessionKey, string(b)); err != nil {
		return fmt.Errorf("store provider session: %w", err)
	}
	return nil
}

// accessTokenExpiry reads exp from a JWT access token without verifying it.
// Opaque tokens and tokens without exp get DefaultSessionLifetime.
func accessTokenExpiry(token string, now time.Time) time.Time {
	fallback := now.Add(DefaultSessionLifetime)
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fallback
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}

func (p *Provider) buildSession(claims claimSet, accessToken, refreshToken string, expiresAt time.Time) domainauth.ProviderSession {
	meta := claims.flatten()
	if username := claims.str("preferred_username", "samaccountname", "username"); username != "" {
		meta["username"] = username
	}
	if name := claims.displayName(); name != "" {
		meta["name"] = name
	}
	if role, ok := p.resolveRole(claims); ok {
		meta["role"] = string(role)
	}

	return domainauth.ProviderSession{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresAt:        expiresAt.Unix(),
		ProviderUserID:   claims.userID(),
		ProviderEmail:    claims.email(),
		ProviderMetadata: meta,
	}
}

// resolveRole evaluates the role claim expression first, then falls back to group mapping.
func (p *Provider) resolveRole(claims claimSet) (domainauth.Role, bool) {
	if p.roleClaim != "" {
		v, err := jmespath.Search(p.roleClaim, map[string]any(claims))
		if err == nil {
			if r, ok := roleFromValue(v); ok {
				return r, true
			}
		}
	}
	return p.roleMapper.Map(claims.strs("memberof", "groups"))
}

func roleFromValue(v any) (domainauth.Role, bool) {
	switch t := v.(type) {
	case string:
		return domainauth.ParseRole(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if r, ok := domainauth.ParseRole(s); ok {
					return r, true
				}
			}
		}
	}
	return "", false
}

// claimSet is a decoded claims object from an id_token or UserInfo response.
// It covers both the standard OIDC shape and the AD/ADFS shape.
type claimSet map[string]any

// protocol claims that carry no user information
var skippedClaims = map[string]bool{
	"nonce": true, "at_hash": true, "c_hash": true, "sid": true, "azp": true,
}

func (c claimSet) str(keys ...string) string {
	for _, k := range keys {
		if s, ok := c[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (c claimSet) strs(keys ...string) []string {
	for _, k := range keys {
		switch t := c[k].(type) {
		case string:
			if t != "" {
				return []string{t}
			}
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func (c claimSet) userID() string { return c.str("samaccountname", "sub") }

func (c claimSet) email() string { return c.str("mail", "email") }

func (c claimSet) displayName() string {
	if name := c.str("name", "full_name"); name != "" {
		return name
	}
	first := c.str("given_name", "firstname")
	last := c.str("family_name", "lastname")
	return strings.TrimSpace(first + " " + last)
}

// merge returns c with keys from other that c lacks.
func (c claimSet) merge(other claimSet) claimSet {
	out := make(claimSet, len(c)+len(other))
	for k, v := range other {
		out[k] = v
	}
	for k, v := range c {
		out[k] = v
	}
	return out
}

// flatten keeps the top-level string claims.
func (c claimSet) flatten() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		if skippedClaims[k] {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	return out
}
