package callback

import (
	"errors"
	"strings"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// Metadata keys consulted when building a fallback identity, in priority order.
var (
	usernameKeys = []string{"username", "preferred_username"}
	nameKeys     = []string{"name", "full_name"}
)

// BuildFallbackIdentity synthesizes a degraded identity from provider data alone.
// The role is CUSTOMER unless the provider metadata declares a known role.
func BuildFallbackIdentity(s domainauth.ProviderSession) (domainauth.Identity, error) {
	email := strings.TrimSpace(s.ProviderEmail)
	local, _, _ := strings.Cut(email, "@")
	if email == "" || local == "" {
		return domainauth.Identity{}, newError(KindFallbackInvalid, errors.New("provider session has no usable email"))
	}
	userID := strings.TrimSpace(s.ProviderUserID)
	if userID == "" {
		return domainauth.Identity{}, newError(KindFallbackInvalid, errors.New("provider session has no user id"))
	}

	username := firstMetadata(s, usernameKeys)
	if username == "" {
		username = local
	}
	name := firstMetadata(s, nameKeys)
	if name == "" {
		name = username
	}
	role := domainauth.RoleCustomer
	if r, ok := domainauth.ParseRole(s.Metadata("role")); ok {
		role = r
	}

	return domainauth.Identity{
		ID:       userID,
		Username: username,
		Name:     name,
		Email:    email,
		Role:     role,
	}, nil
}

func firstMetadata(s domainauth.ProviderSession, keys []string) string {
	for _, k := range keys {
		if v := s.Metadata(k); v != "" {
			return v
		}
	}
	return ""
}
