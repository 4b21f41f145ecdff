package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"mmk-portal"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"mmk-portal"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
	Prompt       string `env:"PROMPT"`

	// RoleClaim is a JMESPath expression over the merged ID token and userinfo claims.
	RoleClaim string `env:"ROLE_CLAIM" envDefault:"role"`

	// GroupRoles maps group DNs to roles, e.g.
	// "cn=admins,ou=groups,dc=example,dc=org=>ADMIN;cn=sales,ou=groups,dc=example,dc=org=>STAFF_SALE".
	// DNs carry commas and equals signs, hence the separators.
	GroupRoles map[string]string `env:"GROUP_ROLES" envSeparator:";" envKeyValSeparator:"=>"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID   string `env:"USER_ID"  envDefault:"dev-user"`
	Email    string `env:"EMAIL"    envDefault:"dev@example.com"`
	Username string `env:"USERNAME" envDefault:"dev"`
	Name     string `env:"NAME"     envDefault:"Dev User"`
	Role     string `env:"ROLE"     envDefault:"ADMIN"`
	// Fragment delivers credentials in the URL fragment instead of a code.
	Fragment bool `env:"FRAGMENT" envDefault:"false"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}
