package config

import (
	"strings"
	"time"
)

// CallbackConfig controls the post-redirect sign-in handshake.
type CallbackConfig struct {
	// Path is where the identity provider sends the browser back to.
	Path string `env:"CALLBACK_PATH" envDefault:"/auth/callback"`

	// SignInPath is the page users land on after a failed sign-in.
	SignInPath string `env:"CALLBACK_SIGN_IN_PATH" envDefault:"/auth/login"`

	// SessionTimeout bounds the wait for the provider session to appear.
	SessionTimeout time.Duration `env:"CALLBACK_SESSION_TIMEOUT" envDefault:"30s"`

	// MaxRetries is the number of retries after the first backend verification attempt.
	MaxRetries int `env:"CALLBACK_VERIFY_MAX_RETRIES" envDefault:"2"`

	// BaseDelay is multiplied by the attempt number between verification attempts.
	BaseDelay time.Duration `env:"CALLBACK_VERIFY_BASE_DELAY" envDefault:"1500ms"`

	// AttemptTimeout bounds a single verification call. Zero leaves it to the backend client.
	AttemptTimeout time.Duration `env:"CALLBACK_VERIFY_ATTEMPT_TIMEOUT" envDefault:"0s"`

	// FailureDelay is how long the failure message stays up before redirecting to sign-in.
	FailureDelay time.Duration `env:"CALLBACK_FAILURE_REDIRECT_DELAY" envDefault:"2s"`

	// GuardTTL is how long a processed callback URL is remembered across requests.
	GuardTTL time.Duration `env:"CALLBACK_GUARD_TTL" envDefault:"10m"`

	// RoleRoutes overrides role landing paths, e.g. "ADMIN:/admin,MANAGER:/manager".
	RoleRoutes map[string]string `env:"ROLE_ROUTES"`
}

// Sanitize applies guardrails to callback timings and paths.
func (c *CallbackConfig) Sanitize() {
	c.Path = normalizePath(c.Path, "/auth/callback")
	c.SignInPath = normalizePath(c.SignInPath, "/auth/login")
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.AttemptTimeout < 0 {
		c.AttemptTimeout = 0
	}
	if c.FailureDelay < 0 {
		c.FailureDelay = 0
	}
	if c.GuardTTL <= 0 {
		c.GuardTTL = 10 * time.Minute
	}
}

func normalizePath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return fallback
	}
	return p
}
