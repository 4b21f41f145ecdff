package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication configuration
//   - callback.go: Callback handshake timings and role routes
//   - backend.go: Backend token verification
//   - redis.go: Redis connection and session storage
//   - http.go: HTTP server configuration
//   - observability.go: Metrics and incident notifications
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth     AuthConfig
	Callback CallbackConfig
	Backend  BackendConfig
	Session  SessionConfig
	Redis    RedisConfig `envPrefix:"REDIS_"`
	HTTP     HTTPConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Callback.Sanitize()
	c.Backend.Sanitize()
	c.Session.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// Validate reports combinations that cannot be wired.
// Call it after Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Auth.Mode {
	case AuthModeOAuth:
		if c.Auth.OAuth.DiscoveryURL == "" {
			errs = append(errs, errors.New("OAUTH_DISCOVERY_URL is required when AUTH_MODE=oauth"))
		}
		if c.Backend.BaseURL == "" {
			errs = append(errs, errors.New("BACKEND_BASE_URL is required when AUTH_MODE=oauth"))
		}
	case AuthModeMock:
		if !c.IsDev {
			errs = append(errs, errors.New("AUTH_MODE=mock is only allowed in development (DEV=true)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AUTH_MODE %q", c.Auth.Mode))
	}
	if c.Redis.UseSentinel && c.Redis.UseCluster {
		errs = append(errs, errors.New("REDIS_USE_SENTINEL and REDIS_USE_CLUSTER are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
