package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-portal/config"
	"github.com/target/mmk-portal/internal/adapters/authroles"
	"github.com/target/mmk-portal/internal/adapters/backend"
	"github.com/target/mmk-portal/internal/adapters/devauth"
	"github.com/target/mmk-portal/internal/adapters/oidc"
	redisadapter "github.com/target/mmk-portal/internal/adapters/redis"
	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/ports"
	"github.com/target/mmk-portal/internal/service"
	"github.com/target/mmk-portal/internal/service/authstate"
	"github.com/target/mmk-portal/internal/service/callback"
	"github.com/target/mmk-portal/internal/service/failurenotifier"
)

// AuthDeps contains what the auth service is built from.
type AuthDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink
	// Notifier is optional; a notifier without sinks is ignored.
	Notifier   *failurenotifier.Service
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AuthBundle is the wired auth service plus what the router needs from its providers.
type AuthBundle struct {
	Service      *service.AuthService
	LogoutURL    string
	LandingPaths []string
	// LandingRoles maps each role landing path to the roles allowed on it.
	LandingRoles map[string][]domainauth.Role
}

// BuildAuthService creates the auth service for the configured auth mode.
func BuildAuthService(ctx context.Context, deps AuthDeps) (AuthBundle, error) {
	if deps.Config == nil {
		return AuthBundle{}, errors.New("auth config is required")
	}
	if deps.RedisClient == nil {
		return AuthBundle{}, errors.New("auth requires a redis client")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	routes, err := authroles.NewStaticRouteTable(cfg.Callback.RoleRoutes)
	if err != nil {
		return AuthBundle{}, fmt.Errorf("role routes: %w", err)
	}

	var (
		provider  ports.AuthProvider
		verifier  ports.TokenVerifier
		logoutURL string
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		dev, devErr := buildDevProvider(cfg)
		if devErr != nil {
			return AuthBundle{}, devErr
		}
		provider, verifier = dev, dev
		logger.WarnContext(ctx, "dev auth enabled; do not use in production",
			"user_id", cfg.Auth.DevAuth.UserID,
			"role", cfg.Auth.DevAuth.Role,
			"fragment", cfg.Auth.DevAuth.Fragment,
		)
	case config.AuthModeOAuth:
		prov, oidcErr := buildOIDCProvider(cfg.Auth.OAuth, deps.HTTPClient)
		if oidcErr != nil {
			return AuthBundle{}, oidcErr
		}
		provider, logoutURL = prov, prov.LogoutURL()
	default:
		return AuthBundle{}, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	if cfg.Backend.BaseURL != "" {
		client, backendErr := backend.NewClient(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			Timeout: cfg.Backend.Timeout,
			Client:  deps.HTTPClient,
		})
		if backendErr != nil {
			return AuthBundle{}, fmt.Errorf("backend verifier: %w", backendErr)
		}
		verifier = client
	}
	if verifier == nil {
		return AuthBundle{}, errors.New("no token verifier configured: set BACKEND_BASE_URL")
	}

	guard := redisadapter.NewGuard(deps.RedisClient, cfg.Callback.GuardTTL)

	opts := service.AuthServiceOptions{
		Provider: provider,
		Verifier: verifier,
		Storage:  redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, cfg.Session.KeyPrefix, cfg.Session.TTL),
		State:    authstate.NewHub(authstate.WithTTL(cfg.Session.TTL)),
		Routes:   routes,
		Guard:    guard,
		Callback: callbackConfig(cfg.Callback),
		Metrics:  deps.Metrics,
		Logger:   logger.With("component", "auth"),
	}
	// A nil *Service stored in the interface would not compare equal to nil.
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		opts.Incidents = deps.Notifier
	}

	return AuthBundle{
		Service:      service.NewAuthService(opts),
		LogoutURL:    logoutURL,
		LandingPaths: landingPaths(routes.Paths(), cfg.HTTP.LandingPaths),
		LandingRoles: routes.Roles(),
	}, nil
}

func buildDevProvider(cfg *config.AppConfig) (*devauth.Provider, error) {
	dev := cfg.Auth.DevAuth
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:          dev.UserID,
		Email:           dev.Email,
		Username:        dev.Username,
		Name:            dev.Name,
		Role:            dev.Role,
		SessionDuration: cfg.Session.TTL,
		CallbackPath:    cfg.Callback.Path,
		Fragment:        dev.Fragment,
	})
	if err != nil {
		return nil, fmt.Errorf("dev auth provider: %w", err)
	}
	return prov, nil
}

func buildOIDCProvider(oauth config.OAuthConfig, client *http.Client) (*oidc.Provider, error) {
	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		LogoutURL:    oauth.LogoutURL,
		Prompt:       oauth.Prompt,
		RoleClaim:    oauth.RoleClaim,
		GroupRoles:   oauth.GroupRoles,
		HTTPClient:   client,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return prov, nil
}

func callbackConfig(c config.CallbackConfig) callback.Config {
	out := callback.DefaultConfig()
	out.SessionTimeout = c.SessionTimeout
	out.MaxRetries = c.MaxRetries
	out.BaseDelay = c.BaseDelay
	out.AttemptTimeout = c.AttemptTimeout
	out.FailureDelay = c.FailureDelay
	out.SignInPath = c.SignInPath
	return out
}

// landingPaths merges role routes with configured extras, keeping the first occurrence.
func landingPaths(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, paths := range groups {
		for _, p := range paths {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
