package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-portal/config"
	httpx "github.com/target/mmk-portal/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Auth        AuthBundle
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewHTTPServer builds the portal server without starting it.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	ready := map[string]httpx.ReadyFunc{}
	if cfg.RedisClient != nil {
		client := cfg.RedisClient
		ready["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Auth:         cfg.Auth.Service,
		CookieDomain: appCfg.HTTP.CookieDomain,
		SignInPath:   appCfg.Callback.SignInPath,
		CallbackPath: appCfg.Callback.Path,
		LogoutURL:    cfg.Auth.LogoutURL,
		SessionTTL:   appCfg.Session.TTL,
		LandingPaths: cfg.Auth.LandingPaths,
		LandingRoles: cfg.Auth.LandingRoles,
		Ready:        ready,
		Logger:       logger,
	})

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	readHeader := appCfg.HTTP.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}

	// No WriteTimeout: a callback request may legitimately wait for the
	// provider session and the verification backoff.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// ServeHTTP runs server until ctx is done, then shuts it down within shutdownTimeout.
// Request contexts derive from ctx, so in-flight callbacks see the cancellation.
func ServeHTTP(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return errors.New("http server is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
