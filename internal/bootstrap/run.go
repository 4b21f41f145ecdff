package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-portal/config"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/service/authstate"
)

// Run connects infrastructure, wires the portal and serves until SIGINT/SIGTERM or a fatal error.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	if cfg == nil {
		return fmt.Errorf("app config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	metrics := BuildMetrics(ctx, cfg.Observability.Metrics, logger)
	defer func() {
		if cerr := CloseMetrics(metrics); cerr != nil {
			logger.ErrorContext(ctx, "close statsd failed", "error", cerr)
		}
	}()

	notifier := BuildFailureNotifier(NotifierDeps{
		Config:      cfg.Observability.Notifications,
		BaseURL:     cfg.HTTP.BaseURL,
		RedisClient: redisClient,
		Logger:      logger,
	})

	auth, err := BuildAuthService(ctx, AuthDeps{
		Config:      cfg,
		RedisClient: redisClient,
		Metrics:     metrics,
		Notifier:    notifier,
		HTTPClient:  &http.Client{Timeout: cfg.Backend.Timeout},
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}

	server := NewHTTPServer(HTTPServerConfig{
		Config:      cfg,
		Auth:        auth,
		RedisClient: redisClient,
		Logger:      logger,
	})

	logger.InfoContext(ctx, "starting mmk-portal",
		"auth_mode", cfg.Auth.Mode,
		"callback_path", cfg.Callback.Path,
		"backend_configured", cfg.Backend.BaseURL != "",
		"notifications", notifier.Enabled(),
		"dev", cfg.IsDev,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		reportSignedIn(gctx, auth.Service.State(), metrics, sessionGaugeInterval)
		return nil
	})
	return g.Wait()
}

const sessionGaugeInterval = 30 * time.Second

// reportSignedIn drops expired identities and publishes how many remain, until ctx is done.
func reportSignedIn(ctx context.Context, hub *authstate.Hub, sink statsd.Sink, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		hub.Sweep()
		sink.Gauge("auth.signed_in", float64(hub.Len()), nil)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
