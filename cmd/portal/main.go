package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/mmk-portal/config"
	"github.com/target/mmk-portal/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	return bootstrap.Run(ctx, &cfg, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "loaded mmk-portal config",
		"http_addr", cfg.HTTP.Addr,
		"redis_sentinel", cfg.Redis.UseSentinel,
		"redis_cluster", cfg.Redis.UseCluster,
		"session_timeout", cfg.Callback.SessionTimeout,
		"verify_max_retries", cfg.Callback.MaxRetries,
		"verify_base_delay", cfg.Callback.BaseDelay,
		"metrics", cfg.Observability.Metrics.IsEnabled(),
	)
}
