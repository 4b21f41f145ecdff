package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-portal/config"
	redisadapter "github.com/target/mmk-portal/internal/adapters/redis"
	"github.com/target/mmk-portal/internal/observability/notify/pagerduty"
	"github.com/target/mmk-portal/internal/observability/notify/slack"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/service/failurenotifier"
)

// IncidentThrottlePrefix namespaces incident throttle claims in Redis.
const IncidentThrottlePrefix = "incident-throttle:"

// BuildMetrics returns the StatsD sink, or statsd.Discard when metrics are off or unreachable.
// Metrics never block startup.
func BuildMetrics(ctx context.Context, cfg config.ObservabilityMetricsConfig, logger *slog.Logger) statsd.Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsEnabled() {
		return statsd.Discard
	}
	sink, err := statsd.New(ctx, statsd.Config{
		Enabled:    true,
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		GlobalTags: cfg.GlobalTags,
		Logger:     logger.With("component", "statsd"),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		return statsd.Discard
	}
	logger.InfoContext(ctx, "statsd metrics enabled", "addr", cfg.StatsdAddress, "prefix", cfg.Prefix)
	return sink
}

// CloseMetrics releases the sink's socket when it has one.
func CloseMetrics(sink statsd.Sink) error {
	if c, ok := sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NotifierDeps groups what the incident notifier is built from.
type NotifierDeps struct {
	Config config.ObservabilityNotificationsConfig
	// BaseURL is used as the Slack link when no portal URL is configured.
	BaseURL string
	// RedisClient backs the throttle; without it every incident is delivered.
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildFailureNotifier wires the Slack and PagerDuty sinks that are enabled.
func BuildFailureNotifier(deps NotifierDeps) *failurenotifier.Service {
	baseLogger := deps.Logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	cfg := deps.Config
	logger := baseLogger.With("component", "failure_notifier")

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: logger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		portalURL := cfg.Slack.PortalURL
		if portalURL == "" {
			portalURL = deps.BaseURL
		}
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			PortalURL:  portalURL,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	opts := failurenotifier.Options{Logger: logger, Sinks: sinks}
	if deps.RedisClient != nil && cfg.ThrottleTTL > 0 {
		opts.Throttle = redisadapter.NewGuard(deps.RedisClient, cfg.ThrottleTTL).
			WithPrefix(IncidentThrottlePrefix, cfg.ThrottleTTL)
	}
	return failurenotifier.NewService(opts)
}
