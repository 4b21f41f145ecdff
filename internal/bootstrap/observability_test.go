package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/target/mmk-portal/config"
	"github.com/target/mmk-portal/internal/observability/notify"
	"github.com/target/mmk-portal/internal/observability/statsd"
	"github.com/target/mmk-portal/internal/testutil"
)

func TestBuildMetrics_DisabledIsDiscard(t *testing.T) {
	sink := BuildMetrics(context.Background(), config.ObservabilityMetricsConfig{}, discardLogger())
	assert.Equal(t, statsd.Discard, sink)
	assert.NoError(t, CloseMetrics(sink))
}

func TestBuildMetrics_Enabled(t *testing.T) {
	sink := BuildMetrics(context.Background(), config.ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: "127.0.0.1:8125",
		Prefix:        "mmk_portal",
	}, discardLogger())
	t.Cleanup(func() { _ = CloseMetrics(sink) })

	_, ok := sink.(*statsd.Client)
	assert.True(t, ok)
}

func TestBuildFailureNotifier_Disabled(t *testing.T) {
	svc := BuildFailureNotifier(NotifierDeps{
		Config: config.ObservabilityNotificationsConfig{
			Enabled: false,
			Slack:   config.SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/x"},
		},
		Logger: discardLogger(),
	})
	assert.False(t, svc.Enabled())
}

func TestBuildFailureNotifier_ThrottlesThroughRedis(t *testing.T) {
	var calls atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)
	client, _ := testutil.SetupMiniRedis(t)

	svc := BuildFailureNotifier(NotifierDeps{
		Config: config.ObservabilityNotificationsConfig{
			Enabled:     true,
			Timeout:     time.Second,
			ThrottleTTL: time.Minute,
			Slack:       config.SlackNotificationConfig{Enabled: true, WebhookURL: hook.URL},
		},
		BaseURL:     "https://portal.example.com",
		RedisClient: client,
		Logger:      discardLogger(),
	})
	assert.True(t, svc.Enabled())

	incident := notify.SignInIncidentPayload{Incident: notify.IncidentSignInFailed, Kind: "publish_failed"}
	svc.NotifySignInIncident(context.Background(), incident)
	svc.NotifySignInIncident(context.Background(), incident)

	assert.Equal(t, int32(1), calls.Load())
	keys, err := client.Keys(context.Background(), IncidentThrottlePrefix+"*").Result()
	assert.NoError(t, err)
	assert.Len(t, keys, 1)
}
