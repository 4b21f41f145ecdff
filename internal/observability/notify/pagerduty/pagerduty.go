package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-portal/internal/observability/notify"
	"github.com/target/mmk-portal/internal/util/retry"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	defaultSource     = "mmk-portal"
	defaultComponent  = "sign-in"
	deliveryBaseDelay = 200 * time.Millisecond
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     fallbackString(strings.TrimSpace(cfg.Source), defaultSource),
		component:  fallbackString(strings.TrimSpace(cfg.Component), defaultComponent),
		endpoint:   fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendSignInIncident submits a trigger event to PagerDuty.
func (c *Client) SendSignInIncident(ctx context.Context, payload notify.SignInIncidentPayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	_, err = retry.Do(ctx, retry.Policy{
		MaxAttempts: c.retryLimit + 1,
		BaseDelay:   deliveryBaseDelay,
		IsTransient: func(error) bool { return ctx.Err() == nil },
	}, func(ctx context.Context, _ retry.State) (struct{}, error) {
		return struct{}{}, c.submit(ctx, body)
	})
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Last
	}
	return err
}

func (c *Client) buildEvent(payload notify.SignInIncidentPayload) map[string]any {
	severity := fallbackString(strings.ToLower(payload.Severity), notify.SeverityCritical)

	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"incident":    payload.Incident,
		"kind":        payload.Kind,
		"user_id":     payload.UserID,
		"role":        payload.Role,
		"attempts":    payload.Attempts,
		"error":       payload.Error,
		"error_class": payload.ErrorClass,
	}

	for k, v := range payload.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	// One open incident per failure kind; repeated sign-in failures fold into it.
	dedupKey := strings.Trim(fmt.Sprintf("%s:%s:%s", c.source, payload.Incident, payload.Kind), ":")

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary":        summary(payload),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func summary(payload notify.SignInIncidentPayload) string {
	kind := fallbackString(payload.Kind, "unknown")
	if payload.Incident == notify.IncidentDegradedSignIn {
		return fmt.Sprintf("Sign-in degraded to identity provider data (%s)", kind)
	}
	return fmt.Sprintf("Sign-in failed (%s)", kind)
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if readErr != nil {
			return fmt.Errorf("read pagerduty error response: %w", readErr)
		}
		return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain pagerduty response body: %w", err)
	}
	return nil
}
