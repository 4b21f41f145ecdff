package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/mmk-portal/internal/observability/notify"
	"github.com/target/mmk-portal/internal/util/retry"
)

const (
	defaultUsername   = "mmk-portal"
	deliveryBaseDelay = 200 * time.Millisecond
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// PortalURL, when set, links the message to the portal.
	PortalURL string
}

// Client delivers sign-in incident notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	portalURL  string
	client     *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
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
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   fallbackString(strings.TrimSpace(cfg.Username), defaultUsername),
		retryLimit: max(cfg.RetryLimit, 0),
		portalURL:  validPortalURL(cfg.PortalURL),
		client:     hc,
	}, nil
}

// SendSignInIncident posts a formatted message to Slack.
func (c *Client) SendSignInIncident(ctx context.Context, payload notify.SignInIncidentPayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	_, err = retry.Do(ctx, retry.Policy{
		MaxAttempts: c.retryLimit + 1,
		BaseDelay:   deliveryBaseDelay,
		IsTransient: func(error) bool { return ctx.Err() == nil },
	}, func(ctx context.Context, _ retry.State) (struct{}, error) {
		return struct{}{}, c.post(ctx, body)
	})
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Last
	}
	return err
}

func (c *Client) formatMessage(payload notify.SignInIncidentPayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	text := strings.Builder{}
	c.writeHeader(&text, payload)
	appendDetails(&text, payload)
	appendMetadata(&text, payload.Metadata)
	writeTimestamp(&text, timestamp)

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func validPortalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.String()
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp)
	}

	return drainSuccess(resp)
}

func (c *Client) writeHeader(text *strings.Builder, payload notify.SignInIncidentPayload) {
	title := "Sign-in incident"
	switch payload.Incident {
	case notify.IncidentDegradedSignIn:
		title = "Degraded sign-in"
	case notify.IncidentSignInFailed:
		title = "Sign-in failure"
	}
	text.WriteByte('*')
	if c.portalURL != "" {
		fmt.Fprintf(text, "<%s|%s>", c.portalURL, title)
	} else {
		text.WriteString(title)
	}
	text.WriteByte('*')
	if payload.Kind != "" {
		text.WriteString(" `")
		text.WriteString(payload.Kind)
		text.WriteByte('`')
	}
	text.WriteByte('\n')
}

func appendDetails(text *strings.Builder, payload notify.SignInIncidentPayload) {
	attempts := ""
	if payload.Attempts > 0 {
		attempts = fmt.Sprintf("%d", payload.Attempts)
	}
	fields := []struct {
		label string
		value string
	}{
		{"Severity", fallbackString(payload.Severity, notify.SeverityCritical)},
		{"User", escapeSlackText(payload.UserID)},
		{"Role", payload.Role},
		{"Backend attempts", attempts},
		{"Error class", payload.ErrorClass},
		{"Error", escapeSlackText(payload.Error)},
	}

	for _, field := range fields {
		appendField(text, field.label, field.value)
	}
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func drainSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain slack response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain slack response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return errors.Join(fmt.Errorf("read slack error response: %w", readErr), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}

	return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}

func appendField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(escapeSlackText(metadata[k]))
		text.WriteByte('\n')
	}
}

func writeTimestamp(text *strings.Builder, timestamp time.Time) {
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))
}
