// Package backend talks to the portal's internal API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/ports"
)

// VerifyTokenPath is appended to the base URL.
const VerifyTokenPath = "/verify-token"

const maxErrorBody = 4 << 10

// Config configures the backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration // default 10s
	Client  *http.Client
}

// Client verifies provider access tokens against the backend.
type Client struct {
	endpoint string
	client   *http.Client
}

var _ ports.TokenVerifier = (*Client)(nil)

// NewClient builds a backend client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: base + VerifyTokenPath, client: hc}, nil
}

type verifyRequest struct {
	AccessToken string `json:"accessToken"`
}

type verifyResponse struct {
	User *domainauth.Identity `json:"user"`
}

// VerifyToken posts the access token and returns the identity the backend resolved.
//
// Errors carry an apperrors code: transport failures and 5xx are unavailable,
// deadlines are timeout, 401/403/404 map to their codes and any other 4xx is validation.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) (domainauth.Identity, error) {
	body, err := json.Marshal(verifyRequest{AccessToken: accessToken})
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode verify request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "create verify request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domainauth.Identity{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domainauth.Identity{}, statusError(resp)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "decode verify response")
	}
	if out.User == nil || out.User.ID == "" {
		return domainauth.Identity{}, &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: "verify response has no user",
			Status:  resp.StatusCode,
		}
	}

	id := *out.User
	if r, ok := domainauth.ParseRole(string(id.Role)); ok {
		id.Role = r
	}
	return id, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "verify token canceled")
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "verify token timed out")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "backend unreachable")
}

func statusError(resp *http.Response) error {
	var code apperrors.ErrorCode
	switch {
	case resp.StatusCode >= 500:
		code = apperrors.ErrCodeUnavailable
	case resp.StatusCode == http.StatusUnauthorized:
		code = apperrors.ErrCodeUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		code = apperrors.ErrCodeForbidden
	case resp.StatusCode == http.StatusNotFound:
		code = apperrors.ErrCodeNotFound
	default:
		code = apperrors.ErrCodeValidation
	}

	msg := fmt.Sprintf("backend returned %d", resp.StatusCode)
	if detail := errorDetail(resp.Body); detail != "" {
		msg += ": " + detail
	}
	return &apperrors.AppError{Code: code, Message: msg, Status: resp.StatusCode}
}

// errorDetail extracts a message from a JSON error body, or the trimmed raw body.
func errorDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
