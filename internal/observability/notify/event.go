package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Incident kinds raised by the sign-in flow.
const (
	// IncidentDegradedSignIn means the backend was unreachable and the user was
	// signed in from identity provider data alone.
	IncidentDegradedSignIn = "degraded_sign_in"
	// IncidentSignInFailed means a sign-in failed for a reason the user cannot fix.
	IncidentSignInFailed = "sign_in_failed"
)

// SignInIncidentPayload captures the canonical data we emit for sign-in incidents.
// It never carries tokens or authorization codes.
type SignInIncidentPayload struct {
	Incident   string
	Kind       string
	UserID     string
	Role       string
	Attempts   int
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming sign-in incident notifications.
type Sink interface {
	SendSignInIncident(ctx context.Context, payload SignInIncidentPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload SignInIncidentPayload) error

// SendSignInIncident implements the Sink interface.
func (f SinkFunc) SendSignInIncident(ctx context.Context, payload SignInIncidentPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
