package callback

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	obserrors "github.com/target/mmk-portal/internal/observability/errors"
	"github.com/target/mmk-portal/internal/observability/notify"
)

// IncidentNotifier receives sign-in incidents worth paging someone about.
type IncidentNotifier interface {
	NotifySignInIncident(ctx context.Context, payload notify.SignInIncidentPayload)
}

// alertingKinds are failures caused by our own dependencies rather than the user or the provider.
var alertingKinds = map[Kind]bool{
	KindVerificationExhausted: true,
	KindFallbackInvalid:       true,
	KindPublish:               true,
}

// incidentFor maps a settled outcome to an incident. degradedBy is the verification
// error that forced a degraded success.
func incidentFor(outcome domainauth.CallbackOutcome, degradedBy error, at time.Time) (notify.SignInIncidentPayload, bool) {
	switch o := outcome.(type) {
	case domainauth.Success:
		if !o.Degraded {
			return notify.SignInIncidentPayload{}, false
		}
		p := notify.SignInIncidentPayload{
			Incident:   notify.IncidentDegradedSignIn,
			Kind:       string(KindVerificationExhausted),
			UserID:     o.Identity.ID,
			Role:       string(o.Identity.Role),
			Severity:   notify.SeverityWarning,
			OccurredAt: at,
		}
		var cbErr *Error
		if errors.As(degradedBy, &cbErr) {
			p.Attempts = cbErr.Attempts
		}
		if degradedBy != nil {
			p.Error = degradedBy.Error()
			p.ErrorClass = obserrors.Classify(degradedBy)
		}
		return p, true
	case domainauth.Failure:
		var cbErr *Error
		if !errors.As(o.Err, &cbErr) || !alertingKinds[cbErr.Kind] {
			return notify.SignInIncidentPayload{}, false
		}
		return notify.SignInIncidentPayload{
			Incident:   notify.IncidentSignInFailed,
			Kind:       string(cbErr.Kind),
			Attempts:   cbErr.Attempts,
			Error:      cbErr.Error(),
			ErrorClass: obserrors.Classify(cbErr),
			Severity:   notify.SeverityCritical,
			OccurredAt: at,
		}, true
	default:
		return notify.SignInIncidentPayload{}, false
	}
}
