package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	mocks "github.com/target/mmk-portal/internal/mocks/auth"
	"github.com/target/mmk-portal/internal/observability/notify"
)

func captureSink(mu *sync.Mutex, received *[]notify.SignInIncidentPayload) notify.Sink {
	return notify.SinkFunc(func(_ context.Context, payload notify.SignInIncidentPayload) error {
		mu.Lock()
		defer mu.Unlock()
		*received = append(*received, payload)
		return nil
	})
}

func TestServiceNotifySignInIncident(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.SignInIncidentPayload
	)
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: captureSink(&mu, &received)}},
	})

	svc.NotifySignInIncident(context.Background(), notify.SignInIncidentPayload{
		Incident: notify.IncidentSignInFailed,
		Kind:     "publish_failed",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
	svc.NotifySignInIncident(context.Background(), notify.SignInIncidentPayload{})
}

func TestServiceLogsErrors(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.SignInIncidentPayload
	)
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(context.Context, notify.SignInIncidentPayload) error {
					return errors.New("boom")
				}),
			},
			{Name: "capture", Sink: captureSink(&mu, &received)},
		},
	})

	svc.NotifySignInIncident(context.Background(), notify.SignInIncidentPayload{Kind: "publish_failed"})

	if len(received) != 1 {
		t.Fatalf("a failing sink must not block the others, got %d deliveries", len(received))
	}
}

func TestServiceThrottlesRepeatedIncidents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.SignInIncidentPayload
	)
	svc := NewService(Options{
		Sinks:    []SinkRegistration{{Name: "capture", Sink: captureSink(&mu, &received)}},
		Throttle: &mocks.MemoryGuard{},
	})
	ctx := context.Background()

	degraded := notify.SignInIncidentPayload{Incident: notify.IncidentDegradedSignIn, Kind: "verification_exhausted"}
	svc.NotifySignInIncident(ctx, degraded)
	svc.NotifySignInIncident(ctx, degraded)
	svc.NotifySignInIncident(ctx, notify.SignInIncidentPayload{Incident: notify.IncidentSignInFailed, Kind: "publish_failed"})

	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
}

type failingGuard struct{}

func (failingGuard) Acquire(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestServiceThrottleErrorStillNotifies(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.SignInIncidentPayload
	)
	svc := NewService(Options{
		Sinks:    []SinkRegistration{{Name: "capture", Sink: captureSink(&mu, &received)}},
		Throttle: failingGuard{},
	})

	svc.NotifySignInIncident(context.Background(), notify.SignInIncidentPayload{Kind: "publish_failed"})

	if len(received) != 1 {
		t.Fatalf("expected delivery despite throttle error, got %d", len(received))
	}
}
