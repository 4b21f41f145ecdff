package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/mmk-portal/internal/observability/notify"
	"github.com/target/mmk-portal/internal/ports"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Throttle, when set, lets one notification per incident and kind through
	// for as long as its claims live. Throttle errors never suppress a notification.
	Throttle ports.ExecutionGuard
}

// Service dispatches sign-in incidents to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	throttle ports.ExecutionGuard
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger:   logger,
		sinks:    sinks,
		throttle: opts.Throttle,
	}
}

// NotifySignInIncident fans the incident out to all sinks and waits for them.
func (s *Service) NotifySignInIncident(ctx context.Context, payload notify.SignInIncidentPayload) {
	if len(s.sinks) == 0 {
		return
	}
	if s.throttled(ctx, payload) {
		s.logger.DebugContext(ctx, "sign-in incident notification throttled",
			"incident", payload.Incident,
			"kind", payload.Kind,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendSignInIncident(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"incident", payload.Incident,
					"kind", payload.Kind,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

func (s *Service) throttled(ctx context.Context, payload notify.SignInIncidentPayload) bool {
	if s.throttle == nil {
		return false
	}
	ok, err := s.throttle.Acquire(ctx, payload.Incident+":"+payload.Kind)
	if err != nil {
		s.logger.WarnContext(ctx, "incident throttle unavailable", "error", err)
		return false
	}
	return !ok
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
