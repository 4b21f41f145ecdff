package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/target/mmk-portal/internal/bootstrap"
	"github.com/target/mmk-portal/internal/observability/notify"
)

type fireIncidentOptions struct {
	Incident string
	Kind     string
	Severity string
	Message  string
}

func parseFireIncidentFlags(args []string) (fireIncidentOptions, error) {
	var opts fireIncidentOptions
	fs := flag.NewFlagSet("fire-test-incident", flag.ContinueOnError)
	fs.StringVar(&opts.Incident, "incident", notify.IncidentSignInFailed,
		"incident type: "+notify.IncidentSignInFailed+" or "+notify.IncidentDegradedSignIn)
	fs.StringVar(&opts.Kind, "kind", "manual_test", "incident kind")
	fs.StringVar(&opts.Severity, "severity", "", "override severity (critical, warning)")
	fs.StringVar(&opts.Message, "message", "", "error text to include")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	normalizeFireIncidentOptions(&opts)
	return opts, validateFireIncidentOptions(opts)
}

func normalizeFireIncidentOptions(opts *fireIncidentOptions) {
	opts.Incident = strings.TrimSpace(opts.Incident)
	opts.Kind = strings.TrimSpace(opts.Kind)
	opts.Severity = strings.ToLower(strings.TrimSpace(opts.Severity))
	if opts.Message == "" {
		opts.Message = fmt.Sprintf("manual test incident from %s@%s", currentUsername(), localHostname())
	}
}

func validateFireIncidentOptions(opts fireIncidentOptions) error {
	switch opts.Incident {
	case notify.IncidentSignInFailed, notify.IncidentDegradedSignIn:
	default:
		return fmt.Errorf("unknown -incident %q", opts.Incident)
	}
	if opts.Kind == "" {
		return errors.New("-kind is required")
	}
	switch opts.Severity {
	case "", notify.SeverityCritical, notify.SeverityWarning:
	default:
		return fmt.Errorf("unknown -severity %q", opts.Severity)
	}
	return nil
}

func buildTestIncident(opts fireIncidentOptions, now time.Time) notify.SignInIncidentPayload {
	severity := opts.Severity
	if severity == "" && opts.Incident == notify.IncidentDegradedSignIn {
		severity = notify.SeverityWarning
	}
	return notify.SignInIncidentPayload{
		Incident:   opts.Incident,
		Kind:       opts.Kind,
		Error:      opts.Message,
		ErrorClass: "manual_test",
		Severity:   severity,
		OccurredAt: now.UTC(),
		Metadata:   map[string]string{"source": "portal-admin"},
	}
}

func runFireTestIncident(cmdCtx *commandContext, args []string) error {
	opts, err := parseFireIncidentFlags(args)
	if err != nil {
		return err
	}

	// No throttle: an operator asking for a test page should always get one.
	svc := bootstrap.BuildFailureNotifier(bootstrap.NotifierDeps{
		Config:  cmdCtx.Config.Observability.Notifications,
		BaseURL: cmdCtx.Config.HTTP.BaseURL,
		Logger:  cmdCtx.Logger,
	})
	if !svc.Enabled() {
		return errors.New("no notification sinks enabled (set OBSERVABILITY_NOTIFICATIONS_ENABLED and a Slack or PagerDuty sink)")
	}

	payload := buildTestIncident(opts, time.Now())
	svc.NotifySignInIncident(cmdCtx.Ctx, payload)
	return writef(cmdCtx.Out, "sent %s/%s incident (delivery errors are logged per sink)\n", payload.Incident, payload.Kind)
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func localHostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
