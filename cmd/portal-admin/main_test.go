package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-portal/config"
	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/observability/notify"
)

func newTestContext(t *testing.T) (*commandContext, *miniredis.Miniredis, *bytes.Buffer) {
	t.Helper()
	mr := miniredis.RunT(t)
	out := &bytes.Buffer{}
	cfg := config.AppConfig{Session: config.SessionConfig{TTL: time.Hour, KeyPrefix: "session:"}}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Out:    out,
		Redis: func(context.Context) (redis.UniversalClient, error) {
			return redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil
		},
	}, mr, out
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}

func TestListSessions(t *testing.T) {
	cmdCtx, mr, out := newTestContext(t)
	raw, err := json.Marshal(domainauth.Identity{ID: "u1", Email: "ann@example.com", Role: domainauth.RoleAdmin})
	require.NoError(t, err)
	mr.HSet("session:abc", "user", string(raw))
	mr.SetTTL("session:abc", 30*time.Minute)
	mr.HSet("session:pending", "provider_session", "{}")

	require.NoError(t, runListSessions(cmdCtx, nil))

	text := out.String()
	assert.Contains(t, text, "abc")
	assert.Contains(t, text, "ann@example.com")
	assert.Contains(t, text, "ADMIN")
	assert.Contains(t, text, "30m0s")
	assert.Contains(t, text, "pending")
	assert.Contains(t, text, "no expiry")
	assert.Contains(t, text, "Sessions shown: 2")
}

func TestListSessionsLimit(t *testing.T) {
	cmdCtx, mr, out := newTestContext(t)
	for _, id := range []string{"a", "b", "c"} {
		mr.HSet("session:"+id, "user", "{}")
	}

	require.NoError(t, runListSessions(cmdCtx, []string{"-limit", "1"}))
	assert.Contains(t, out.String(), "Sessions shown: 1")

	assert.Error(t, runListSessions(cmdCtx, []string{"-limit", "-1"}))
}

func TestRevokeSession(t *testing.T) {
	cmdCtx, mr, _ := newTestContext(t)
	mr.HSet("session:abc", "user", "{}")

	assert.ErrorIs(t, runRevokeSession(cmdCtx, []string{"-id", "abc"}), errConfirmationRequired)
	assert.True(t, mr.Exists("session:abc"))

	require.NoError(t, runRevokeSession(cmdCtx, []string{"-id", "abc", "-yes"}))
	assert.False(t, mr.Exists("session:abc"))

	assert.Error(t, runRevokeSession(cmdCtx, []string{"-yes"}))
}

func TestClearGuardKeys(t *testing.T) {
	cmdCtx, mr, out := newTestContext(t)
	require.NoError(t, mr.Set("callback-guard:abc", "1"))
	require.NoError(t, mr.Set("incident-throttle:sign_in_failed:publish_failed", "1"))

	assert.ErrorIs(t, runClearGuardKeys(cmdCtx, nil), errConfirmationRequired)

	require.NoError(t, runClearGuardKeys(cmdCtx, []string{"-dry-run"}))
	assert.Contains(t, out.String(), "would delete callback-guard:abc")
	assert.True(t, mr.Exists("callback-guard:abc"))

	require.NoError(t, runClearGuardKeys(cmdCtx, []string{"-yes"}))
	assert.False(t, mr.Exists("callback-guard:abc"))
	assert.True(t, mr.Exists("incident-throttle:sign_in_failed:publish_failed"))

	require.NoError(t, runClearGuardKeys(cmdCtx, []string{"-yes", "-throttle"}))
	assert.False(t, mr.Exists("incident-throttle:sign_in_failed:publish_failed"))
}

func TestListGuardKeys(t *testing.T) {
	cmdCtx, mr, out := newTestContext(t)

	require.NoError(t, runListGuardKeys(cmdCtx, nil))
	assert.Contains(t, out.String(), "(no keys found)")

	out.Reset()
	require.NoError(t, mr.Set("callback-guard:abc", "1"))
	mr.SetTTL("callback-guard:abc", time.Minute)
	require.NoError(t, runListGuardKeys(cmdCtx, nil))
	assert.Contains(t, out.String(), "callback-guard:abc (TTL: 1m0s)")
	assert.Contains(t, out.String(), "Total keys: 1")
}

func TestParseFireIncidentFlags(t *testing.T) {
	opts, err := parseFireIncidentFlags([]string{"-incident", notify.IncidentDegradedSignIn, "-kind", "verification_exhausted"})
	require.NoError(t, err)
	p := buildTestIncident(opts, time.Unix(0, 0))
	assert.Equal(t, notify.SeverityWarning, p.Severity)
	assert.Equal(t, "portal-admin", p.Metadata["source"])
	assert.NotEmpty(t, p.Error)

	opts, err = parseFireIncidentFlags(nil)
	require.NoError(t, err)
	assert.Empty(t, buildTestIncident(opts, time.Now()).Severity, "the notifier defaults failures to critical")

	_, err = parseFireIncidentFlags([]string{"-incident", "outage"})
	assert.Error(t, err)
	_, err = parseFireIncidentFlags([]string{"-severity", "info"})
	assert.Error(t, err)
}

func TestFireTestIncidentRequiresSinks(t *testing.T) {
	cmdCtx, _, _ := newTestContext(t)
	err := runFireTestIncident(cmdCtx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notification sinks")
}

func TestFormatTTL(t *testing.T) {
	assert.Equal(t, "no expiry", formatTTL(-1))
	assert.Equal(t, "expired", formatTTL(-2))
	assert.Equal(t, "1m30s", formatTTL(90*time.Second))
}
