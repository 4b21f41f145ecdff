package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse   = `{"status":"ok"}`
	readyProbeBudget = 2 * time.Second
)

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadyFunc reports whether a dependency the portal needs is reachable.
type ReadyFunc func(ctx context.Context) error

// readyHandler runs every check under a short budget; any failure reports 503.
func readyHandler(checks map[string]ReadyFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeBudget)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		if code == http.StatusOK {
			WriteJSON(w, code, map[string]any{"status": "ok", "checks": status})
			return
		}
		WriteJSON(w, code, map[string]any{"status": "unavailable", "checks": status})
	}
}
