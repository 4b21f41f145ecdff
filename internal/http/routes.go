package httpx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth         AuthServiceInterface
	CookieDomain string
	SignInPath   string
	CallbackPath string
	LogoutURL    string
	SessionTTL   time.Duration
	// LandingPaths are the pages served to signed-in users.
	LandingPaths []string
	// LandingRoles restricts a landing path to the roles routed there. Paths without
	// an entry, and the root, are open to any signed-in identity.
	LandingRoles map[string][]domainauth.Role
	// Ready holds the named readiness checks behind /readyz.
	Ready  map[string]ReadyFunc
	Logger *slog.Logger
}

// NewRouter creates and configures the portal router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		CookieDomain: services.CookieDomain,
		CallbackPath: services.CallbackPath,
		SignInPath:   services.SignInPath,
		LogoutURL:    services.LogoutURL,
		SessionTTL:   services.SessionTTL,
		Logger:       logger,
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Ready, logger))

	registerAuthRoutes(mux, authHandlers)
	registerLandingRoutes(mux, authHandlers, services.LandingPaths, services.LandingRoles)

	var handler http.Handler = mux
	handler = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})(handler)
	handler = BrowserDetection()(handler)
	handler = Logging(logger)(handler)
	return Recover(logger)(handler)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.Handle("GET "+h.signInPath(), NoStore(http.HandlerFunc(h.Login)))
	mux.Handle("GET "+h.callbackPath(), NoStore(http.HandlerFunc(h.Callback)))
	mux.Handle("POST "+h.callbackPath(), NoStore(http.HandlerFunc(h.CallbackSubmit)))
	mux.Handle("POST /auth/logout", NoStore(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/status", NoStore(http.HandlerFunc(h.Status)))
	mux.Handle("GET /api/me", RequireAuth(h.Svc, h.signInPath())(http.HandlerFunc(h.Me)))
}

// registerLandingRoutes serves the role landing pages. The root path is always
// registered since it is where unmapped roles land.
func registerLandingRoutes(mux *http.ServeMux, h *AuthHandlers, paths []string, roles map[string][]domainauth.Role) {
	home := http.HandlerFunc(h.Home)

	mux.Handle("GET /{$}", RequireAuth(h.Svc, h.signInPath())(home))
	seen := map[string]bool{"/": true}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || !strings.HasPrefix(p, "/") || seen[p] || h.reservedPath(p) {
			continue
		}
		seen[p] = true
		mux.Handle("GET "+p, RequireRole(h.Svc, h.signInPath(), roles[p]...)(home))
	}
}

func (h *AuthHandlers) reservedPath(p string) bool {
	switch p {
	case "/healthz", "/readyz", h.signInPath(), h.callbackPath():
		return true
	}
	return strings.HasPrefix(p, "/auth/") || strings.HasPrefix(p, "/api/")
}
