package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/service"
	"github.com/target/mmk-portal/internal/service/callback"
)

const defaultSessionCookieTTL = 24 * time.Hour

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	NewCallback(in service.CallbackInput) (*callback.Callback, error)
	CurrentIdentity(ctx context.Context, sessionID string) (domainauth.Identity, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlers provides HTTP handlers for the sign-in flow.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	CookieDomain string
	// CallbackPath is where the identity provider lands the browser.
	CallbackPath string
	SignInPath   string
	// LogoutURL is the provider end-session endpoint; empty sends the user to SignInPath.
	LogoutURL  string
	SessionTTL time.Duration
	Logger     *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) jar() cookieJar { return cookieJar{Domain: h.CookieDomain} }

func (h *AuthHandlers) callbackPath() string {
	if h.CallbackPath != "" {
		return h.CallbackPath
	}
	return "/auth/callback"
}

func (h *AuthHandlers) signInPath() string {
	if h.SignInPath != "" {
		return h.SignInPath
	}
	return callback.DefaultSignInPath
}

func (h *AuthHandlers) sessionTTL() time.Duration {
	if h.SessionTTL > 0 {
		return h.SessionTTL
	}
	return defaultSessionCookieTTL
}

// Login starts a sign-in with the identity provider.
// GET /auth/login.
//
// The post-login destination is decided by the user's role, so no redirect target is accepted.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	result, err := h.Svc.BeginLogin(r.Context(), h.callbackPath())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("unable to start sign-in"),
		})
		return
	}

	jar := h.jar()
	jar.set(w, r, CookieState, result.State, oauthCookieTTL)
	jar.set(w, r, CookieNonce, result.Nonce, oauthCookieTTL)

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the provider redirect.
// GET /auth/callback.
//
// Query-string redirects (authorization code or provider error) are completed on the
// server. Anything else may carry its credentials in the URL fragment, which never
// reaches the server, so a landing page posts the full location back to CallbackSubmit.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("code") == "" && q.Get("error") == "" {
		renderPage(w, http.StatusOK, landingPage, landingData{
			Title:        "Signing in",
			CallbackPath: h.callbackPath(),
			SignInPath:   h.signInPath(),
			CSRFHeader:   DefaultCSRFHeaderName,
			CSRFToken:    GetCSRFToken(r),
		})
		return
	}

	res, ok := h.runCallback(w, r, r.URL.RequestURI())
	if !ok {
		return
	}
	switch {
	case res.duplicate:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case res.failure != nil:
		delay := res.instruction.Delay
		w.Header().Set("Refresh", strconv.Itoa(refreshSeconds(delay))+"; url="+res.redirectTo())
		renderPage(w, http.StatusUnauthorized, failurePage, failureData{
			Title:      "Sign-in failed",
			Message:    res.failure.Message,
			SignInPath: res.redirectTo(),
			DelayMS:    delay.Milliseconds(),
		})
	default:
		http.Redirect(w, r, res.redirectTo(), http.StatusSeeOther)
	}
}

type callbackSubmitRequest struct {
	URL string `json:"url"`
}

type callbackSubmitResponse struct {
	Status       string `json:"status"`
	RedirectTo   string `json:"redirect_to"`
	Kind         string `json:"kind,omitempty"`
	Message      string `json:"message,omitempty"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// CallbackSubmit completes a sign-in from the landing page.
// POST /auth/callback with {"url": "<full landing location>"}.
func (h *AuthHandlers) CallbackSubmit(w http.ResponseWriter, r *http.Request) {
	var req callbackSubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_url",
			Err:     errors.New("url is required"),
		})
		return
	}
	if _, err := url.Parse(req.URL); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_url",
			Err:     errors.New("url is not valid"),
		})
		return
	}

	res, ok := h.runCallback(w, r, req.URL)
	if !ok {
		return
	}
	switch {
	case res.duplicate:
		WriteJSON(w, http.StatusConflict, callbackSubmitResponse{Status: "duplicate", RedirectTo: "/"})
	case res.failure != nil:
		WriteJSON(w, http.StatusUnauthorized, callbackSubmitResponse{
			Status:       "error",
			RedirectTo:   res.redirectTo(),
			Kind:         res.failure.Kind,
			Message:      res.failure.Message,
			RetryAfterMS: res.instruction.Delay.Milliseconds(),
		})
	default:
		WriteJSON(w, http.StatusOK, callbackSubmitResponse{Status: "success", RedirectTo: res.redirectTo()})
	}
}

type callbackResult struct {
	instruction callbackInstruction
	failure     *domainauth.Failure
	duplicate   bool
}

func (c callbackResult) redirectTo() string {
	if c.instruction.Location != "" {
		return c.instruction.Location
	}
	return "/"
}

// runCallback drives one lifecycle bound to the request. The request context is the
// lifecycle's lifetime: a client that goes away tears it down. ok is false when a
// response has already been written or nothing should be written.
//
// Every lifecycle signs into a freshly minted session. The session cookie is only
// issued once sign-in succeeded, and any session the browser held before is ended.
func (h *AuthHandlers) runCallback(w http.ResponseWriter, r *http.Request, rawURL string) (callbackResult, bool) {
	ctx := r.Context()
	jar := h.jar()

	previous := cookieValue(r, CookieSession)
	sid := service.GenerateSessionID()

	resp := &callbackResponder{}
	cb, err := h.Svc.NewCallback(service.CallbackInput{
		SessionID:     sid,
		ExpectedState: cookieValue(r, CookieState),
		Nonce:         cookieValue(r, CookieNonce),
		Navigator:     resp,
		Notifier:      resp,
		Waiter:        resp,
	})
	if err != nil {
		h.logger().ErrorContext(ctx, "create callback failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "callback_failed",
			Err:     errors.New("unable to complete sign-in"),
		})
		return callbackResult{}, false
	}

	// state and nonce are single use whatever the outcome
	jar.clear(w, r, CookieState)
	jar.clear(w, r, CookieNonce)

	outcome, err := cb.Run(ctx, rawURL)
	switch {
	case errors.Is(err, callback.ErrDuplicateInvocation):
		return callbackResult{duplicate: true}, true
	case errors.Is(err, callback.ErrTornDown):
		h.logger().DebugContext(ctx, "sign-in callback abandoned by client")
		return callbackResult{}, false
	case err != nil:
		h.logger().ErrorContext(ctx, "sign-in callback failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "callback_failed",
			Err:     errors.New("unable to complete sign-in"),
		})
		return callbackResult{}, false
	}

	res := callbackResult{instruction: resp.instruction()}
	if f, isFailure := outcome.(domainauth.Failure); isFailure {
		res.failure = &f
		if res.instruction.Location == "" {
			res.instruction.Location = h.signInPath()
		}
		return res, true
	}

	jar.set(w, r, CookieSession, sid, h.sessionTTL())
	if previous != "" {
		if err := h.Svc.Logout(context.WithoutCancel(ctx), previous); err != nil {
			h.logger().WarnContext(ctx, "ending previous session failed", "error", err)
		}
	}
	return res, true
}

// refreshSeconds rounds d up to whole seconds for the Refresh header.
func refreshSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Logout handles the logout endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := cookieValue(r, CookieSession); sid != "" {
		if err := h.Svc.Logout(r.Context(), sid); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.jar().clear(w, r, CookieSession)

	target := h.LogoutURL
	if target == "" {
		target = h.signInPath()
	}

	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": target,
		})
		return
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sid := cookieValue(r, CookieSession)
	if sid == "" {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	identity, err := h.Svc.CurrentIdentity(r.Context(), sid)
	if err != nil {
		if !errors.Is(err, service.ErrNotSignedIn) {
			h.logger().WarnContext(r.Context(), "identity lookup failed", "error", err)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          identity,
	})
}

// Me returns the identity attached by RequireAuth.
// GET /api/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, identity)
}

// Home renders the role landing page for the signed-in identity.
func (h *AuthHandlers) Home(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentityFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, h.signInPath(), http.StatusSeeOther)
		return
	}
	name := identity.Name
	if name == "" {
		name = identity.Email
	}
	renderPage(w, http.StatusOK, homePage, homeData{
		Title:     "Portal",
		Name:      name,
		Role:      string(identity.Role),
		CSRFToken: GetCSRFToken(r),
	})
}
