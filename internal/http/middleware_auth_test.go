package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// stubIdentitySource answers CurrentIdentity from a fixed map.
type stubIdentitySource map[string]domainauth.Identity

func (s stubIdentitySource) CurrentIdentity(_ context.Context, sessionID string) (domainauth.Identity, error) {
	id, ok := s[sessionID]
	if !ok {
		return domainauth.Identity{}, errors.New("not signed in")
	}
	return id, nil
}

func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "sid-1", SessionIDFromContext(r.Context()))
		_, _ = w.Write([]byte(id.ID))
	})
}

func TestRequireAuth(t *testing.T) {
	src := stubIdentitySource{"sid-1": {ID: "42", Role: domainauth.RoleManager}}

	tests := []struct {
		name         string
		cookie       string
		accept       string
		path         string
		wantStatus   int
		wantLocation string
	}{
		{name: "signed in", cookie: "sid-1", path: "/manager", wantStatus: http.StatusOK},
		{name: "browser without cookie", path: "/manager", accept: "text/html", wantStatus: http.StatusSeeOther, wantLocation: "/auth/login"},
		{name: "browser unknown session", cookie: "nope", path: "/manager", wantStatus: http.StatusSeeOther, wantLocation: "/auth/login"},
		{name: "api without cookie", path: "/api/me", accept: "application/json", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieSession, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			RequireAuth(src, "/auth/login")(okHandler(t)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	src := stubIdentitySource{"sid-1": {ID: "42", Role: domainauth.RoleCustomer}}
	mw := RequireRole(src, "/auth/login", domainauth.RoleAdmin, domainauth.RoleManager)

	t.Run("browser forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sid-1"})
		w := httptest.NewRecorder()
		mw(okHandler(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("api forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
		req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sid-1"})
		w := httptest.NewRecorder()
		mw(okHandler(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "insufficient_permissions")
	})

	t.Run("allowed role", func(t *testing.T) {
		src["sid-1"] = domainauth.Identity{ID: "7", Role: domainauth.RoleManager}
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: CookieSession, Value: "sid-1"})
		w := httptest.NewRecorder()
		mw(okHandler(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "7", w.Body.String())
	})
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		path   string
		accept string
		want   bool
	}{
		{path: "/", want: true},
		{path: "/admin", accept: "text/html,application/xhtml+xml", want: true},
		{path: "/admin", accept: "application/json", want: false},
		{path: "/api/me", accept: "text/html", want: false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.accept != "" {
			req.Header.Set("Accept", tt.accept)
		}
		assert.Equal(t, tt.want, IsBrowserRequest(req), "%s %q", tt.path, tt.accept)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNoStore(t *testing.T) {
	w := httptest.NewRecorder()
	NoStore(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
