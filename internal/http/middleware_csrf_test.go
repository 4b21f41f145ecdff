package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csrfHandler() http.Handler {
	return CSRFProtection(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetCSRFToken(r)))
	}))
}

func issuedCSRFCookie(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCSRFCookieName {
			return c
		}
	}
	t.Fatal("csrf cookie not issued")
	return nil
}

func TestCSRFProtection_SafeMethodsIssueToken(t *testing.T) {
	h := csrfHandler()
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}

	c := issuedCSRFCookie(t, h)
	assert.False(t, c.HttpOnly, "the landing page script reads the token")
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.NotEmpty(t, c.Value)
}

func TestCSRFProtection_ExistingCookieIsReused(t *testing.T) {
	h := csrfHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: "known"})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, "known", rec.Body.String())
}

func TestCSRFProtection_SecureBehindProxy(t *testing.T) {
	h := csrfHandler()
	req := httptest.NewRequest(http.MethodGet, "http://portal.example.com/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
}

func TestCSRFProtection_PostValidation(t *testing.T) {
	h := csrfHandler()
	token := issuedCSRFCookie(t, h).Value

	tests := []struct {
		name   string
		build  func() *http.Request
		status int
	}{
		{
			name:   "no cookie",
			build:  func() *http.Request { return httptest.NewRequest(http.MethodPost, "/", nil) },
			status: http.StatusForbidden,
		},
		{
			name: "cookie without header",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
				r.Header.Set("Content-Type", "application/json")
				r.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: token})
				return r
			},
			status: http.StatusForbidden,
		},
		{
			name: "mismatched header",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", nil)
				r.Header.Set(DefaultCSRFHeaderName, "other")
				r.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: token})
				return r
			},
			status: http.StatusForbidden,
		},
		{
			name: "matching header",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
				r.Header.Set("Content-Type", "application/json")
				r.Header.Set(DefaultCSRFHeaderName, token)
				r.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: token})
				return r
			},
			status: http.StatusOK,
		},
		{
			name: "matching form field",
			build: func() *http.Request {
				form := url.Values{"csrf_token": {token}}
				r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				r.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: token})
				return r
			},
			status: http.StatusOK,
		},
		{
			name: "form field ignored for json bodies",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/?csrf_token="+token, strings.NewReader(`{}`))
				r.Header.Set("Content-Type", "application/json")
				r.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: token})
				return r
			},
			status: http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.build())
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGetCSRFToken_NoMiddleware(t *testing.T) {
	assert.Empty(t, GetCSRFToken(httptest.NewRequest(http.MethodGet, "/", nil)))
}
