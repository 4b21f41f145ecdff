package callback

import (
	"fmt"
	"net/url"
	"strings"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// Callback URL parameters. Query and fragment may both carry error and state.
const (
	ParamCode             = "code"
	ParamState            = "state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
	ParamAccessToken      = "access_token"
	ParamRefreshToken     = "refresh_token"
)

var transientParams = []string{
	ParamCode,
	ParamState,
	ParamError,
	ParamErrorDescription,
	ParamAccessToken,
	ParamRefreshToken,
	// returned alongside hash-fragment tokens by most providers
	"expires_in",
	"expires_at",
	"token_type",
	"type",
	"provider_token",
	"provider_refresh_token",
}

// ParseRedirect parses rawURL and extracts the redirect payload.
func ParseRedirect(rawURL string) (domainauth.RedirectPayload, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domainauth.RedirectPayload{}, fmt.Errorf("parse callback url: %w", err)
	}
	return ParseRedirectURL(u), nil
}

// ParseRedirectURL extracts the redirect payload from u.
//
// A provider error wins over everything else and the payload then carries only the
// error fields. An authorization code wins over fragment tokens.
func ParseRedirectURL(u *url.URL) domainauth.RedirectPayload {
	if u == nil {
		return domainauth.RedirectPayload{}
	}
	query := u.Query()
	fragment := parseFragment(u)

	if e := first(query, fragment, ParamError); e != "" {
		return domainauth.RedirectPayload{
			ProviderError:            e,
			ProviderErrorDescription: first(query, fragment, ParamErrorDescription),
		}
	}

	if code := strings.TrimSpace(query.Get(ParamCode)); code != "" {
		return domainauth.RedirectPayload{
			Code:  code,
			State: query.Get(ParamState),
		}
	}

	if access := strings.TrimSpace(fragment.Get(ParamAccessToken)); access != "" {
		return domainauth.RedirectPayload{
			HashAccessToken:  access,
			HashRefreshToken: strings.TrimSpace(fragment.Get(ParamRefreshToken)),
			State:            first(fragment, query, ParamState),
		}
	}

	return domainauth.RedirectPayload{}
}

// StripTransientParams removes every callback parameter from u's query and fragment.
func StripTransientParams(u *url.URL) {
	if u == nil {
		return
	}

	query := u.Query()
	for _, p := range transientParams {
		query.Del(p)
	}
	u.RawQuery = query.Encode()

	fragment := parseFragment(u)
	if len(fragment) == 0 {
		return
	}
	for _, p := range transientParams {
		fragment.Del(p)
	}
	u.Fragment = ""
	u.RawFragment = ""
	if len(fragment) > 0 {
		u.Fragment = fragment.Encode()
	}
}

func parseFragment(u *url.URL) url.Values {
	raw := strings.TrimPrefix(u.EscapedFragment(), "#")
	if raw == "" || !strings.Contains(raw, "=") {
		return url.Values{}
	}
	// ParseQuery keeps the pairs that parsed before a malformed one
	values, _ := url.ParseQuery(raw)
	return values
}

func first(primary, secondary url.Values, key string) string {
	if v := strings.TrimSpace(primary.Get(key)); v != "" {
		return v
	}
	return strings.TrimSpace(secondary.Get(key))
}
