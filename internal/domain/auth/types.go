package auth

// Package auth contains domain-level types for the sign-in callback handshake.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents a portal authorization role.
// Keep string form for easy persistence and JSON exchange with the backend.
type Role string

const (
	RoleAdmin                  Role = "ADMIN"
	RoleManager                Role = "MANAGER"
	RoleLeadSale               Role = "LEAD_SALE"
	RoleStaffSale              Role = "STAFF_SALE"
	RoleStaffPurchaser         Role = "STAFF_PURCHASER"
	RoleStaffWarehouseForeign  Role = "STAFF_WAREHOUSE_FOREIGN"
	RoleStaffWarehouseDomestic Role = "STAFF_WAREHOUSE_DOMESTIC"
	RoleCustomer               Role = "CUSTOMER"
)

// Roles returns every known role in declaration order.
func Roles() []Role {
	return []Role{
		RoleAdmin,
		RoleManager,
		RoleLeadSale,
		RoleStaffSale,
		RoleStaffPurchaser,
		RoleStaffWarehouseForeign,
		RoleStaffWarehouseDomestic,
		RoleCustomer,
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalizes s (case-insensitive, '-' or ' ' accepted as '_') and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	r := Role(v)
	if !r.Valid() {
		return "", false
	}
	return r, true
}

// Identity is the application's view of a signed-in user.
// It is produced either by the backend (authoritative) or built from provider data (degraded).
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// ProviderSession is the session held by the identity provider client.
// The callback flow only reads it.
type ProviderSession struct {
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"refresh_token,omitempty"`
	ExpiresAt        int64             `json:"expires_at"` // epoch seconds
	ProviderUserID   string            `json:"provider_user_id"`
	ProviderEmail    string            `json:"provider_email"`
	ProviderMetadata map[string]string `json:"provider_metadata,omitempty"`
}

// Expired reports whether the session expires at or before now.
func (s ProviderSession) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

// Metadata returns the metadata value for key, or empty string.
func (s ProviderSession) Metadata(key string) string {
	if s.ProviderMetadata == nil {
		return ""
	}
	return strings.TrimSpace(s.ProviderMetadata[key])
}

// RedirectPayload is what the landing URL carried back from the identity provider.
// It is derived once and never mutated.
type RedirectPayload struct {
	ProviderError            string
	ProviderErrorDescription string
	Code                     string
	State                    string
	HashAccessToken          string
	HashRefreshToken         string
}

// HasProviderError reports whether the provider redirected with an error.
func (p RedirectPayload) HasProviderError() bool { return p.ProviderError != "" }

// HasCredentials reports whether the payload carries a code or fragment tokens to exchange.
func (p RedirectPayload) HasCredentials() bool {
	return p.Code != "" || p.HashAccessToken != ""
}
