package authroles

import (
	"fmt"
	"sort"
	"strings"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/ports"
)

// DefaultRoutes is the landing screen of each role.
func DefaultRoutes() map[domainauth.Role]string {
	return map[domainauth.Role]string{
		domainauth.RoleAdmin:                  "/admin",
		domainauth.RoleManager:                "/manager",
		domainauth.RoleLeadSale:               "/sales",
		domainauth.RoleStaffSale:              "/sales",
		domainauth.RoleStaffPurchaser:         "/purchasing",
		domainauth.RoleStaffWarehouseForeign:  "/warehouse/foreign",
		domainauth.RoleStaffWarehouseDomestic: "/warehouse/domestic",
		domainauth.RoleCustomer:               "/",
	}
}

// StaticRouteTable maps roles to landing paths.
type StaticRouteTable struct {
	routes map[domainauth.Role]string
}

var _ ports.RouteTable = StaticRouteTable{}

// NewStaticRouteTable builds a table from DefaultRoutes with overrides applied.
// Override keys are role names in any accepted spelling; values must be absolute paths.
func NewStaticRouteTable(overrides map[string]string) (StaticRouteTable, error) {
	routes := DefaultRoutes()
	for name, path := range overrides {
		role, ok := domainauth.ParseRole(name)
		if !ok {
			return StaticRouteTable{}, fmt.Errorf("unknown role %q in route overrides", name)
		}
		path = strings.TrimSpace(path)
		if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
			return StaticRouteTable{}, fmt.Errorf("route for %s must be an absolute path, got %q", role, path)
		}
		routes[role] = path
	}
	return StaticRouteTable{routes: routes}, nil
}

// Lookup returns the landing path for role.
func (t StaticRouteTable) Lookup(role domainauth.Role) (string, bool) {
	path, ok := t.routes[role]
	return path, ok
}

// Paths returns the distinct landing paths, sorted.
func (t StaticRouteTable) Paths() []string {
	seen := make(map[string]bool, len(t.routes))
	out := make([]string, 0, len(t.routes))
	for _, p := range t.routes {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Roles returns, for each landing path, the roles that land there, sorted.
func (t StaticRouteTable) Roles() map[string][]domainauth.Role {
	out := make(map[string][]domainauth.Role, len(t.routes))
	for role, p := range t.routes {
		out[p] = append(out[p], role)
	}
	for _, roles := range out {
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	}
	return out
}
