package authroles

import (
	"fmt"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
)

// StaticRoleMapper maps IdP group membership to a portal role.
// When several groups match, the most privileged role (earliest in domainauth.Roles) wins.
type StaticRoleMapper struct {
	GroupRoles map[string]domainauth.Role
}

// NewStaticRoleMapper builds a mapper from group name to role name. Role names are parsed with domainauth.ParseRole.
func NewStaticRoleMapper(groupRoles map[string]string) (StaticRoleMapper, error) {
	m := StaticRoleMapper{GroupRoles: make(map[string]domainauth.Role, len(groupRoles))}
	for group, name := range groupRoles {
		r, ok := domainauth.ParseRole(name)
		if !ok {
			return StaticRoleMapper{}, fmt.Errorf("group %q: unknown role %q", group, name)
		}
		m.GroupRoles[group] = r
	}
	return m, nil
}

// Map returns the role for groups, or false when no group is mapped.
func (m StaticRoleMapper) Map(groups []string) (domainauth.Role, bool) {
	if len(m.GroupRoles) == 0 {
		return "", false
	}
	matched := make(map[domainauth.Role]bool, len(groups))
	for _, g := range groups {
		if r, ok := m.GroupRoles[g]; ok && r.Valid() {
			matched[r] = true
		}
	}
	for _, r := range domainauth.Roles() {
		if matched[r] {
			return r, true
		}
	}
	return "", false
}
