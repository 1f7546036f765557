package auth

import (
	"slices"
	"strings"
)

// RoleUser is the role every authenticated user holds when no membership exists.
const RoleUser = "user"

// adminRoles are the role names that grant admin access, in normalized form.
var adminRoles = map[string]struct{}{
	"admin":       {},
	"super admin": {},
	"superadmin":  {},
	"super_admin": {},
}

// NormalizeRole lower-cases and trims a role name.
func NormalizeRole(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RoleSet is a sorted set of normalized role names.
type RoleSet []string

// NewRoleSet normalizes, de-duplicates and sorts names. Blank names are dropped.
func NewRoleSet(names ...string) RoleSet {
	set := make(RoleSet, 0, len(names))
	for _, n := range names {
		if n = NormalizeRole(n); n != "" {
			set = append(set, n)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// DefaultRoles is the role set assigned when a user has no role rows.
func DefaultRoles() RoleSet { return RoleSet{RoleUser} }

// Has reports whether the set contains role. Members and role are compared normalized.
func (s RoleSet) Has(role string) bool {
	role = NormalizeRole(role)
	for _, r := range s {
		if NormalizeRole(r) == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the set intersects the admin role names.
func (s RoleSet) IsAdmin() bool {
	for _, r := range s {
		if _, ok := adminRoles[NormalizeRole(r)]; ok {
			return true
		}
	}
	return false
}

// Clone returns a copy of the set.
func (s RoleSet) Clone() RoleSet {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
