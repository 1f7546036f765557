package authroles

import (
	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

// NormalizingRoleMapper maps role membership rows to a normalized role set.
// Aliases rename roles after normalization (for example "platform-admins" to
// "admin"); users without any role get {"user"}.
type NormalizingRoleMapper struct {
	Aliases map[string]string
}

// NewNormalizingRoleMapper builds a mapper whose alias keys and values are normalized.
func NewNormalizingRoleMapper(aliases map[string]string) NormalizingRoleMapper {
	norm := make(map[string]string, len(aliases))
	for from, to := range aliases {
		from, to = domainauth.NormalizeRole(from), domainauth.NormalizeRole(to)
		if from == "" || to == "" {
			continue
		}
		norm[from] = to
	}
	return NormalizingRoleMapper{Aliases: norm}
}

func (m NormalizingRoleMapper) Map(rows []domainauth.RoleRow) domainauth.RoleSet {
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name := domainauth.NormalizeRole(row.Name)
		if alias, ok := m.Aliases[name]; ok {
			name = alias
		}
		names = append(names, name)
	}
	set := domainauth.NewRoleSet(names...)
	if len(set) == 0 {
		return domainauth.DefaultRoles()
	}
	return set
}
