package rbac

import "slices"

// Service resolves roles to permission sets. The matrix is static; roles are
// assigned per user in users.role.
type Service struct {
	grants map[Role][]string
}

// NewService constructs the default role matrix.
func NewService() *Service {
	return &Service{grants: map[Role][]string{
		RoleAdmin:  adminPermissions,
		RoleStaff:  staffPermissions,
		RoleViewer: viewerPermissions,
	}}
}

// EffectivePermissions returns the sorted permission names of role. Unknown
// roles get none.
func (s *Service) EffectivePermissions(role Role) []string {
	perms := slices.Clone(s.grants[role])
	slices.Sort(perms)
	return perms
}
