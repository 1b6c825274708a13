package shared

// Permissions guarding this service's own admin surface.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermOverridesEdit = "overrides.edit"
)

// CoreScopes lists every permission of the admin surface.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermOverridesEdit,
	}
}

// SystemRoleSeeds maps built-in role names to their permission sets. The
// admin role carries the full admin surface; member starts empty and is
// shaped per tenant.
func SystemRoleSeeds() map[string][]string {
	return map[string][]string{
		"admin":  CoreScopes(),
		"member": nil,
	}
}
