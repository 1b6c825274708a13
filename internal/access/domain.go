package access

import (
	"context"
	"time"
)

// OverrideType distinguishes the two kinds of per-user overrides.
type OverrideType string

const (
	// OverrideGrant adds a permission on top of whatever the role chain yields.
	OverrideGrant OverrideType = "GRANT"
	// OverrideRevoke removes a permission regardless of where it was granted.
	OverrideRevoke OverrideType = "REVOKE"
)

// Role is a tenant-scoped bundle of permissions. A role with a ParentID
// inherits every permission of its ancestor chain.
type Role struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	ParentID    string // empty for root roles
	Permissions []string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleDetail pairs a role with the flattened permission set inherited from
// its ancestors, for admin UIs and for inspecting resolution without the
// cache in the way.
type RoleDetail struct {
	Role
	Inherited []string
}

// Override is a user-specific GRANT or REVOKE of a single permission. It
// always outranks anything derived from the user's role.
type Override struct {
	UserID     string
	Permission string
	Type       OverrideType
	Reason     string
	GrantedBy  string
	CreatedAt  time.Time
}

// Store is the durable source of truth for roles, assignments and
// overrides. The cache layered on top is always a disposable projection.
//
// Lookups return the zero value (nil role, empty string) without an error
// when the record does not exist; mutations are tenant-scoped by the
// records they carry.
type Store interface {
	GetRole(ctx context.Context, roleID string) (*Role, error)
	GetRoleByName(ctx context.Context, tenantID, name string) (*Role, error)
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	GetRolesByParent(ctx context.Context, parentID string) ([]Role, error)
	PutRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID string) error

	GetUserRole(ctx context.Context, userID string) (string, error)
	SetUserRole(ctx context.Context, userID, roleID string) error
	ListUserIDsByRole(ctx context.Context, roleID string) ([]string, error)

	GetOverridesForUser(ctx context.Context, userID string) ([]Override, error)
	PutOverride(ctx context.Context, ov *Override) error
	DeleteOverride(ctx context.Context, userID, permission string) error
}

// PermissionChecker is the point-query surface consumed by authorization
// gates.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// Invalidator drops cached effective-permission sets after a mutation.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateRole(ctx context.Context, roleID string) error
}
