package access

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freightdesk/freightdesk/internal/audit"
	"github.com/freightdesk/freightdesk/internal/shared"
)

const maxRoleNameLength = 120

// AuditRecorder persists a trail of role and override mutations.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Event) error
}

// Manager owns the lifecycle of roles and overrides and enforces the
// hierarchy invariants. Every mutation writes to the store first and
// invalidates the resolution cache afterwards, so no resolution that starts
// after a mutation returns can observe the pre-mutation state.
type Manager struct {
	store       Store
	invalidator Invalidator
	audit       AuditRecorder
	logger      *slog.Logger
}

// NewManager builds a Manager. audit may be nil.
func NewManager(store Store, invalidator Invalidator, auditRec AuditRecorder, logger *slog.Logger) *Manager {
	return &Manager{store: store, invalidator: invalidator, audit: auditRec, logger: logger}
}

// CreateRole inserts a new role owned by tenantID.
func (m *Manager) CreateRole(ctx context.Context, tenantID, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if err := m.validateName(ctx, tenantID, name, ""); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	role := &Role{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: normalizePermissions(permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.PutRole(ctx, role); err != nil {
		return nil, err
	}
	m.record(ctx, "role.create", role.ID, map[string]any{"name": role.Name, "tenant": tenantID})
	return role, nil
}

// UpdateRoleParams carries the optional fields of UpdateRole. A nil field
// is left untouched; a non-nil Permissions replaces the whole set.
type UpdateRoleParams struct {
	Name        *string
	Description *string
	Permissions *[]string
}

// UpdateRole applies params to an existing role. Replacing the permission
// set invalidates every user whose chain includes this role.
func (m *Manager) UpdateRole(ctx context.Context, roleID string, params UpdateRoleParams) (*Role, error) {
	role, err := m.mustGetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	permissionsChanged := false
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if foldName(name) != foldName(role.Name) {
			if err := m.validateName(ctx, role.TenantID, name, role.ID); err != nil {
				return nil, err
			}
		}
		role.Name = name
	}
	if params.Description != nil {
		role.Description = strings.TrimSpace(*params.Description)
	}
	if params.Permissions != nil {
		role.Permissions = normalizePermissions(*params.Permissions)
		permissionsChanged = true
	}
	role.UpdatedAt = time.Now().UTC()
	if err := m.store.PutRole(ctx, role); err != nil {
		return nil, err
	}
	if permissionsChanged {
		if err := m.invalidator.InvalidateRole(ctx, role.ID); err != nil {
			return nil, err
		}
	}
	m.record(ctx, "role.update", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// SetParentRole re-parents roleID under newParentID, or detaches it when
// newParentID is empty. The proposed parent's ancestor chain is walked
// before committing; finding roleID there means the move would create a
// cycle and the hierarchy is left untouched.
func (m *Manager) SetParentRole(ctx context.Context, roleID, newParentID string) error {
	role, err := m.mustGetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system role %s cannot be re-parented", ErrForbidden, role.Name)
	}
	if newParentID == roleID {
		return fmt.Errorf("%w: role %s cannot be its own parent", ErrCycle, roleID)
	}
	if newParentID != "" {
		parent, err := m.store.GetRole(ctx, newParentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return fmt.Errorf("%w: parent role %s", ErrNotFound, newParentID)
		}
		if parent.TenantID != role.TenantID {
			return fmt.Errorf("%w: parent role belongs to a different tenant", ErrValidation)
		}
		chain, err := roleChain(ctx, m.store, newParentID)
		if err != nil {
			return err
		}
		for _, ancestor := range chain {
			if ancestor.ID == roleID {
				return fmt.Errorf("%w: role %s is an ancestor of proposed parent %s", ErrCycle, roleID, newParentID)
			}
		}
	}
	role.ParentID = newParentID
	role.UpdatedAt = time.Now().UTC()
	if err := m.store.PutRole(ctx, role); err != nil {
		return err
	}
	// The users whose ancestor chain changed are exactly those assigned to
	// this role's subtree, which is the same set before and after the move.
	if err := m.invalidator.InvalidateRole(ctx, roleID); err != nil {
		return err
	}
	m.record(ctx, "role.reparent", roleID, map[string]any{"parent": newParentID})
	return nil
}

// DeleteRole removes a role. Deletion never orphans: child roles and
// assigned users must be moved away first.
func (m *Manager) DeleteRole(ctx context.Context, roleID string) error {
	role, err := m.mustGetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system role %s cannot be deleted", ErrForbidden, role.Name)
	}
	children, err := m.store.GetRolesByParent(ctx, roleID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: role %s still has %d child roles", ErrConflict, role.Name, len(children))
	}
	userIDs, err := m.store.ListUserIDsByRole(ctx, roleID)
	if err != nil {
		return err
	}
	if len(userIDs) > 0 {
		return fmt.Errorf("%w: role %s still has %d assigned users", ErrConflict, role.Name, len(userIDs))
	}
	if err := m.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	m.record(ctx, "role.delete", roleID, map[string]any{"name": role.Name})
	return nil
}

// GetRole fetches a single role.
func (m *Manager) GetRole(ctx context.Context, roleID string) (*Role, error) {
	return m.mustGetRole(ctx, roleID)
}

// ListRoles returns every role of a tenant.
func (m *Manager) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	return m.store.ListRoles(ctx, tenantID)
}

// GetRoleWithDetails returns the role plus the flattened set inherited from
// its ancestors.
func (m *Manager) GetRoleWithDetails(ctx context.Context, roleID string) (*RoleDetail, error) {
	role, err := m.mustGetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	inherited := make(map[string]struct{})
	if role.ParentID != "" {
		chain, err := roleChain(ctx, m.store, role.ParentID)
		if err != nil {
			return nil, err
		}
		for _, ancestor := range chain {
			for _, p := range ancestor.Permissions {
				inherited[p] = struct{}{}
			}
		}
	}
	return &RoleDetail{Role: *role, Inherited: listFromSet(inherited)}, nil
}

// GetEffectivePermissions unions the role's own permissions with every
// ancestor's, walking ParentID upward to the root.
func (m *Manager) GetEffectivePermissions(ctx context.Context, roleID string) ([]string, error) {
	chain, err := roleChain(ctx, m.store, roleID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, role := range chain {
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}
	return listFromSet(set), nil
}

// SetOverride stores a GRANT or REVOKE for one (user, permission) pair,
// replacing any previous override for the same pair, then invalidates the
// user's cached set.
func (m *Manager) SetOverride(ctx context.Context, ov Override) error {
	ov.Permission = strings.ToLower(strings.TrimSpace(ov.Permission))
	if ov.UserID == "" || ov.Permission == "" {
		return fmt.Errorf("%w: override requires user and permission", ErrValidation)
	}
	if ov.Type != OverrideGrant && ov.Type != OverrideRevoke {
		return fmt.Errorf("%w: override type must be GRANT or REVOKE", ErrValidation)
	}
	if ov.CreatedAt.IsZero() {
		ov.CreatedAt = time.Now().UTC()
	}
	if err := m.store.PutOverride(ctx, &ov); err != nil {
		return err
	}
	if err := m.invalidator.InvalidateUser(ctx, ov.UserID); err != nil {
		return err
	}
	m.record(ctx, "override.set", ov.UserID, map[string]any{
		"permission": ov.Permission,
		"type":       string(ov.Type),
		"reason":     ov.Reason,
		"granted_by": ov.GrantedBy,
	})
	return nil
}

// RemoveOverride deletes the override for (userID, permission) and
// invalidates the user's cached set.
func (m *Manager) RemoveOverride(ctx context.Context, userID, permission string) error {
	permission = strings.ToLower(strings.TrimSpace(permission))
	if userID == "" || permission == "" {
		return fmt.Errorf("%w: override requires user and permission", ErrValidation)
	}
	if err := m.store.DeleteOverride(ctx, userID, permission); err != nil {
		return err
	}
	if err := m.invalidator.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	m.record(ctx, "override.remove", userID, map[string]any{"permission": permission})
	return nil
}

// EnsureSystemRoles idempotently seeds the built-in roles of a tenant.
func (m *Manager) EnsureSystemRoles(ctx context.Context, tenantID string, seeds map[string][]string) error {
	for name, perms := range seeds {
		existing, err := m.store.GetRoleByName(ctx, tenantID, foldName(name))
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		now := time.Now().UTC()
		role := &Role{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Name:        name,
			Description: "built-in role",
			Permissions: normalizePermissions(perms),
			IsSystem:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.store.PutRole(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) mustGetRole(ctx context.Context, roleID string) (*Role, error) {
	role, err := m.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	return role, nil
}

func (m *Manager) validateName(ctx context.Context, tenantID, name, selfID string) error {
	if name == "" {
		return fmt.Errorf("%w: role name required", ErrValidation)
	}
	if len(name) > maxRoleNameLength {
		return fmt.Errorf("%w: role name exceeds %d characters", ErrValidation, maxRoleNameLength)
	}
	existing, err := m.store.GetRoleByName(ctx, tenantID, foldName(name))
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return fmt.Errorf("%w: role name %q already exists", ErrValidation, name)
	}
	return nil
}

func (m *Manager) record(ctx context.Context, action, entityID string, meta map[string]any) {
	if m.audit == nil {
		return
	}
	err := m.audit.Record(ctx, audit.Event{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "access",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil && m.logger != nil {
		m.logger.Warn("record audit event", slog.String("action", action), slog.Any("error", err))
	}
}
