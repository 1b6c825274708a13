package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestManager(store *memoryStore) (*Manager, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	return NewManager(store, inv, nil, nil), inv
}

func TestCreateRoleNormalizesPermissions(t *testing.T) {
	store := newMemoryStore()
	mgr, _ := newTestManager(store)

	role, err := mgr.CreateRole(context.Background(), "t1", "  Dispatcher ", "desc", []string{"Shipments.View", "shipments.view", " shipments.edit ", ""})
	require.NoError(t, err)
	require.Equal(t, "Dispatcher", role.Name)
	require.Equal(t, []string{"shipments.edit", "shipments.view"}, role.Permissions)
	require.NotEmpty(t, role.ID)
}

func TestCreateRoleRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	store := newMemoryStore()
	mgr, _ := newTestManager(store)
	ctx := context.Background()

	_, err := mgr.CreateRole(ctx, "t1", "Dispatcher", "", nil)
	require.NoError(t, err)

	_, err = mgr.CreateRole(ctx, "t1", "dispatcher", "", nil)
	require.ErrorIs(t, err, ErrValidation)

	// Same name in another tenant is fine.
	_, err = mgr.CreateRole(ctx, "t2", "dispatcher", "", nil)
	require.NoError(t, err)
}

func TestCreateRoleRejectsEmptyName(t *testing.T) {
	store := newMemoryStore()
	mgr, _ := newTestManager(store)

	_, err := mgr.CreateRole(context.Background(), "t1", "   ", "", nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateRolePermissionsInvalidatesRole(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "r1", TenantID: "t1", Name: "Ops", Permissions: []string{"shipments.view"}})
	mgr, inv := newTestManager(store)

	perms := []string{"shipments.view", "shipments.edit"}
	role, err := mgr.UpdateRole(context.Background(), "r1", UpdateRoleParams{Permissions: &perms})
	require.NoError(t, err)
	require.Equal(t, []string{"shipments.edit", "shipments.view"}, role.Permissions)
	require.Equal(t, []string{"r1"}, inv.roles)
}

func TestUpdateRoleNameOnlyDoesNotInvalidate(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "r1", TenantID: "t1", Name: "Ops"})
	mgr, inv := newTestManager(store)

	name := "Operations"
	_, err := mgr.UpdateRole(context.Background(), "r1", UpdateRoleParams{Name: &name})
	require.NoError(t, err)
	require.Empty(t, inv.roles)
}

func TestUpdateRoleNotFound(t *testing.T) {
	store := newMemoryStore()
	mgr, _ := newTestManager(store)

	_, err := mgr.UpdateRole(context.Background(), "missing", UpdateRoleParams{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetParentRoleRejectsCycleAndLeavesHierarchyUntouched(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "a", TenantID: "t1", Name: "A"})
	store.addRole(Role{ID: "b", TenantID: "t1", Name: "B", ParentID: "a"})
	store.addRole(Role{ID: "c", TenantID: "t1", Name: "C", ParentID: "b"})
	mgr, inv := newTestManager(store)
	ctx := context.Background()

	err := mgr.SetParentRole(ctx, "a", "c")
	require.ErrorIs(t, err, ErrCycle)

	err = mgr.SetParentRole(ctx, "a", "a")
	require.ErrorIs(t, err, ErrCycle)

	// Nothing moved and nothing was invalidated.
	a, err := store.GetRole(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, a.ParentID)
	require.Empty(t, inv.roles)
}

func TestSetParentRoleRejectsCrossTenantParent(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "a", TenantID: "t1", Name: "A"})
	store.addRole(Role{ID: "b", TenantID: "t2", Name: "B"})
	mgr, _ := newTestManager(store)

	err := mgr.SetParentRole(context.Background(), "a", "b")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSetParentRoleRejectsSystemRole(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "admin", TenantID: "t1", Name: "admin", IsSystem: true})
	store.addRole(Role{ID: "b", TenantID: "t1", Name: "B"})
	mgr, _ := newTestManager(store)

	err := mgr.SetParentRole(context.Background(), "admin", "b")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSetParentRoleMissingParent(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "a", TenantID: "t1", Name: "A"})
	mgr, _ := newTestManager(store)

	err := mgr.SetParentRole(context.Background(), "a", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetParentRoleReparentsAndInvalidatesSubtree(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "root", TenantID: "t1", Name: "Root"})
	store.addRole(Role{ID: "child", TenantID: "t1", Name: "Child"})
	mgr, inv := newTestManager(store)
	ctx := context.Background()

	require.NoError(t, mgr.SetParentRole(ctx, "child", "root"))
	child, err := store.GetRole(ctx, "child")
	require.NoError(t, err)
	require.Equal(t, "root", child.ParentID)
	require.Equal(t, []string{"child"}, inv.roles)

	// Detaching works too.
	require.NoError(t, mgr.SetParentRole(ctx, "child", ""))
	child, err = store.GetRole(ctx, "child")
	require.NoError(t, err)
	require.Empty(t, child.ParentID)
}

func TestDeleteRoleRefusesWhileChildrenExist(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "parent", TenantID: "t1", Name: "Parent"})
	store.addRole(Role{ID: "child", TenantID: "t1", Name: "Child", ParentID: "parent"})
	mgr, _ := newTestManager(store)
	ctx := context.Background()

	err := mgr.DeleteRole(ctx, "parent")
	require.ErrorIs(t, err, ErrConflict)

	role, err := store.GetRole(ctx, "parent")
	require.NoError(t, err)
	require.NotNil(t, role)
}

func TestDeleteRoleRefusesWhileUsersAssigned(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "r1", TenantID: "t1", Name: "Ops"})
	store.userRoles["u1"] = "r1"
	mgr, _ := newTestManager(store)

	err := mgr.DeleteRole(context.Background(), "r1")
	require.ErrorIs(t, err, ErrConflict)
}

func TestDeleteRoleRefusesSystemRole(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "admin", TenantID: "t1", Name: "admin", IsSystem: true})
	mgr, _ := newTestManager(store)

	err := mgr.DeleteRole(context.Background(), "admin")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteRoleRemovesLeaf(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "r1", TenantID: "t1", Name: "Ops"})
	mgr, _ := newTestManager(store)
	ctx := context.Background()

	require.NoError(t, mgr.DeleteRole(ctx, "r1"))
	role, err := store.GetRole(ctx, "r1")
	require.NoError(t, err)
	require.Nil(t, role)
}

func TestGetRoleWithDetailsFlattensAncestors(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "root", TenantID: "t1", Name: "Root", Permissions: []string{"shipments.view"}})
	store.addRole(Role{ID: "mid", TenantID: "t1", Name: "Mid", ParentID: "root", Permissions: []string{"shipments.edit"}})
	store.addRole(Role{ID: "leaf", TenantID: "t1", Name: "Leaf", ParentID: "mid", Permissions: []string{"billing.view"}})
	mgr, _ := newTestManager(store)

	detail, err := mgr.GetRoleWithDetails(context.Background(), "leaf")
	require.NoError(t, err)
	require.Equal(t, []string{"billing.view"}, detail.Permissions)
	require.Equal(t, []string{"shipments.edit", "shipments.view"}, detail.Inherited)
}

func TestGetEffectivePermissionsUnionsChain(t *testing.T) {
	store := newMemoryStore()
	store.addRole(Role{ID: "root", TenantID: "t1", Name: "Root", Permissions: []string{"shipments.view", "common"}})
	store.addRole(Role{ID: "leaf", TenantID: "t1", Name: "Leaf", ParentID: "root", Permissions: []string{"shipments.edit", "common"}})
	mgr, _ := newTestManager(store)

	perms, err := mgr.GetEffectivePermissions(context.Background(), "leaf")
	require.NoError(t, err)
	require.Equal(t, []string{"common", "shipments.edit", "shipments.view"}, perms)
}

func TestSetOverrideValidatesAndInvalidatesUser(t *testing.T) {
	store := newMemoryStore()
	mgr, inv := newTestManager(store)
	ctx := context.Background()

	err := mgr.SetOverride(ctx, Override{UserID: "u1", Permission: " Billing.View ", Type: OverrideGrant})
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, inv.users)

	overrides, err := store.GetOverridesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.Equal(t, "billing.view", overrides[0].Permission)

	// Replacing the same pair flips the type instead of stacking.
	err = mgr.SetOverride(ctx, Override{UserID: "u1", Permission: "billing.view", Type: OverrideRevoke})
	require.NoError(t, err)
	overrides, err = store.GetOverridesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.Equal(t, OverrideRevoke, overrides[0].Type)
}

func TestSetOverrideRejectsBadInput(t *testing.T) {
	store := newMemoryStore()
	mgr, _ := newTestManager(store)
	ctx := context.Background()

	require.ErrorIs(t, mgr.SetOverride(ctx, Override{Permission: "x", Type: OverrideGrant}), ErrValidation)
	require.ErrorIs(t, mgr.SetOverride(ctx, Override{UserID: "u1", Type: OverrideGrant}), ErrValidation)
	require.ErrorIs(t, mgr.SetOverride(ctx, Override{UserID: "u1", Permission: "x", Type: "ALLOW"}), ErrValidation)
}

func TestRemoveOverrideInvalidatesUser(t *testing.T) {
	store := newMemoryStore()
	mgr, inv := newTestManager(store)
	ctx := context.Background()

	require.NoError(t, mgr.SetOverride(ctx, Override{UserID: "u1", Permission: "billing.view", Type: OverrideGrant}))
	require.NoError(t, mgr.RemoveOverride(ctx, "u1", "billing.view"))
	require.Equal(t, []string{"u1", "u1"}, inv.users)

	overrides, err := store.GetOverridesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, overrides)
}

func TestEnsureSystemRolesIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	mgr, _ := newTestManager(store)
	ctx := context.Background()
	seeds := map[string][]string{"admin": {"roles.edit"}, "member": nil}

	require.NoError(t, mgr.EnsureSystemRoles(ctx, "t1", seeds))
	require.NoError(t, mgr.EnsureSystemRoles(ctx, "t1", seeds))

	roles, err := store.ListRoles(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	for _, role := range roles {
		require.True(t, role.IsSystem)
	}
}
