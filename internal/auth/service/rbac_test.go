package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/store/drivers/memory"
	"github.com/tidewater/gatehouse/pkg/apperr"
)

func newRBAC(t *testing.T) (*RBACService, *memory.Store) {
	t.Helper()
	s := memory.NewStore()
	return &RBACService{Store: s}, s
}

func TestRBACService_Admin(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate role name conflicts", func(t *testing.T) {
		svc, _ := newRBAC(t)
		_, err := svc.CreateRole(ctx, "editor", "", nil)
		require.NoError(t, err)

		_, err = svc.CreateRole(ctx, "editor", "again", nil)
		require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("duplicate resource action conflicts", func(t *testing.T) {
		svc, _ := newRBAC(t)
		_, err := svc.CreatePermission(ctx, "Read roles", "", "roles", domain.ActionRead)
		require.NoError(t, err)

		_, err = svc.CreatePermission(ctx, "Roles reader", "", "roles", domain.ActionRead)
		require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("create role with unknown permission fails", func(t *testing.T) {
		svc, _ := newRBAC(t)
		_, err := svc.CreateRole(ctx, "broken", "", []string{"no-such-permission"})
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("add and remove role permissions", func(t *testing.T) {
		svc, _ := newRBAC(t)
		read, err := svc.CreatePermission(ctx, "Read roles", "", "roles", domain.ActionRead)
		require.NoError(t, err)
		update, err := svc.CreatePermission(ctx, "Update roles", "", "roles", domain.ActionUpdate)
		require.NoError(t, err)

		role, err := svc.CreateRole(ctx, "editor", "", []string{read.ID})
		require.NoError(t, err)

		role, err = svc.AddPermissionsToRole(ctx, role.ID, []string{update.ID, read.ID})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{read.ID, update.ID}, role.PermissionIDs)

		role, err = svc.RemovePermissionsFromRole(ctx, role.ID, []string{read.ID, "not-held"})
		require.NoError(t, err)
		require.Equal(t, []string{update.ID}, role.PermissionIDs)
	})

	t.Run("mutating a missing role reports not found", func(t *testing.T) {
		svc, _ := newRBAC(t)
		_, err := svc.AddPermissionsToRole(ctx, "gone", nil)
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

		err = svc.DeleteRole(ctx, "gone")
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("assigning unknown role is rejected", func(t *testing.T) {
		svc, _ := newRBAC(t)
		_, err := svc.AssignRoles(ctx, "user-1", []string{"no-such-role"})
		require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestRBACService_LoadPermissions(t *testing.T) {
	ctx := context.Background()
	const userID = "01HUSER00000000000000000001"

	setup := func(t *testing.T) (*RBACService, domain.Permission, domain.Permission) {
		t.Helper()
		svc, _ := newRBAC(t)

		rolesRead, err := svc.CreatePermission(ctx, "Read roles", "", "roles", domain.ActionRead)
		require.NoError(t, err)
		usersRead, err := svc.CreatePermission(ctx, "Read users", "", "users", domain.ActionRead)
		require.NoError(t, err)
		return svc, rolesRead, usersRead
	}

	t.Run("no assignment yields empty set without error", func(t *testing.T) {
		svc, _, _ := setup(t)
		perms, err := svc.LoadPermissions(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, perms)
		require.False(t, perms.Allows("roles", domain.ActionRead))
	})

	t.Run("union across roles is deduplicated", func(t *testing.T) {
		svc, rolesRead, usersRead := setup(t)

		a, err := svc.CreateRole(ctx, "role-a", "", []string{rolesRead.ID, usersRead.ID})
		require.NoError(t, err)
		b, err := svc.CreateRole(ctx, "role-b", "", []string{rolesRead.ID})
		require.NoError(t, err)

		_, err = svc.AssignRoles(ctx, userID, []string{a.ID, b.ID})
		require.NoError(t, err)

		perms, err := svc.LoadPermissions(ctx, userID)
		require.NoError(t, err)
		require.Len(t, perms, 2)
		require.True(t, perms.Allows("roles", domain.ActionRead))
		require.True(t, perms.Allows("users", domain.ActionRead))
	})

	t.Run("deleted role is skipped silently", func(t *testing.T) {
		svc, rolesRead, usersRead := setup(t)

		keep, err := svc.CreateRole(ctx, "keep", "", []string{usersRead.ID})
		require.NoError(t, err)
		doomed, err := svc.CreateRole(ctx, "doomed", "", []string{rolesRead.ID})
		require.NoError(t, err)

		_, err = svc.AssignRoles(ctx, userID, []string{keep.ID, doomed.ID})
		require.NoError(t, err)
		require.NoError(t, svc.DeleteRole(ctx, doomed.ID))

		perms, err := svc.LoadPermissions(ctx, userID)
		require.NoError(t, err)
		require.True(t, perms.Allows("users", domain.ActionRead))
		require.False(t, perms.Allows("roles", domain.ActionRead))
	})

	t.Run("deleted permission is skipped silently", func(t *testing.T) {
		svc, rolesRead, usersRead := setup(t)

		role, err := svc.CreateRole(ctx, "mixed", "", []string{rolesRead.ID, usersRead.ID})
		require.NoError(t, err)
		_, err = svc.AssignRoles(ctx, userID, []string{role.ID})
		require.NoError(t, err)

		require.NoError(t, svc.DeletePermission(ctx, rolesRead.ID))

		perms, err := svc.LoadPermissions(ctx, userID)
		require.NoError(t, err)
		require.True(t, perms.Allows("users", domain.ActionRead))
		require.False(t, perms.Allows("roles", domain.ActionRead))
	})

	t.Run("manage subsumption end to end", func(t *testing.T) {
		svc, _ := newRBAC(t)

		manage, err := svc.CreatePermission(ctx, "Manage roles", "", "roles", domain.ActionManage)
		require.NoError(t, err)
		admin, err := svc.CreateRole(ctx, "roles-admin", "", []string{manage.ID})
		require.NoError(t, err)
		_, err = svc.AssignRoles(ctx, userID, []string{admin.ID})
		require.NoError(t, err)

		perms, err := svc.LoadPermissions(ctx, userID)
		require.NoError(t, err)
		require.True(t, perms.Allows("roles", domain.ActionRead))
		require.True(t, perms.Allows("roles", domain.ActionDelete))
		require.False(t, perms.Allows("users", domain.ActionRead))
	})
}
