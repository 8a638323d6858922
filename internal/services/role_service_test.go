package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/keyward/internal/database/testutil"
	"github.com/charlesng35/keyward/internal/models"
	apperrors "github.com/charlesng35/keyward/pkg/errors"
)

func newRoleService(t *testing.T, f *serviceFixture) *RoleService {
	t.Helper()
	svc, err := NewRoleService(f.store, f.audit)
	require.NoError(t, err)
	return svc
}

func TestRoleServicePermissions(t *testing.T) {
	f := newServiceFixture(t)
	svc := newRoleService(t, f)
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, CreatePermissionInput{Name: "Reports:Export", Description: "Export reports"})
	require.NoError(t, err)
	require.Equal(t, "reports:export", perm.Name)
	require.Equal(t, "reports", perm.Resource)
	require.Equal(t, "export", perm.Action)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: "users:read"})
	require.ErrorIs(t, err, ErrPermissionExists)
	require.Equal(t, "Permission already exists", apperrors.FromError(err).Message)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Name: "no-colon"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	perms, err := svc.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, 8)
}

func TestRoleServiceCreateAndDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	svc := newRoleService(t, f)
	ctx := context.Background()
	read := testutil.MustPermission(t, f.db, "users:read")

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "support", Description: "Support staff", PermissionIDs: []string{read.ID}})
	require.NoError(t, err)
	require.Equal(t, "support", role.Name)
	require.Len(t, role.Permissions, 1)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "support"})
	require.ErrorIs(t, err, ErrRoleExists)
	require.Equal(t, "Role already exists", apperrors.FromError(err).Message)

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "broken", PermissionIDs: []string{"missing"}})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 4)
}

func TestRoleServiceAttachDetachIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	svc := newRoleService(t, f)
	ctx := context.Background()
	viewer := testutil.MustRole(t, f.db, models.RoleViewer)
	analytics := testutil.MustPermission(t, f.db, "analytics:read")

	for i := 0; i < 2; i++ {
		role, err := svc.AttachPermission(ctx, viewer.ID, analytics.ID)
		require.NoError(t, err)
		require.Len(t, role.Permissions, 3)
	}
	for i := 0; i < 2; i++ {
		role, err := svc.DetachPermission(ctx, viewer.ID, analytics.ID)
		require.NoError(t, err)
		require.Len(t, role.Permissions, 2)
	}

	_, err := svc.AttachPermission(ctx, viewer.ID, "missing")
	require.ErrorIs(t, err, ErrPermissionNotFound)
	_, err = svc.AttachPermission(ctx, "missing", analytics.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRoleServiceDeleteRole(t *testing.T) {
	f := newServiceFixture(t)
	svc := newRoleService(t, f)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "temp"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	_, err = svc.GetRole(ctx, role.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)
	require.ErrorIs(t, svc.DeleteRole(ctx, role.ID), ErrRoleNotFound)

	require.Equal(t, []string{"role.create", "role.delete"}, f.auditActions(t))
}
