package services

import (
	"context"
	"errors"
	"strings"

	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/store"
	apperrors "github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/validator"
)

// CreatePermissionInput describes a new "resource:action" permission.
type CreatePermissionInput struct {
	Name        string
	Description string
}

// CreateRoleInput describes a new role and its initial permissions.
type CreateRoleInput struct {
	Name          string
	Description   string
	PermissionIDs []string
}

// RoleService manages the role and permission catalogue.
type RoleService struct {
	store store.Store
	audit *AuditService
}

// NewRoleService constructs a RoleService.
func NewRoleService(st store.Store, audit *AuditService) (*RoleService, error) {
	if st == nil {
		return nil, errors.New("role service: store is required")
	}
	return &RoleService{store: st, audit: audit}, nil
}

// CreatePermission registers a permission. Names are unique.
func (s *RoleService) CreatePermission(ctx context.Context, input CreatePermissionInput) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	name := strings.ToLower(strings.TrimSpace(input.Name))
	if !validator.IsPermissionName(name) {
		return nil, apperrors.NewBadRequest("Permission name must look like resource:action")
	}

	perm := &models.Permission{Name: name, Description: strings.TrimSpace(input.Description)}
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		return nil, storeError(err, nil, ErrPermissionExists, "Failed to create permission")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "permission.create",
		Resource: "permission:" + perm.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"name": perm.Name},
	})
	return perm, nil
}

// ListPermissions returns every permission ordered by name.
func (s *RoleService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	perms, err := s.store.ListPermissions(ensureContext(ctx))
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list permissions")
	}
	return perms, nil
}

// CreateRole registers a role with the given permissions, all of which must exist.
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	var roleID string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		perms, err := tx.FindPermissions(ctx, normaliseIDs(input.PermissionIDs))
		if err != nil {
			return storeError(err, apperrors.NewBadRequest("One or more permissions do not exist"), nil, "Failed to load permissions")
		}
		role := &models.Role{Name: name, Description: strings.TrimSpace(input.Description), Permissions: perms}
		if err := tx.CreateRole(ctx, role); err != nil {
			return storeError(err, nil, ErrRoleExists, "Failed to create role")
		}
		roleID = role.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "role.create",
		Resource: "role:" + role.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"name": role.Name, "permissions": len(role.Permissions)},
	})
	return role, nil
}

// ListRoles returns every role with its permissions.
func (s *RoleService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.store.ListRoles(ensureContext(ctx))
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list roles")
	}
	return roles, nil
}

// GetRole returns a role with its permissions.
func (s *RoleService) GetRole(ctx context.Context, id string) (*models.Role, error) {
	role, err := s.store.GetRole(ensureContext(ctx), id)
	if err != nil {
		return nil, storeError(err, ErrRoleNotFound, nil, "Failed to load role")
	}
	return role, nil
}

// AttachPermission grants permissionID to the role. Attaching twice is a no-op.
func (s *RoleService) AttachPermission(ctx context.Context, roleID, permissionID string) (*models.Role, error) {
	return s.changePermission(ctx, roleID, permissionID, true)
}

// DetachPermission revokes permissionID from the role. Detaching a missing link is a no-op.
func (s *RoleService) DetachPermission(ctx context.Context, roleID, permissionID string) (*models.Role, error) {
	return s.changePermission(ctx, roleID, permissionID, false)
}

func (s *RoleService) changePermission(ctx context.Context, roleID, permissionID string, attach bool) (*models.Role, error) {
	ctx = ensureContext(ctx)

	if _, err := s.store.GetPermission(ctx, permissionID); err != nil {
		return nil, storeError(err, ErrPermissionNotFound, nil, "Failed to load permission")
	}

	var err error
	action := "role.permission.attach"
	if attach {
		err = s.store.Attach(ctx, store.RolePermissions, roleID, permissionID)
	} else {
		action = "role.permission.detach"
		err = s.store.Detach(ctx, store.RolePermissions, roleID, permissionID)
	}
	if err != nil {
		return nil, storeError(err, ErrRoleNotFound, nil, "Failed to update role permissions")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "role:" + roleID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"permission_id": permissionID},
	})
	return s.GetRole(ctx, roleID)
}

// DeleteRole removes a role and every membership referencing it.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	if err := s.store.DeleteRole(ctx, id); err != nil {
		return storeError(err, ErrRoleNotFound, nil, "Failed to delete role")
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "role.delete",
		Resource: "role:" + id,
		Result:   AuditResultSuccess,
	})
	return nil
}
