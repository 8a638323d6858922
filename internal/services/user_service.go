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

// CreateUserInput describes a principal provisioned by an operator.
type CreateUserInput struct {
	Email     string `validate:"required,email"`
	FullName  string
	RoleNames []string
	Superuser bool
}

// UserService manages principals and their role memberships.
type UserService struct {
	store store.Store
	audit *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(st store.Store, audit *AuditService) (*UserService, error) {
	if st == nil {
		return nil, errors.New("user service: store is required")
	}
	return &UserService{store: st, audit: audit}, nil
}

// Create provisions an active user holding the named roles.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	input.Email = models.NormalizeEmail(input.Email)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		fullName = models.DisplayNameFromEmail(input.Email)
	}

	var userID string
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		roles := make([]models.Role, 0, len(input.RoleNames))
		for _, name := range normaliseIDs(input.RoleNames) {
			role, err := tx.GetRoleByName(ctx, name)
			if err != nil {
				return storeError(err, apperrors.NewBadRequest("Role "+name+" does not exist"), nil, "Failed to load role")
			}
			roles = append(roles, *role)
		}

		user := &models.User{
			Email:       input.Email,
			FullName:    fullName,
			IsActive:    true,
			IsSuperuser: input.Superuser,
			Roles:       roles,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			return storeError(err, nil, ErrUserExists, "Failed to create user")
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.create",
		Resource: "user:" + user.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": user.Email, "roles": input.RoleNames},
	})
	return user, nil
}

// List returns a page of users and the total count.
func (s *UserService) List(ctx context.Context, skip, limit int) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)
	skip, limit = clampPage(skip, limit)

	users, total, err := s.store.ListUsers(ctx, skip, limit)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to list users")
	}
	return users, total, nil
}

// Get returns a user with roles and role permissions.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeError(err, ErrUserNotFound, nil, "Failed to load user")
	}
	return user, nil
}

// AssignRole grants roleID to the user. Assigning a held role is a no-op.
func (s *UserService) AssignRole(ctx context.Context, userID, roleID string) (*models.User, error) {
	return s.changeRole(ctx, userID, roleID, true)
}

// RemoveRole revokes roleID from the user. Removing a role the user lacks is a no-op.
func (s *UserService) RemoveRole(ctx context.Context, userID, roleID string) (*models.User, error) {
	return s.changeRole(ctx, userID, roleID, false)
}

func (s *UserService) changeRole(ctx context.Context, userID, roleID string, assign bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, storeError(err, ErrRoleNotFound, nil, "Failed to load role")
	}

	var err error
	action := "user.role.assign"
	if assign {
		err = s.store.Attach(ctx, store.UserRoles, userID, roleID)
	} else {
		action = "user.role.remove"
		err = s.store.Detach(ctx, store.UserRoles, userID, roleID)
	}
	if err != nil {
		return nil, storeError(err, ErrUserNotFound, nil, "Failed to update user roles")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "user:" + userID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"role_id": roleID},
	})
	return s.Get(ctx, userID)
}

// SetActive activates or deactivates a user. Deactivation takes effect on the user's
// next request through either credential path.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	if err := s.store.SetUserActive(ctx, id, active); err != nil {
		return nil, storeError(err, ErrUserNotFound, nil, "Failed to update user")
	}

	action := "user.deactivate"
	if active {
		action = "user.activate"
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   action,
		Resource: "user:" + id,
		Result:   AuditResultSuccess,
	})
	return s.Get(ctx, id)
}

// Delete removes a user together with its API keys and identity links.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	if err := s.store.DeleteUser(ctx, id); err != nil {
		return storeError(err, ErrUserNotFound, nil, "Failed to delete user")
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.delete",
		Resource: "user:" + id,
		Result:   AuditResultSuccess,
	})
	return nil
}
