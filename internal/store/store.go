package store

import (
	"context"
	"time"

	"github.com/charlesng35/keyward/internal/models"
)

// Association names a many-to-many link between two record kinds.
type Association int

const (
	// UserRoles links users to roles.
	UserRoles Association = iota
	// RolePermissions links roles to permissions.
	RolePermissions
	// APIKeyRoles links API keys to directly granted roles.
	APIKeyRoles
	// APIKeyPermissions links API keys to directly granted permissions.
	APIKeyPermissions
)

func (a Association) String() string {
	switch a {
	case UserRoles:
		return "user_roles"
	case RolePermissions:
		return "role_permissions"
	case APIKeyRoles:
		return "api_key_roles"
	case APIKeyPermissions:
		return "api_key_permissions"
	default:
		return "unknown"
	}
}

// Store is the keyed record store behind the authorization core. Lookups of users,
// roles and API keys return fully materialised graphs (roles with their permissions)
// so callers never trigger lazy loading.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, skip, limit int) ([]models.User, int64, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserProfile(ctx context.Context, id, fullName, avatarURL string) error
	SetUserActive(ctx context.Context, id string, active bool) error
	DeleteUser(ctx context.Context, id string) error

	GetRole(ctx context.Context, id string) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	FindRoles(ctx context.Context, ids []string) ([]models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, id string) error

	GetPermission(ctx context.Context, id string) (*models.Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*models.Permission, error)
	FindPermissions(ctx context.Context, ids []string) ([]models.Permission, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	CreatePermission(ctx context.Context, perm *models.Permission) error

	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	GetAPIKeyByValue(ctx context.Context, key string) (*models.APIKey, error)
	ListAPIKeysByOwner(ctx context.Context, ownerID string) ([]models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	SetAPIKeyActive(ctx context.Context, id string, active bool) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	DeleteAPIKey(ctx context.Context, id string) error

	GetIdentityLink(ctx context.Context, userID, provider string) (*models.IdentityLink, error)
	CreateIdentityLink(ctx context.Context, link *models.IdentityLink) error
	UpdateIdentityLink(ctx context.Context, link *models.IdentityLink) error

	// Attach links ownerID to targetID. Attaching an existing link is a no-op.
	Attach(ctx context.Context, assoc Association, ownerID, targetID string) error
	// Detach removes the link between ownerID and targetID. Detaching a missing link is a no-op.
	Detach(ctx context.Context, assoc Association, ownerID, targetID string) error

	// Transaction runs fn against a store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
