package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/models"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &GormStore{db: db}, nil
}

// DB exposes the underlying handle for collaborators that share the connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ensureContext(ctx))
}

// Transaction runs fn inside a single database transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// GetUser loads a user with roles and role permissions.
func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).
		Preload("Roles.Permissions").
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByEmail performs a case-insensitive email lookup.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).
		Preload("Roles.Permissions").
		Where("LOWER(email) = ?", models.NormalizeEmail(email)).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ListUsers returns a page of users ordered by creation time together with the total count.
func (s *GormStore) ListUsers(ctx context.Context, skip, limit int) ([]models.User, int64, error) {
	db := s.conn(ctx)

	var total int64
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count users: %w", err)
	}

	var users []models.User
	err := db.Preload("Roles.Permissions").
		Order("created_at ASC").
		Offset(skip).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("store: list users: %w", err)
	}
	return users, total, nil
}

// CreateUser inserts the user and links any roles set on it.
func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.conn(ctx).Create(user).Error)
}

// UpdateUserProfile refreshes display fields. Empty values leave the stored value untouched.
func (s *GormStore) UpdateUserProfile(ctx context.Context, id, fullName, avatarURL string) error {
	updates := map[string]any{}
	if strings.TrimSpace(fullName) != "" {
		updates["full_name"] = strings.TrimSpace(fullName)
	}
	if strings.TrimSpace(avatarURL) != "" {
		updates["avatar_url"] = strings.TrimSpace(avatarURL)
	}
	if len(updates) == 0 {
		return nil
	}
	return s.updateColumns(ctx, &models.User{}, id, updates)
}

// SetUserActive flips the user activation flag.
func (s *GormStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return s.updateColumns(ctx, &models.User{}, id, map[string]any{"is_active": active})
}

// DeleteUser removes the user together with its API keys, identity links and role memberships.
func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var keys []models.APIKey
		if err := tx.Where("user_id = ?", id).Find(&keys).Error; err != nil {
			return fmt.Errorf("store: find user keys: %w", err)
		}
		for i := range keys {
			if err := tx.Select("Roles", "Permissions").Delete(&keys[i]).Error; err != nil {
				return fmt.Errorf("store: delete user key: %w", err)
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.IdentityLink{}).Error; err != nil {
			return fmt.Errorf("store: delete identity links: %w", err)
		}

		result := tx.Select("Roles").Delete(&models.User{BaseModel: models.BaseModel{ID: id}})
		if result.Error != nil {
			return fmt.Errorf("store: delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetRole loads a role with its permissions.
func (s *GormStore) GetRole(ctx context.Context, id string) (*models.Role, error) {
	var role models.Role
	if err := s.conn(ctx).Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// GetRoleByName loads a role by its unique name.
func (s *GormStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := s.conn(ctx).Preload("Permissions").First(&role, "name = ?", strings.TrimSpace(name)).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// FindRoles resolves every id or fails with ErrNotFound.
func (s *GormStore) FindRoles(ctx context.Context, ids []string) ([]models.Role, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var roles []models.Role
	if err := s.conn(ctx).Preload("Permissions").Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("store: find roles: %w", err)
	}
	if len(roles) != len(ids) {
		return nil, ErrNotFound
	}
	return roles, nil
}

// ListRoles returns all roles ordered by name.
func (s *GormStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.conn(ctx).Preload("Permissions").Order("name ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("store: list roles: %w", err)
	}
	return roles, nil
}

// CreateRole inserts the role and links any permissions set on it.
func (s *GormStore) CreateRole(ctx context.Context, role *models.Role) error {
	return translate(s.conn(ctx).Create(role).Error)
}

// DeleteRole removes the role and every membership referencing it.
func (s *GormStore) DeleteRole(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			"DELETE FROM user_roles WHERE role_id = ?",
			"DELETE FROM api_key_roles WHERE role_id = ?",
		} {
			if err := tx.Exec(stmt, id).Error; err != nil {
				return fmt.Errorf("store: clear role links: %w", err)
			}
		}

		result := tx.Select("Permissions").Delete(&models.Role{BaseModel: models.BaseModel{ID: id}})
		if result.Error != nil {
			return fmt.Errorf("store: delete role: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetPermission loads a permission by id.
func (s *GormStore) GetPermission(ctx context.Context, id string) (*models.Permission, error) {
	var perm models.Permission
	if err := s.conn(ctx).First(&perm, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

// GetPermissionByName loads a permission by its unique name.
func (s *GormStore) GetPermissionByName(ctx context.Context, name string) (*models.Permission, error) {
	var perm models.Permission
	if err := s.conn(ctx).First(&perm, "name = ?", strings.TrimSpace(name)).Error; err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

// FindPermissions resolves every id or fails with ErrNotFound.
func (s *GormStore) FindPermissions(ctx context.Context, ids []string) ([]models.Permission, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	var perms []models.Permission
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("store: find permissions: %w", err)
	}
	if len(perms) != len(ids) {
		return nil, ErrNotFound
	}
	return perms, nil
}

// ListPermissions returns all permissions ordered by name.
func (s *GormStore) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	if err := s.conn(ctx).Order("name ASC").Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("store: list permissions: %w", err)
	}
	return perms, nil
}

// CreatePermission inserts a permission.
func (s *GormStore) CreatePermission(ctx context.Context, perm *models.Permission) error {
	return translate(s.conn(ctx).Create(perm).Error)
}

// GetAPIKey loads a key by id with direct roles (and their permissions) and direct permissions.
func (s *GormStore) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	var key models.APIKey
	err := preloadAPIKeyGraph(s.conn(ctx)).First(&key, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

// GetAPIKeyByValue performs an exact match on the opaque key string.
func (s *GormStore) GetAPIKeyByValue(ctx context.Context, value string) (*models.APIKey, error) {
	if value == "" {
		return nil, ErrNotFound
	}
	var key models.APIKey
	// Struct conditions quote the column; KEY is reserved in MySQL.
	err := preloadAPIKeyGraph(s.conn(ctx)).Where(&models.APIKey{Key: value}).First(&key).Error
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

// ListAPIKeysByOwner returns the keys owned by ownerID, newest first.
func (s *GormStore) ListAPIKeysByOwner(ctx context.Context, ownerID string) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.conn(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("store: list api keys: %w", err)
	}
	return keys, nil
}

// CreateAPIKey inserts the key and links its direct roles and permissions.
func (s *GormStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	return translate(s.conn(ctx).Create(key).Error)
}

// SetAPIKeyActive flips the activation flag.
func (s *GormStore) SetAPIKeyActive(ctx context.Context, id string, active bool) error {
	return s.updateColumns(ctx, &models.APIKey{}, id, map[string]any{"is_active": active})
}

// TouchAPIKey records a successful validation in a single UPDATE statement.
func (s *GormStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	result := s.conn(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at)
	if result.Error != nil {
		return fmt.Errorf("store: touch api key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey hard deletes the key and its grant links.
func (s *GormStore) DeleteAPIKey(ctx context.Context, id string) error {
	result := s.conn(ctx).
		Select("Roles", "Permissions").
		Delete(&models.APIKey{BaseModel: models.BaseModel{ID: id}})
	if result.Error != nil {
		return fmt.Errorf("store: delete api key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIdentityLink loads the link for a (user, provider) pair.
func (s *GormStore) GetIdentityLink(ctx context.Context, userID, provider string) (*models.IdentityLink, error) {
	var link models.IdentityLink
	err := s.conn(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// CreateIdentityLink inserts a new identity link.
func (s *GormStore) CreateIdentityLink(ctx context.Context, link *models.IdentityLink) error {
	return translate(s.conn(ctx).Create(link).Error)
}

// UpdateIdentityLink persists every field of an existing link.
func (s *GormStore) UpdateIdentityLink(ctx context.Context, link *models.IdentityLink) error {
	if link == nil || link.ID == "" {
		return errors.New("store: identity link id is required")
	}
	return translate(s.conn(ctx).Save(link).Error)
}

// Attach links ownerID to targetID inside a transaction. Both records must exist.
func (s *GormStore) Attach(ctx context.Context, assoc Association, ownerID, targetID string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		owner, field, target, err := loadAssociation(tx, assoc, ownerID, targetID)
		if err != nil {
			return err
		}
		if err := tx.Model(owner).Association(field).Append(target); err != nil {
			return fmt.Errorf("store: attach %s: %w", assoc, err)
		}
		return nil
	})
}

// Detach unlinks ownerID from targetID inside a transaction. Both records must exist.
func (s *GormStore) Detach(ctx context.Context, assoc Association, ownerID, targetID string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		owner, field, target, err := loadAssociation(tx, assoc, ownerID, targetID)
		if err != nil {
			return err
		}
		if err := tx.Model(owner).Association(field).Delete(target); err != nil {
			return fmt.Errorf("store: detach %s: %w", assoc, err)
		}
		return nil
	})
}

func loadAssociation(tx *gorm.DB, assoc Association, ownerID, targetID string) (owner any, field string, target any, err error) {
	switch assoc {
	case UserRoles:
		owner, field, target = &models.User{}, "Roles", &models.Role{}
	case RolePermissions:
		owner, field, target = &models.Role{}, "Permissions", &models.Permission{}
	case APIKeyRoles:
		owner, field, target = &models.APIKey{}, "Roles", &models.Role{}
	case APIKeyPermissions:
		owner, field, target = &models.APIKey{}, "Permissions", &models.Permission{}
	default:
		return nil, "", nil, fmt.Errorf("store: unknown association %d", assoc)
	}

	if err := tx.First(owner, "id = ?", ownerID).Error; err != nil {
		return nil, "", nil, translate(err)
	}
	if err := tx.First(target, "id = ?", targetID).Error; err != nil {
		return nil, "", nil, translate(err)
	}
	return owner, field, target, nil
}

func (s *GormStore) updateColumns(ctx context.Context, model any, id string, updates map[string]any) error {
	result := s.conn(ctx).Model(model).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the values are unchanged.
	var count int64
	if err := s.conn(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return translate(err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func preloadAPIKeyGraph(db *gorm.DB) *gorm.DB {
	return db.Preload("Roles.Permissions").Preload("Permissions")
}

func uniqueIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

var _ Store = (*GormStore)(nil)
