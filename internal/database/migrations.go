package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/models"
)

// SeedPermission describes a permission provisioned at start-up.
type SeedPermission struct {
	Name        string
	Description string
}

// SeedRole describes a role and the permission names it grants.
type SeedRole struct {
	Name        string
	Description string
	Permissions []string
}

// DefaultPermissions is the built-in permission catalog.
var DefaultPermissions = []SeedPermission{
	{Name: "users:read", Description: "Read user information"},
	{Name: "users:write", Description: "Create and update users"},
	{Name: "users:delete", Description: "Delete users"},
	{Name: "posts:read", Description: "Read posts"},
	{Name: "posts:write", Description: "Create and update posts"},
	{Name: "posts:delete", Description: "Delete posts"},
	{Name: "analytics:read", Description: "Read analytics"},
}

// DefaultRoles is the built-in role catalog.
var DefaultRoles = []SeedRole{
	{
		Name:        models.RoleAdmin,
		Description: "Administrator with full access",
		Permissions: []string{"users:read", "users:write", "users:delete", "posts:read", "posts:write", "posts:delete", "analytics:read"},
	},
	{
		Name:        models.RoleUser,
		Description: "Regular user with standard access",
		Permissions: []string{"users:read", "posts:read", "posts:write"},
	},
	{
		Name:        models.RoleViewer,
		Description: "Read-only access",
		Permissions: []string{"users:read", "posts:read"},
	},
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// SeedData provisions the default permissions and roles. It is safe to run repeatedly.
func SeedData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]models.Permission, len(DefaultPermissions))
		for _, seed := range DefaultPermissions {
			var perm models.Permission
			attrs := models.Permission{Name: seed.Name, Description: seed.Description}
			if err := tx.Where(models.Permission{Name: seed.Name}).Attrs(attrs).FirstOrCreate(&perm).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", seed.Name, err)
			}
			byName[perm.Name] = perm
		}

		for _, seed := range DefaultRoles {
			var role models.Role
			attrs := models.Role{Name: seed.Name, Description: seed.Description}
			if err := tx.Where(models.Role{Name: seed.Name}).Attrs(attrs).FirstOrCreate(&role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", seed.Name, err)
			}

			perms := make([]models.Permission, 0, len(seed.Permissions))
			for _, name := range seed.Permissions {
				perm, ok := byName[name]
				if !ok {
					return fmt.Errorf("seed role %s: unknown permission %s", seed.Name, name)
				}
				perms = append(perms, perm)
			}
			if err := tx.Model(&role).Association("Permissions").Append(perms); err != nil {
				return fmt.Errorf("seed role %s permissions: %w", seed.Name, err)
			}
		}
		return nil
	})
}
