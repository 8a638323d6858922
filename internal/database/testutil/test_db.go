package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/database"
	"github.com/charlesng35/keyward/internal/models"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	seedData    bool
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithSeedData ensures migrations are applied and the default roles and permissions inserted.
func WithSeedData() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
		cfg.seedData = true
	}
}

// MustOpenTestDB opens an isolated in-memory SQLite database for tests, applying optional migrations/seed data.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.Open(database.Config{Driver: "sqlite"})
	require.NoError(t, err)

	if cfg.seedData {
		require.NoError(t, database.AutoMigrateAndSeed(db))
	} else if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}

// MustCreateUser inserts an active user holding the named roles. The roles must already exist.
func MustCreateUser(t *testing.T, db *gorm.DB, email string, roleNames ...string) *models.User {
	t.Helper()

	user := &models.User{Email: email, FullName: models.DisplayNameFromEmail(email), IsActive: true}
	if len(roleNames) > 0 {
		var roles []models.Role
		require.NoError(t, db.Where("name IN ?", roleNames).Find(&roles).Error)
		require.Len(t, roles, len(roleNames), "unknown role in %v", roleNames)
		user.Roles = roles
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// MustRole loads a role by name.
func MustRole(t *testing.T, db *gorm.DB, name string) models.Role {
	t.Helper()

	var role models.Role
	require.NoError(t, db.First(&role, "name = ?", name).Error)
	return role
}

// MustPermission loads a permission by name.
func MustPermission(t *testing.T, db *gorm.DB, name string) models.Permission {
	t.Helper()

	var perm models.Permission
	require.NoError(t, db.First(&perm, "name = ?", name).Error)
	return perm
}
