package database

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenSQLiteMemoryHandlesAreIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, AutoMigrate(first))
	require.NoError(t, first.Create(&models.Permission{Name: "users:read"}).Error)

	require.NoError(t, AutoMigrate(second))
	var count int64
	require.NoError(t, second.Model(&models.Permission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))

	var permissionCount int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&permissionCount).Error)
	require.EqualValues(t, len(DefaultPermissions), permissionCount)

	var admin models.Role
	require.NoError(t, db.Preload("Permissions").First(&admin, "name = ?", models.RoleAdmin).Error)
	require.Len(t, admin.Permissions, 7)

	var viewer models.Role
	require.NoError(t, db.Preload("Permissions").First(&viewer, "name = ?", models.RoleViewer).Error)
	names := make([]string, 0, len(viewer.Permissions))
	for _, perm := range viewer.Permissions {
		names = append(names, perm.Name)
	}
	require.ElementsMatch(t, []string{"users:read", "posts:read"}, names)
}

func TestSeedDataIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))
	require.NoError(t, SeedData(db))

	var roleCount int64
	require.NoError(t, db.Model(&models.Role{}).Count(&roleCount).Error)
	require.EqualValues(t, len(DefaultRoles), roleCount)

	var user models.Role
	require.NoError(t, db.Preload("Permissions").First(&user, "name = ?", models.RoleUser).Error)
	require.Len(t, user.Permissions, 3)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
