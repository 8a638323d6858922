package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/database/testutil"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/store"
)

type serviceFixture struct {
	db    *gorm.DB
	store *store.GormStore
	audit *AuditService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	st, err := store.NewGormStore(db)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	return &serviceFixture{db: db, store: st, audit: audit}
}

func (f *serviceFixture) auditActions(t *testing.T) []string {
	t.Helper()
	var logs []models.AuditLog
	require.NoError(t, f.db.Order("created_at ASC").Find(&logs).Error)
	actions := make([]string, 0, len(logs))
	for _, log := range logs {
		actions = append(actions, log.Action)
	}
	return actions
}
