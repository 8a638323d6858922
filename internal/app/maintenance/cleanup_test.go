package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/charlesng35/keyward/internal/database/testutil"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/services"
)

func seedKey(t *testing.T, db *gorm.DB, owner *models.User, name string, expiresAt *time.Time, roles ...models.Role) models.APIKey {
	t.Helper()
	key := models.APIKey{
		Key:       "sk_" + name,
		Name:      name,
		IsActive:  true,
		ExpiresAt: expiresAt,
		UserID:    &owner.ID,
		Roles:     roles,
	}
	require.NoError(t, db.Create(&key).Error)
	return key
}

func TestCleanupExpiredAPIKeys(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	owner := testutil.MustCreateUser(t, db, "owner@example.com")
	viewer := testutil.MustRole(t, db, models.RoleViewer)
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	longExpired := now.AddDate(0, 0, -30)
	recentlyExpired := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	stale := seedKey(t, db, owner, "stale", &longExpired, viewer)
	seedKey(t, db, owner, "recent", &recentlyExpired)
	seedKey(t, db, owner, "future", &future)
	seedKey(t, db, owner, "forever", nil)

	removed, err := CleanupExpiredAPIKeys(context.Background(), db, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var names []string
	require.NoError(t, db.Model(&models.APIKey{}).Order("name").Pluck("name", &names).Error)
	require.Equal(t, []string{"forever", "future", "recent"}, names)

	var links int64
	require.NoError(t, db.Table("api_key_roles").Where("api_key_id = ?", stale.ID).Count(&links).Error)
	require.Zero(t, links)

	removed, err = CleanupExpiredAPIKeys(context.Background(), db, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Zero(t, removed)

	_, err = CleanupExpiredAPIKeys(context.Background(), nil, now)
	require.Error(t, err)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)
	owner := testutil.MustCreateUser(t, db, "owner@example.com")

	clock := fixedClock{current: time.Now().UTC()}

	old := models.AuditLog{
		BaseModel: models.BaseModel{CreatedAt: clock.Now().AddDate(0, 0, -10)},
		Action:    "api_key.create",
		Result:    services.AuditResultSuccess,
	}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, auditSvc.Log(context.Background(), services.AuditEntry{
		Action: "api_key.delete",
		Result: services.AuditResultSuccess,
	}))

	expired := clock.Now().AddDate(0, 0, -3)
	seedKey(t, db, owner, "expired", &expired)

	c := NewCleaner(db, auditSvc,
		WithNow(clock.Now),
		WithAuditRetentionDays(7),
		WithExpiredKeyGrace(24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(context.Background()))

	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&auditCount).Error)
	require.EqualValues(t, 1, auditCount)

	var keyCount int64
	require.NoError(t, db.Model(&models.APIKey{}).Count(&keyCount).Error)
	require.Zero(t, keyCount)
}

func TestCleanerKeepsExpiredKeysWithoutGrace(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	owner := testutil.MustCreateUser(t, db, "owner@example.com")
	expired := time.Now().AddDate(-1, 0, 0)
	seedKey(t, db, owner, "expired", &expired)

	c := NewCleaner(db, nil)
	require.NoError(t, c.RunOnce(context.Background()))

	var keyCount int64
	require.NoError(t, db.Model(&models.APIKey{}).Count(&keyCount).Error)
	require.EqualValues(t, 1, keyCount)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(db, auditSvc, WithCron(scheduler), WithExpiredKeyGrace(time.Hour), WithKeySchedule("@hourly"))
	require.NoError(t, c.Start())
	defer c.Stop()
	require.Len(t, scheduler.Entries(), 2)

	idle := cron.New(cron.WithLogger(cron.DiscardLogger))
	require.NoError(t, NewCleaner(nil, nil, WithCron(idle)).Start())
	require.Empty(t, idle.Entries())

	bad := NewCleaner(nil, auditSvc, WithAuditSchedule("not a schedule"))
	require.Error(t, bad.Start())
}

type stubPurger struct {
	calls int
	err   error
}

func (p *stubPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls++
	return 0, p.err
}

func TestCleanerRunOnceAggregatesFailures(t *testing.T) {
	purger := &stubPurger{err: errors.New("counters locked")}
	c := NewCleaner(nil, nil, WithCounterPurger(purger))

	err := c.RunOnce(context.Background())
	require.ErrorContains(t, err, "counters locked")
	require.Equal(t, 1, purger.calls)

	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	require.NoError(t, NewCleaner(nil, nil, WithCron(scheduler), WithCounterPurger(purger)).Start())
	defer scheduler.Stop()
	require.Len(t, scheduler.Entries(), 1)
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
