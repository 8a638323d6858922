package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultAuditSchedule      = "@daily"
	defaultKeySchedule        = "@daily"
	defaultCounterSchedule    = "@hourly"
)

// CounterPurger removes lapsed rate limit windows.
type CounterPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner runs background retention jobs. It prunes stale audit rows, removes API keys
// that expired longer ago than the configured grace period and purges lapsed rate
// limit counters.
type Cleaner struct {
	db        *gorm.DB
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int
	keyGrace  time.Duration
	counters  CounterPurger

	auditSchedule   string
	keySchedule     string
	counterSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithAuditSchedule overrides the cron expression for audit retention enforcement.
func WithAuditSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.auditSchedule = expr
		}
	}
}

// WithExpiredKeyGrace enables pruning of API keys whose expiry lies further than grace
// in the past. Zero leaves expired keys in place.
func WithExpiredKeyGrace(grace time.Duration) Option {
	return func(cleaner *Cleaner) {
		if grace > 0 {
			cleaner.keyGrace = grace
		}
	}
}

// WithKeySchedule overrides the cron expression for expired key pruning.
func WithKeySchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.keySchedule = expr
		}
	}
}

// WithCounterPurger enables the hourly purge of lapsed rate limit counters.
func WithCounterPurger(p CounterPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.counters = p
	}
}

// NewCleaner constructs a Cleaner. A nil audit service skips audit retention; a nil db
// skips key pruning.
func NewCleaner(db *gorm.DB, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		audit:           audit,
		now:             time.Now,
		retention:       defaultAuditRetentionDays,
		auditSchedule:   defaultAuditSchedule,
		keySchedule:     defaultKeySchedule,
		counterSchedule: defaultCounterSchedule,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) pruneKeys() bool {
	return c.db != nil && c.keyGrace > 0
}

// Start registers the enabled jobs and launches the scheduler when at least one exists.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			removed, err := c.audit.CleanupOlderThan(context.Background(), c.retention)
			if err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
				return
			}
			c.log.Debug("audit cleanup complete", zap.Int64("removed", removed))
		}); err != nil {
			return fmt.Errorf("schedule audit cleanup: %w", err)
		}
		jobs++
	}

	if c.pruneKeys() {
		if _, err := c.cron.AddFunc(c.keySchedule, func() {
			removed, err := CleanupExpiredAPIKeys(context.Background(), c.db, c.now().Add(-c.keyGrace))
			if err != nil {
				c.log.Warn("expired key cleanup failed", zap.Error(err))
				return
			}
			c.log.Debug("expired key cleanup complete", zap.Int64("removed", removed))
		}); err != nil {
			return fmt.Errorf("schedule expired key cleanup: %w", err)
		}
		jobs++
	}

	if c.counters != nil {
		if _, err := c.cron.AddFunc(c.counterSchedule, func() {
			if _, err := c.counters.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("rate counter cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule rate counter cleanup: %w", err)
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	c.cron.Start()
	c.log.Info("maintenance scheduler started", zap.Int("jobs", jobs))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled cleanup routine sequentially, collecting all failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.pruneKeys() {
		if _, err := CleanupExpiredAPIKeys(ctx, c.db, c.now().Add(-c.keyGrace)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.counters != nil {
		if _, err := c.counters.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupExpiredAPIKeys deletes keys that expired before cutoff along with their grant
// rows, returning the number of keys removed.
func CleanupExpiredAPIKeys(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup api keys: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var removed int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.APIKey{}).
			Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("find expired keys: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Exec("DELETE FROM api_key_roles WHERE api_key_id IN ?", ids).Error; err != nil {
			return fmt.Errorf("delete key roles: %w", err)
		}
		if err := tx.Exec("DELETE FROM api_key_permissions WHERE api_key_id IN ?", ids).Error; err != nil {
			return fmt.Errorf("delete key permissions: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&models.APIKey{})
		if result.Error != nil {
			return fmt.Errorf("delete keys: %w", result.Error)
		}
		removed = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup api keys: %w", err)
	}
	return removed, nil
}
