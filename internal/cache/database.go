// Package cache holds shared counters persisted in the primary SQL database.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/keyward/internal/models"
)

// DatabaseCounter keeps fixed-window counters in the rate_counters table so limits hold
// across server instances.
type DatabaseCounter struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseCounter constructs a database-backed counter store.
func NewDatabaseCounter(db *gorm.DB) (*DatabaseCounter, error) {
	if db == nil {
		return nil, errors.New("cache: database handle is required")
	}
	return &DatabaseCounter{db: db, now: time.Now}, nil
}

// Increment bumps the counter for key, opening a new window when the previous one has
// lapsed, and returns the count and the time left in the window.
func (s *DatabaseCounter) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now().UTC()
	var entry models.RateCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bumped := tx.Model(&models.RateCounter{}).
			Where("counter_key = ? AND expires_at > ?", key, now).
			UpdateColumn("hits", gorm.Expr("hits + 1"))
		if bumped.Error != nil {
			return bumped.Error
		}

		if bumped.RowsAffected == 0 {
			if err := openWindow(tx, key, now, window); err != nil {
				return err
			}
		}

		return tx.Take(&entry, "counter_key = ?", key).Error
	})
	if err != nil {
		return 0, 0, fmt.Errorf("cache: increment %q: %w", key, err)
	}

	return int(entry.Hits), entry.ExpiresAt.Sub(now), nil
}

// openWindow inserts a fresh window for key. A conflicting row that is still live was
// opened by a concurrent request and is bumped instead; a lapsed one is reset. hits is
// assigned before expires_at because MySQL applies assignments left to right.
func openWindow(tx *gorm.DB, key string, now time.Time, window time.Duration) error {
	expires := now.Add(window)
	entry := models.RateCounter{Key: key, Hits: 1, ExpiresAt: expires}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "counter_key"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "hits"}, Value: gorm.Expr(
				"CASE WHEN rate_counters.expires_at > ? THEN rate_counters.hits + 1 ELSE 1 END", now)},
			{Column: clause.Column{Name: "expires_at"}, Value: gorm.Expr(
				"CASE WHEN rate_counters.expires_at > ? THEN rate_counters.expires_at ELSE ? END", now, expires)},
			{Column: clause.Column{Name: "updated_at"}, Value: now},
		},
	}).Create(&entry).Error
}

// PurgeExpired deletes counters whose window closed before now.
func (s *DatabaseCounter) PurgeExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.RateCounter{})
	if result.Error != nil {
		return 0, fmt.Errorf("cache: purge expired counters: %w", result.Error)
	}
	return result.RowsAffected, nil
}
