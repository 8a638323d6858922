package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/models"
)

// Audit results.
const (
	AuditResultSuccess = "success"
	AuditResultFailure = "failure"
)

// AuditEntry is one authorization-relevant event. Method names the credential that
// carried the request (token, api_key, oauth, cli); APIKeyID is set when a key did.
type AuditEntry struct {
	UserID    *string
	Actor     string
	Method    string
	APIKeyID  *string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// AuditFilters narrows audit queries. Empty fields are ignored.
type AuditFilters struct {
	UserID   string
	Action   string
	Result   string
	Resource string
	Method   string
	APIKeyID string
	Since    *time.Time
	Until    *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Skip    int
	Limit   int
	Filters AuditFilters
}

// AuditService keeps the trail of key lifecycle, identity and admin actions.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log stores an entry stamped with the service clock.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	record, err := newAuditRecord(entry)
	if err != nil {
		return err
	}
	record.CreatedAt = s.now().UTC()
	return s.db.WithContext(ensureContext(ctx)).Create(record).Error
}

func newAuditRecord(entry AuditEntry) (*models.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, errors.New("audit service: action is required")
	}
	result := strings.TrimSpace(entry.Result)
	if result != AuditResultSuccess && result != AuditResultFailure {
		return nil, fmt.Errorf("audit service: unknown result %q", entry.Result)
	}

	record := &models.AuditLog{
		UserID:    trimmedID(entry.UserID),
		Actor:     strings.TrimSpace(entry.Actor),
		Method:    strings.TrimSpace(entry.Method),
		APIKeyID:  trimmedID(entry.APIKeyID),
		Action:    action,
		Resource:  strings.TrimSpace(entry.Resource),
		Result:    result,
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
	}
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		record.Metadata = datatypes.JSON(encoded)
	}
	return record, nil
}

func trimmedID(id *string) *string {
	if id == nil {
		return nil
	}
	value := strings.TrimSpace(*id)
	if value == "" {
		return nil
	}
	return &value
}

// List returns paginated audit logs, newest first.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	skip, limit := clampPage(opts.Skip, opts.Limit)
	query := opts.Filters.apply(s.db.WithContext(ensureContext(ctx)).Model(&models.AuditLog{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Offset(skip).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, total, nil
}

// CleanupOlderThan removes audit logs older than retentionDays.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ensureContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (f AuditFilters) apply(query *gorm.DB) *gorm.DB {
	columns := []struct {
		column string
		value  string
	}{
		{"user_id", f.UserID},
		{"action", f.Action},
		{"result", f.Result},
		{"resource", f.Resource},
		{"method", f.Method},
		{"api_key_id", f.APIKeyID},
	}
	for _, c := range columns {
		if value := strings.TrimSpace(c.value); value != "" {
			query = query.Where(c.column+" = ?", value)
		}
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}
	return query
}
