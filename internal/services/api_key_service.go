package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
	"github.com/charlesng35/keyward/internal/store"
	apperrors "github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/metrics"
)

// CreateAPIKeyInput describes a new API key. RoleIDs and PermissionIDs become the
// key's direct grants; they must all exist and, unless the owner is a superuser, be
// held by the owner.
type CreateAPIKeyInput struct {
	Name          string
	Description   string
	ExpiresAt     *time.Time
	RoleIDs       []string
	PermissionIDs []string
}

// APIKeyService manages keys on behalf of their owners. Every operation is scoped to
// ownerID; a key owned by someone else is reported exactly like a missing one.
type APIKeyService struct {
	store    store.Store
	audit    *AuditService
	generate func() (string, error)
}

// APIKeyServiceOption customises an APIKeyService.
type APIKeyServiceOption func(*APIKeyService)

// WithKeyGenerator overrides how key values are produced.
func WithKeyGenerator(fn func() (string, error)) APIKeyServiceOption {
	return func(s *APIKeyService) {
		if fn != nil {
			s.generate = fn
		}
	}
}

// NewAPIKeyService constructs an APIKeyService.
func NewAPIKeyService(st store.Store, audit *AuditService, opts ...APIKeyServiceOption) (*APIKeyService, error) {
	if st == nil {
		return nil, errors.New("api key service: store is required")
	}
	svc := &APIKeyService{store: st, audit: audit, generate: auth.GenerateAPIKey}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create issues a new active key for ownerID. The returned key carries its value.
func (s *APIKeyService) Create(ctx context.Context, ownerID string, input CreateAPIKeyInput) (*models.APIKey, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.ErrUnauthorized
	}

	value, err := s.generate()
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to generate API key")
	}

	var created *models.APIKey
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		ownerUser, err := tx.GetUser(ctx, ownerID)
		if err != nil {
			return storeError(err, apperrors.ErrUnauthorized, nil, "Failed to load owner")
		}
		roles, err := tx.FindRoles(ctx, normaliseIDs(input.RoleIDs))
		if err != nil {
			return storeError(err, apperrors.NewBadRequest("One or more roles do not exist"), nil, "Failed to load roles")
		}
		perms, err := tx.FindPermissions(ctx, normaliseIDs(input.PermissionIDs))
		if err != nil {
			return storeError(err, apperrors.NewBadRequest("One or more permissions do not exist"), nil, "Failed to load permissions")
		}
		if err := checkDelegation(ownerUser, roles, perms); err != nil {
			return err
		}

		owner := ownerID
		key := &models.APIKey{
			Key:         value,
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			IsActive:    true,
			ExpiresAt:   input.ExpiresAt,
			UserID:      &owner,
			Roles:       roles,
			Permissions: perms,
		}
		if err := tx.CreateAPIKey(ctx, key); err != nil {
			return storeError(err, nil, nil, "Failed to create API key")
		}

		created, err = tx.GetAPIKey(ctx, key.ID)
		return storeError(err, nil, nil, "Failed to load API key")
	})
	if err != nil {
		return nil, err
	}

	metrics.APIKeyOperations.WithLabelValues("create").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &ownerID,
		Action:   "api_key.create",
		Resource: "api_key:" + created.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{
			"name":        created.Name,
			"roles":       len(created.Roles),
			"permissions": len(created.Permissions),
		},
	})
	return created, nil
}

// checkDelegation rejects grants the owner does not hold. Superusers may delegate anything.
func checkDelegation(owner *models.User, roles []models.Role, perms []models.Permission) error {
	if owner.IsSuperuser {
		return nil
	}
	held := permissions.ForPrincipal(owner)

	var missingRoles []string
	for _, role := range roles {
		if !held.HasRole(role.Name) {
			missingRoles = append(missingRoles, role.Name)
		}
	}
	if len(missingRoles) > 0 {
		return apperrors.NewInsufficientGrant("roles", missingRoles)
	}

	var missingPerms []string
	for _, perm := range perms {
		if !held.HasPermission(perm.Name) {
			missingPerms = append(missingPerms, perm.Name)
		}
	}
	if len(missingPerms) > 0 {
		return apperrors.NewInsufficientGrant("permissions", missingPerms)
	}
	return nil
}

// List returns the owner's keys with the key value cleared.
func (s *APIKeyService) List(ctx context.Context, ownerID string) ([]models.APIKey, error) {
	ctx = ensureContext(ctx)

	keys, err := s.store.ListAPIKeysByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list API keys")
	}
	for i := range keys {
		keys[i].Key = ""
	}
	return keys, nil
}

// Get returns full key detail, including its value, when ownerID owns it.
func (s *APIKeyService) Get(ctx context.Context, id, ownerID string) (*models.APIKey, error) {
	ctx = ensureContext(ctx)

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return nil, storeError(err, ErrAPIKeyNotFound, nil, "Failed to load API key")
	}
	if !key.OwnedBy(ownerID) {
		return nil, ErrAPIKeyNotFound
	}
	return key, nil
}

// SetActive activates or deactivates an owned key.
func (s *APIKeyService) SetActive(ctx context.Context, id, ownerID string, active bool) (*models.APIKey, error) {
	ctx = ensureContext(ctx)

	key, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAPIKeyActive(ctx, key.ID, active); err != nil {
		return nil, storeError(err, ErrAPIKeyNotFound, nil, "Failed to update API key")
	}
	key.IsActive = active

	operation := "deactivate"
	if active {
		operation = "activate"
	}
	metrics.APIKeyOperations.WithLabelValues(operation).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &ownerID,
		Action:   "api_key." + operation,
		Resource: "api_key:" + key.ID,
		Result:   AuditResultSuccess,
	})
	return key, nil
}

// Delete removes an owned key permanently.
func (s *APIKeyService) Delete(ctx context.Context, id, ownerID string) error {
	ctx = ensureContext(ctx)

	key, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAPIKey(ctx, key.ID); err != nil {
		return storeError(err, ErrAPIKeyNotFound, nil, "Failed to delete API key")
	}

	metrics.APIKeyOperations.WithLabelValues("delete").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &ownerID,
		Action:   "api_key.delete",
		Resource: "api_key:" + key.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"name": key.Name},
	})
	return nil
}
