package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/charlesng35/keyward/internal/auditctx"
	"github.com/charlesng35/keyward/internal/auth/providers"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/store"
	"github.com/charlesng35/keyward/pkg/crypto"
	apperrors "github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/metrics"
)

// DefaultRoleName is granted to principals created through an external login.
const DefaultRoleName = models.RoleUser

// Reconciliation outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeLinked    = "linked"
	OutcomeRefreshed = "refreshed"
)

// IdentityService maps external identities onto local principals.
type IdentityService struct {
	store    store.Store
	audit    *AuditService
	tokenKey []byte
}

// IdentityServiceOption customises an IdentityService.
type IdentityServiceOption func(*IdentityService)

// WithTokenEncryptionKey encrypts upstream access and refresh tokens at rest.
func WithTokenEncryptionKey(key []byte) IdentityServiceOption {
	return func(s *IdentityService) {
		s.tokenKey = key
	}
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(st store.Store, audit *AuditService, opts ...IdentityServiceOption) (*IdentityService, error) {
	if st == nil {
		return nil, errors.New("identity service: store is required")
	}
	svc := &IdentityService{store: st, audit: audit}
	for _, opt := range opts {
		opt(svc)
	}
	if len(svc.tokenKey) > 0 && len(svc.tokenKey) != crypto.KeySize {
		return nil, fmt.Errorf("identity service: token key must be %d bytes", crypto.KeySize)
	}
	return svc, nil
}

// Reconcile finds or creates the principal owning profile.Email and links or refreshes
// its identity for provider. Existing principals are never demoted or deleted, and an
// inactive principal is returned unchanged.
func (s *IdentityService) Reconcile(ctx context.Context, provider string, profile *providers.Profile) (*models.User, error) {
	ctx = ensureContext(ctx)

	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, apperrors.NewBadRequest("provider is required")
	}
	if profile == nil || models.NormalizeEmail(profile.Email) == "" {
		return nil, apperrors.ErrUpstreamIdentity.WithInternal(providers.ErrEmailMissing)
	}

	accessToken, err := s.seal(profile.AccessToken)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to store identity")
	}
	refreshToken, err := s.seal(profile.RefreshToken)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to store identity")
	}
	var providerData datatypes.JSON
	if len(profile.Raw) > 0 {
		encoded, err := json.Marshal(profile.Raw)
		if err != nil {
			return nil, apperrors.Wrap(err, "Failed to store identity")
		}
		providerData = datatypes.JSON(encoded)
	}

	var (
		userID  string
		outcome string
	)
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		user, created, err := findOrCreatePrincipal(ctx, tx, profile)
		if err != nil {
			return err
		}
		userID = user.ID

		link, err := tx.GetIdentityLink(ctx, user.ID, provider)
		switch {
		case errors.Is(err, store.ErrNotFound):
			outcome = OutcomeLinked
			if created {
				outcome = OutcomeCreated
			}
			return tx.CreateIdentityLink(ctx, &models.IdentityLink{
				UserID:         user.ID,
				Provider:       provider,
				ProviderUserID: strings.TrimSpace(profile.ProviderUserID),
				AccessToken:    accessToken,
				RefreshToken:   refreshToken,
				ProviderData:   providerData,
			})
		case err != nil:
			return err
		}

		outcome = OutcomeRefreshed
		link.AccessToken = accessToken
		if refreshToken != "" {
			link.RefreshToken = refreshToken
		}
		if len(providerData) > 0 {
			link.ProviderData = providerData
		}
		return tx.UpdateIdentityLink(ctx, link)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, "Failed to reconcile identity")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, ErrUserNotFound, nil, "Failed to load user")
	}

	metrics.IdentityReconciliations.WithLabelValues(provider, outcome).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Actor:    user.Email,
		Method:   auditctx.MethodOAuth,
		Action:   "identity." + outcome,
		Resource: "identity:" + provider,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"provider_user_id": profile.ProviderUserID},
	})
	return user, nil
}

func findOrCreatePrincipal(ctx context.Context, tx store.Store, profile *providers.Profile) (*models.User, bool, error) {
	email := models.NormalizeEmail(profile.Email)

	user, err := tx.GetUserByEmail(ctx, email)
	if err == nil {
		if user.AvatarURL == "" && strings.TrimSpace(profile.AvatarURL) != "" {
			if err := tx.UpdateUserProfile(ctx, user.ID, "", profile.AvatarURL); err != nil {
				return nil, false, err
			}
		}
		return user, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	role, err := tx.GetRoleByName(ctx, DefaultRoleName)
	if err != nil {
		return nil, false, fmt.Errorf("identity service: load default role %q: %w", DefaultRoleName, err)
	}

	fullName := strings.TrimSpace(profile.FullName)
	if fullName == "" {
		fullName = models.DisplayNameFromEmail(email)
	}
	user = &models.User{
		Email:     email,
		FullName:  fullName,
		AvatarURL: strings.TrimSpace(profile.AvatarURL),
		IsActive:  true,
		Roles:     []models.Role{*role},
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, false, ErrUserExists.WithInternal(err)
		}
		return nil, false, err
	}
	return user, true, nil
}

func (s *IdentityService) seal(token string) (string, error) {
	if token == "" || len(s.tokenKey) == 0 {
		return token, nil
	}
	return crypto.Encrypt([]byte(token), s.tokenKey)
}

// OpenToken reverses the at-rest encryption applied to stored upstream tokens.
func (s *IdentityService) OpenToken(stored string) (string, error) {
	if stored == "" || len(s.tokenKey) == 0 {
		return stored, nil
	}
	raw, err := crypto.Decrypt(stored, s.tokenKey)
	if err != nil {
		return "", fmt.Errorf("identity service: decrypt token: %w", err)
	}
	return string(raw), nil
}
