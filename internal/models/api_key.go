package models

import "time"

// APIKey is an opaque static credential. Its effective permissions are its direct
// Permissions plus those of its Roles.
type APIKey struct {
	BaseModel

	Key         string     `gorm:"uniqueIndex;not null;size:128" json:"key,omitempty"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at"`

	UserID *string `gorm:"type:uuid;index" json:"user_id"`

	Roles       []Role       `gorm:"many2many:api_key_roles;constraint:OnDelete:CASCADE" json:"roles"`
	Permissions []Permission `gorm:"many2many:api_key_permissions;constraint:OnDelete:CASCADE" json:"permissions"`
}

// IsExpired reports whether the key has an expiry at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// IsValid reports whether the key is active and unexpired at now.
func (k *APIKey) IsValid(now time.Time) bool {
	if k == nil {
		return false
	}
	return k.IsActive && !k.IsExpired(now)
}

// OwnedBy reports whether the key belongs to userID.
func (k *APIKey) OwnedBy(userID string) bool {
	return k != nil && k.UserID != nil && *k.UserID == userID
}
