package models

import "gorm.io/datatypes"

// IdentityLink ties a user to an external OAuth account. One link exists per
// (user, provider) pair.
type IdentityLink struct {
	BaseModel

	UserID         string `gorm:"type:uuid;not null;index:idx_identity_user_provider" json:"user_id"`
	Provider       string `gorm:"not null;index:idx_identity_user_provider" json:"provider"`
	ProviderUserID string `gorm:"not null;index" json:"provider_user_id"`

	AccessToken  string         `json:"-"`
	RefreshToken string         `json:"-"`
	ProviderData datatypes.JSON `json:"-"`
}
