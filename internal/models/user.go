package models

import (
	"strings"

	"gorm.io/gorm"
)

// User is an authenticated principal. Effective permissions derive from Roles only;
// users never hold direct permission grants.
type User struct {
	BaseModel

	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	FullName    string `json:"full_name"`
	AvatarURL   string `json:"avatar_url"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	IsSuperuser bool   `gorm:"default:false" json:"is_superuser"`

	Roles      []Role         `gorm:"many2many:user_roles;constraint:OnDelete:CASCADE" json:"roles"`
	Identities []IdentityLink `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	APIKeys    []APIKey       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeSave normalises the email so lookups are case-insensitive.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	u.FullName = strings.TrimSpace(u.FullName)
	return nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayNameFromEmail returns the local part of an email address.
func DisplayNameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
