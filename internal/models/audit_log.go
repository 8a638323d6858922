package models

import "gorm.io/datatypes"

// AuditLog records security relevant actions such as key lifecycle changes and logins.
type AuditLog struct {
	BaseModel

	UserID    *string        `gorm:"type:uuid;index" json:"user_id"`
	Actor     string         `json:"actor"`
	Method    string         `gorm:"size:16;index" json:"method,omitempty"`
	APIKeyID  *string        `gorm:"type:uuid;index" json:"api_key_id,omitempty"`
	Action    string         `gorm:"not null;index" json:"action"`
	Resource  string         `gorm:"index" json:"resource"`
	Result    string         `gorm:"not null" json:"result"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
}
