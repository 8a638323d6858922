package models

import (
	"strings"

	"gorm.io/gorm"
)

// Permission is a named capability following the resource:action convention.
type Permission struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Resource    string `gorm:"index" json:"resource,omitempty"`
	Action      string `json:"action,omitempty"`
	Description string `json:"description,omitempty"`
}

// BeforeSave fills the resource and action classifiers from the name when absent.
func (p *Permission) BeforeSave(tx *gorm.DB) error {
	p.Name = strings.TrimSpace(p.Name)
	resource, action, ok := strings.Cut(p.Name, ":")
	if !ok {
		return nil
	}
	if p.Resource == "" {
		p.Resource = resource
	}
	if p.Action == "" {
		p.Action = action
	}
	return nil
}
