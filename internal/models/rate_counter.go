package models

import "time"

// RateCounter is a fixed-window request counter shared by every server instance.
type RateCounter struct {
	Key       string    `gorm:"column:counter_key;primaryKey;size:256"`
	Hits      int64     `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
