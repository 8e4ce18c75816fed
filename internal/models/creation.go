package models

import (
	"time"

	"gorm.io/datatypes"
)

// Creation is one persisted generated artifact (a hook, an FAQ entry, an image...).
type Creation struct {
	ID        string         `gorm:"primaryKey;size:26" json:"id"`
	Type      string         `gorm:"type:varchar(64);not null;index:idx_creation_user_type,priority:2" json:"type"`
	UserID    uint64         `gorm:"not null;index:idx_creation_user_type,priority:1" json:"-"`
	ProjectID *string        `gorm:"size:26;index" json:"project_id,omitempty"`
	Input     datatypes.JSON `json:"input"`
	Output    datatypes.JSON `json:"output"`
	Rating    *int           `json:"rating,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
