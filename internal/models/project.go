package models

import "time"

const DefaultProjectName = "Default"

// Project groups a user's creations. Version backs optimistic updates.
type Project struct {
	ID            string    `gorm:"primaryKey;size:26" json:"id"`
	UserID        uint64    `gorm:"not null;index:uniq_project_user_name,unique,priority:1" json:"-"`
	Name          string    `gorm:"type:varchar(128);not null;index:uniq_project_user_name,unique,priority:2" json:"name"`
	IsDefault     bool      `gorm:"not null;default:false" json:"is_default"`
	CreationCount int64     `gorm:"not null;default:0" json:"creation_count"`
	Version       int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
