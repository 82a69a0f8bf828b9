package models

import (
	"time"
)

// User is an organization account allowed to run bulk uploads and record
// corrections. Public search needs no account.
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time      `gorm:"index"`
	Username       string          `gorm:"size:255;not null;unique"`
	HashedPassword []byte          `gorm:"not null"`
	Organization   string          `gorm:"size:255"`
	RoleID         *uint           `gorm:"index"`
	Role           Role            `gorm:"foreignKey:RoleID;references:ID"`
	Sessions       []UploadSession `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}
