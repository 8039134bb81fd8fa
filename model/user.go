package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User stores account identity and credentials.
type User struct {
	ID                uint               `gorm:"primarykey"`
	Email             string             `gorm:"uniqueIndex;size:256;not null"`
	Password          string             `gorm:"size:64;not null"`
	Role              string             `gorm:"size:16;default:user;not null"`
	EmailVerified     bool               `gorm:"default:false;not null"`
	Disabled          bool               `gorm:"default:false;not null"`
	DeleteRequestedAt *time.Time         // start of the soft-delete grace period
	Devices           []Device           `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	TwoFactor         *TwoFactorConfig   `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	SecurityQuestions []SecurityQuestion `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}
