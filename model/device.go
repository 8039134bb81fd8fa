package model

import (
	"time"

	"gorm.io/gorm"
)

// Device tracks a fingerprinted client device per user. Devices are never
// deleted; a confirmed-fraud report marks them untrusted instead.
type Device struct {
	ID              uint   `gorm:"primarykey"`
	UserID          uint   `gorm:"not null;index:idx_user_fingerprint,unique"`
	FingerprintHash string `gorm:"size:64;not null;index:idx_user_fingerprint,unique"`
	Name            string `gorm:"size:128"`
	Platform        string `gorm:"size:32"`
	TrustScore      int    `gorm:"default:0;not null"` // 0-100
	Trusted         bool   `gorm:"default:false;not null"`
	LastIP          string `gorm:"size:45"`
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Device) TableName() string {
	return "user_devices"
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == 0 {
		d.ID = GenerateID()
	}
	return nil
}
