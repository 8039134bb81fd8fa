package model

import (
	"time"
)

const (
	TwoFactorMethodNone = "none"
	TwoFactorMethodTOTP = "totp"
	TwoFactorMethodSMS  = "sms"
)

// TwoFactorConfig holds a user's active second factor. A user has exactly
// one row and at most one active method at a time; disabling clears the
// secret material and sets the method back to none.
type TwoFactorConfig struct {
	ID          uint   `gorm:"primarykey,autoIncrement"`
	UserID      uint   `gorm:"uniqueIndex;not null"`
	Method      string `gorm:"size:16;default:none;not null"` // none, totp, sms
	Secret      string `gorm:"size:128"`                      // TOTP shared secret
	PhoneRef    string `gorm:"size:32"`                       // E.164 number for SMS codes
	BackupCodes string `gorm:"type:json"`                     // JSON array of salted hashes
	EnabledAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TwoFactorConfig) TableName() string {
	return "two_factor_config"
}

func (c *TwoFactorConfig) Enabled() bool {
	return c.Method != "" && c.Method != TwoFactorMethodNone
}
