package model

import (
	"time"

	"gorm.io/gorm"
)

// AccountLock restricts authentication for a user. A user has at most one
// active lock; unlocking flips IsLocked rather than deleting the row so the
// lock history stays queryable.
type AccountLock struct {
	ID        uint       `gorm:"primarykey"`
	UserID    uint       `gorm:"not null;index"`
	Reason    string     `gorm:"size:128;not null"`
	Flag      bool       `gorm:"not null"` // soft restriction, login still allowed
	IsLocked  bool       `gorm:"not null;index"`
	LockedAt  time.Time  `gorm:"not null"`
	UnlockAt  *time.Time // nil means indefinite
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (AccountLock) TableName() string {
	return "account_locks"
}

func (l *AccountLock) BeforeCreate(tx *gorm.DB) error {
	if l.ID == 0 {
		l.ID = GenerateID()
	}
	return nil
}

// Active reports whether the lock is still in force at the given time.
func (l *AccountLock) Active(now time.Time) bool {
	if !l.IsLocked {
		return false
	}
	return l.UnlockAt == nil || l.UnlockAt.After(now)
}
