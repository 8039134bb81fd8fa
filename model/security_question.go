package model

import (
	"time"

	"gorm.io/gorm"
)

// SecurityQuestion stores a user's question with the answer kept only as a
// salted hash of its normalized form.
type SecurityQuestion struct {
	ID         uint   `gorm:"primarykey"`
	UserID     uint   `gorm:"not null;index"`
	Question   string `gorm:"size:256;not null"`
	AnswerHash string `gorm:"size:64;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SecurityQuestion) TableName() string {
	return "security_questions"
}

func (q *SecurityQuestion) BeforeCreate(tx *gorm.DB) error {
	if q.ID == 0 {
		q.ID = GenerateID()
	}
	return nil
}
