package model

import "time"

// SecurityEvent is an immutable audit record. The event body is never
// altered after insert; only the resolution fields may be set by an admin.
type SecurityEvent struct {
	ID         uint64     `gorm:"primaryKey"`
	UserID     uint       `gorm:"index"`                  // 0 when no account is involved
	Seq        uint64     `gorm:"index:idx_user_seq"`     // per-user monotonic sequence
	EventType  string     `gorm:"size:64;not null;index"` // closed set, see internal/events
	Severity   string     `gorm:"size:16;not null;index"` // low, medium, high, critical
	Data       string     `gorm:"type:json"`              // structured event payload
	IPAddress  string     `gorm:"size:45;not null"`
	Resolved   bool       `gorm:"default:false;not null;index"`
	ResolvedBy uint       // admin user id
	ResolvedAt *time.Time
	Resolution string    `gorm:"size:512"` // action note recorded by the resolver
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
}

func (SecurityEvent) TableName() string {
	return "security_events"
}
