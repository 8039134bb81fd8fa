package events

import "errors"

// Severity is the closed set of event severities. Keeping it closed lets
// the lockout controller and dashboard aggregations switch exhaustively.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities for threat aggregation, low first.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

type EventType string

const (
	TypeLoginSuccess         EventType = "login_success"
	TypeLoginFailure         EventType = "login_failure"
	TypeRiskChallenge        EventType = "risk_challenge"
	TypeRiskBlock            EventType = "risk_block"
	TypeAccountLocked        EventType = "account_locked"
	TypeAccountUnlocked      EventType = "account_unlocked"
	TypeAccountFlagged       EventType = "account_flagged"
	TypeTwoFactorEnabled     EventType = "2fa_enabled"
	TypeTwoFactorDisabled    EventType = "2fa_disabled"
	TypeTwoFactorFailed      EventType = "2fa_attempt_failed"
	TypeBackupCodeUsed       EventType = "2fa_backup_code_used"
	TypeDeviceRegistered     EventType = "device_registered"
	TypeDeviceTrustReset     EventType = "device_trust_reset"
	TypeFraudReport          EventType = "fraud_report"
	TypePasswordChanged      EventType = "password_changed"
	TypeQuestionVerifyFailed EventType = "security_question_failed"
	TypeDataExportRequested  EventType = "data_export_requested"
	TypeDeleteRequested      EventType = "account_delete_requested"
)

var (
	ErrInvalidSeverity  = errors.New("invalid event severity")
	ErrEventNotFound    = errors.New("security event not found")
	ErrAlreadyResolved  = errors.New("security event already resolved")
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// Event is the write-side payload handed to the recorder.
type Event struct {
	UserID    uint
	Type      EventType
	Severity  Severity
	Data      map[string]any
	IPAddress string
}
