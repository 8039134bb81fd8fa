package api

import (
	"context"
	"time"

	"github.com/matchguard/matchguard/internal/accounts"
	"github.com/matchguard/matchguard/internal/devices"
	"github.com/matchguard/matchguard/internal/dispatch"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/risk"
	"github.com/matchguard/matchguard/internal/twofactor"
	"github.com/matchguard/matchguard/model"
)

// Consumer-side interfaces for the services the handlers depend on.

type UserService interface {
	GetUser(ctx context.Context, userID uint) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	Register(ctx context.Context, email, password string) (*model.User, error)
	VerifyPassword(ctx context.Context, userID uint, password string) error
	ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error
	SetSecurityQuestions(ctx context.Context, userID uint, pairs []accounts.QuestionAnswer) error
	ListSecurityQuestions(ctx context.Context, userID uint) ([]string, error)
	RequestDeletion(ctx context.Context, userID uint, currentPassword string) (time.Time, error)
	CancelDeletion(ctx context.Context, userID uint) error
	IssueExportToken(userID uint) (string, time.Time, error)
	VerifyExportToken(tokenString string) (uint, error)
}

type TwoFactorService interface {
	Status(ctx context.Context, userID uint) (*model.TwoFactorConfig, error)
	BeginTOTPEnrollment(ctx context.Context, userID uint, accountEmail string) (*twofactor.Enrollment, error)
	BeginSMSEnrollment(ctx context.Context, userID uint, phone string) (dispatch.Receipt, error)
	ConfirmEnrollment(ctx context.Context, userID uint, code, ip string) ([]string, error)
	ChallengeSMS(ctx context.Context, userID uint) (dispatch.Receipt, error)
	Verify(ctx context.Context, userID uint, code, ip string) error
	Disable(ctx context.Context, userID uint, password, ip string) error
	RegenerateBackupCodes(ctx context.Context, userID uint, password string) ([]string, error)
}

type DeviceService interface {
	Evaluate(ctx context.Context, userID uint, signals devices.RawSignals, ip string) (*devices.Evaluation, error)
	RecordCleanAuth(ctx context.Context, device *model.Device, ip string) error
	ReportFraud(ctx context.Context, userID uint, deviceID uint) (*model.Device, error)
	SetTrusted(ctx context.Context, userID uint, deviceID uint, trusted bool) (*model.Device, error)
	ListDevices(ctx context.Context, userID uint) ([]*model.Device, error)
}

type RiskCollector interface {
	Collect(ctx context.Context, userID uint, ip string, at time.Time, geo *risk.LatLon) (risk.Context, error)
	RecordSuccess(ctx context.Context, userID uint, at time.Time, geo *risk.LatLon) error
}

type LockoutService interface {
	CheckLocked(ctx context.Context, userID uint) error
	Lock(ctx context.Context, userID uint, reason string, duration time.Duration, ip string) error
	Unlock(ctx context.Context, userID uint, method, ip string) error
	Flag(ctx context.Context, userID uint, reason, ip string) error
	RegisterDecision(ctx context.Context, userID uint, decision risk.Decision, ip string) error
	UnlockWithQuestions(ctx context.Context, userID uint, answers map[string]string, ip string) error
	History(ctx context.Context, userID uint, limit int) ([]*model.AccountLock, error)
}

type EventService interface {
	Record(ctx context.Context, event events.Event) (uint64, error)
	Resolve(ctx context.Context, eventID uint64, action string, actor uint) error
	Get(ctx context.Context, eventID uint64) (*model.SecurityEvent, error)
	Query(ctx context.Context, filter events.Filter, page events.Page) ([]*model.SecurityEvent, int64, error)
	Overview(ctx context.Context, since, until time.Time) (*events.Overview, error)
	TopThreats(ctx context.Context, since, until time.Time, limit int) ([]events.ThreatSummary, error)
	RiskRanking(ctx context.Context, since, until time.Time, limit int) ([]events.UserRisk, error)
	BlockedIPs(ctx context.Context, since, until time.Time) ([]events.BlockedIP, error)
}
