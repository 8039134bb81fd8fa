package lockout

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/risk"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
)

const ReasonAutoEscalation = "auto_escalation"

type QuestionVerifier interface {
	VerifySecurityQuestions(ctx context.Context, userID uint, answers map[string]string) (int, error)
}

type EventRecorder interface {
	Record(ctx context.Context, event events.Event) (uint64, error)
}

// Service enforces account locks and escalates repeated risky activity
// into an automatic lock.
type Service struct {
	lockRepo  LockRepository
	counters  store.Storage
	questions QuestionVerifier
	recorder  EventRecorder
	cfg       LockPolicy
}

// LockPolicy bundles the tunables so operators can tighten or relax
// escalation without a rebuild.
type LockPolicy struct {
	EscalationThreshold int64
	EscalationWindow    time.Duration
	LockDuration        time.Duration
	UnlockMaxAttempts   int64
	UnlockWindow        time.Duration
}

func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		EscalationThreshold: params.EscalationThreshold,
		EscalationWindow:    params.EscalationWindow,
		LockDuration:        params.DefaultLockDuration,
		UnlockMaxAttempts:   params.TwoFactorMaxAttempts,
		UnlockWindow:        params.TwoFactorAttemptWindow,
	}
}

// CheckLocked returns an AccountLockedError while a hard lock is in
// force. Flags (soft restrictions) and expired locks do not block.
func (s *Service) CheckLocked(ctx context.Context, userID uint) error {
	lock, err := s.lockRepo.GetActive(ctx, userID)
	if err == ErrNotLocked {
		return nil
	}
	if err != nil {
		return err
	}
	if !lock.Active(time.Now()) {
		return nil
	}
	return &AccountLockedError{Reason: lock.Reason, Until: lock.UnlockAt}
}

// Lock places a hard lock on the account. duration <= 0 locks
// indefinitely until an operator unlocks.
func (s *Service) Lock(ctx context.Context, userID uint, reason string, duration time.Duration, ip string) error {
	if err := s.CheckLocked(ctx, userID); err != nil {
		if _, ok := err.(*AccountLockedError); ok {
			return ErrAlreadyLocked
		}
		return err
	}
	now := time.Now()
	lock := &model.AccountLock{
		UserID:   userID,
		Reason:   reason,
		IsLocked: true,
		LockedAt: now,
	}
	if duration > 0 {
		until := now.Add(duration)
		lock.UnlockAt = &until
	}
	if err := s.lockRepo.Create(ctx, lock); err != nil {
		return err
	}
	severity := events.SeverityHigh
	if reason == ReasonAutoEscalation {
		severity = events.SeverityCritical
	}
	s.record(ctx, userID, events.TypeAccountLocked, severity, ip, map[string]any{
		"reason":   reason,
		"unlockAt": lock.UnlockAt,
	})
	return nil
}

// Flag places a soft restriction: the account stays usable but the flag
// shows up in lock history and on the dashboard. A flag never touches an
// active hard lock.
func (s *Service) Flag(ctx context.Context, userID uint, reason, ip string) error {
	lock := &model.AccountLock{
		UserID:   userID,
		Reason:   reason,
		Flag:     true,
		IsLocked: false,
		LockedAt: time.Now(),
	}
	if err := s.lockRepo.Create(ctx, lock); err != nil {
		return err
	}
	s.record(ctx, userID, events.TypeAccountFlagged, events.SeverityMedium, ip, map[string]any{
		"reason": reason,
	})
	return nil
}

// Unlock releases the active lock and resets the escalation counter.
func (s *Service) Unlock(ctx context.Context, userID uint, method, ip string) error {
	affected, err := s.lockRepo.Release(ctx, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotLocked
	}
	s.counters.DelAttr(ctx, userKey(userID), "esc")
	s.record(ctx, userID, events.TypeAccountUnlocked, events.SeverityMedium, ip, map[string]any{
		"method": method,
	})
	return nil
}

// RegisterDecision feeds a risk decision into the escalation counter.
// Enough challenge-or-worse decisions inside the window trip an
// automatic lock.
func (s *Service) RegisterDecision(ctx context.Context, userID uint, decision risk.Decision, ip string) error {
	if !decision.AtLeastChallenge() {
		return nil
	}
	count, err := s.counters.IncrAttr(ctx, userKey(userID), "esc", 1)
	if err != nil {
		return err
	}
	if count == 1 {
		exp := time.Now().Add(s.cfg.EscalationWindow)
		if err := s.counters.ExpireAttr(ctx, userKey(userID), exp, "esc"); err != nil {
			return err
		}
	}
	if count < s.cfg.EscalationThreshold {
		return nil
	}
	err = s.Lock(ctx, userID, ReasonAutoEscalation, s.cfg.LockDuration, ip)
	if err == ErrAlreadyLocked {
		return nil
	}
	return err
}

// UnlockWithQuestions lets a locked-out user recover by answering their
// security questions. Wrong answer sets are rate limited like 2FA codes.
func (s *Service) UnlockWithQuestions(ctx context.Context, userID uint, answers map[string]string, ip string) error {
	if err := s.CheckLocked(ctx, userID); err == nil {
		return ErrNotLocked
	} else if _, ok := err.(*AccountLockedError); !ok {
		return err
	}

	count, err := s.counters.IncrAttr(ctx, userKey(userID), "qa", 1)
	if err != nil {
		return err
	}
	if count == 1 {
		exp := time.Now().Add(s.cfg.UnlockWindow)
		if err := s.counters.ExpireAttr(ctx, userKey(userID), exp, "qa"); err != nil {
			return err
		}
	}
	if count > s.cfg.UnlockMaxAttempts {
		return ErrTooManyUnlockAttempts
	}

	if _, err := s.questions.VerifySecurityQuestions(ctx, userID, answers); err != nil {
		s.record(ctx, userID, events.TypeQuestionVerifyFailed, events.SeverityMedium, ip, nil)
		return err
	}
	s.counters.DelAttr(ctx, userKey(userID), "qa")
	return s.Unlock(ctx, userID, "security_questions", ip)
}

func (s *Service) History(ctx context.Context, userID uint, limit int) ([]*model.AccountLock, error) {
	return s.lockRepo.History(ctx, userID, limit)
}

func (s *Service) record(ctx context.Context, userID uint, eventType events.EventType, severity events.Severity, ip string, data map[string]any) {
	if _, err := s.recorder.Record(ctx, events.Event{
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		Data:      data,
		IPAddress: ip,
	}); err != nil {
		slog.Error("could not record lockout event", "type", eventType, "userId", userID, "error", err)
	}
}

func userKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func NewService(lockRepo LockRepository, storage store.Storage, questions QuestionVerifier,
	recorder EventRecorder, cfg LockPolicy) *Service {
	return &Service{
		lockRepo:  lockRepo,
		counters:  store.StorageWithPrefix(storage, params.LockoutKeyPrefix),
		questions: questions,
		recorder:  recorder,
		cfg:       cfg,
	}
}
