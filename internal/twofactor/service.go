package twofactor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/matchguard/matchguard/internal/common"
	"github.com/matchguard/matchguard/internal/dispatch"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
	"golang.org/x/crypto/bcrypt"
)

// pendingEnrollment lives in the hot store while the user proves control
// of the new factor. It expires back to nothing if never confirmed.
type pendingEnrollment struct {
	Method   string `redis:"method"`
	Secret   string `redis:"secret"`
	PhoneRef string `redis:"phone"`
	CodeHash string `redis:"code_hash"`
}

// Enrollment is returned from BeginTOTPEnrollment for provisioning the
// authenticator app.
type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID uint, password string) error
}

type EventRecorder interface {
	Record(ctx context.Context, event events.Event) (uint64, error)
}

type Service struct {
	configRepo   ConfigRepository
	pendingStore store.Store[pendingEnrollment]
	attempts     store.Storage
	sender       dispatch.Sender
	verifier     PasswordVerifier
	recorder     EventRecorder
	masterKey    string
	issuer       string
}

func (s *Service) Status(ctx context.Context, userID uint) (*model.TwoFactorConfig, error) {
	return s.configRepo.Get(ctx, userID)
}

// BeginTOTPEnrollment starts TOTP setup. The factor stays inactive until
// the user confirms with a valid code; until then login behavior does not
// change.
func (s *Service) BeginTOTPEnrollment(ctx context.Context, userID uint, accountEmail string) (*Enrollment, error) {
	cfg, err := s.configRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cfg.Enabled() {
		return nil, ErrAlreadyEnabled
	}
	key, err := generateTOTPKey(s.issuer, accountEmail)
	if err != nil {
		return nil, err
	}
	pending := pendingEnrollment{
		Method: model.TwoFactorMethodTOTP,
		Secret: key.Secret(),
	}
	if err := s.pendingStore.Set(ctx, userKey(userID), pending, params.TwoFactorEnrollmentTTL); err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// BeginSMSEnrollment starts SMS setup by sending a one-time code to the
// phone number being enrolled. Delivery failure is reported in the
// receipt, not as an error, so the caller can offer a resend.
func (s *Service) BeginSMSEnrollment(ctx context.Context, userID uint, phone string) (dispatch.Receipt, error) {
	cfg, err := s.configRepo.Get(ctx, userID)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	if cfg.Enabled() {
		return dispatch.Receipt{}, ErrAlreadyEnabled
	}
	code := common.GenerateDigits(params.TwoFactorSMSCodeLength)
	pending := pendingEnrollment{
		Method:   model.TwoFactorMethodSMS,
		PhoneRef: phone,
		CodeHash: s.codeHash(userID, phone, code),
	}
	if err := s.pendingStore.Set(ctx, userKey(userID), pending, params.TwoFactorEnrollmentTTL); err != nil {
		return dispatch.Receipt{}, err
	}
	receipt, err := s.sender.Send(ctx, phone, code, dispatch.PurposeEnrollment)
	if err != nil {
		slog.Error("2fa enrollment code dispatch failed", "userId", userID, "error", err)
		receipt = dispatch.Receipt{Success: false, MaskedDestination: dispatch.MaskDestination(phone)}
	}
	return receipt, nil
}

// ConfirmEnrollment activates the pending factor once the user proves
// possession with a valid code, and returns freshly minted single-use
// backup codes. The plaintext codes are shown exactly once.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID uint, code, ip string) ([]string, error) {
	pending, err := s.pendingStore.Get(ctx, userKey(userID))
	if err == store.ErrNotFound {
		return nil, ErrNoPendingEnrollment
	}
	if err != nil {
		return nil, err
	}
	if err := s.countAttempt(ctx, userID); err != nil {
		return nil, err
	}

	ok := false
	switch pending.Method {
	case model.TwoFactorMethodTOTP:
		ok = validateTOTP(code, pending.Secret, time.Now())
	case model.TwoFactorMethodSMS:
		ok = pending.CodeHash == s.codeHash(userID, pending.PhoneRef, code)
	}
	if !ok {
		return nil, s.rejectCode(ctx, userID, ip, "enrollment")
	}

	backupCodes, codesJSON, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	cfg := &model.TwoFactorConfig{
		UserID:      userID,
		Method:      pending.Method,
		Secret:      pending.Secret,
		PhoneRef:    pending.PhoneRef,
		BackupCodes: codesJSON,
		EnabledAt:   &now,
	}
	if err := s.configRepo.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	s.pendingStore.Delete(ctx, userKey(userID))
	s.resetAttempts(ctx, userID)
	s.record(ctx, userID, events.TypeTwoFactorEnabled, events.SeverityLow, ip, map[string]any{
		"method": pending.Method,
	})
	return backupCodes, nil
}

// ChallengeSMS sends a login-time code to the enrolled phone number. The
// code is bound to that number and expires after TwoFactorSMSCodeTTL.
func (s *Service) ChallengeSMS(ctx context.Context, userID uint) (dispatch.Receipt, error) {
	cfg, err := s.configRepo.Get(ctx, userID)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	if !cfg.Enabled() {
		return dispatch.Receipt{}, ErrNotEnabled
	}
	if cfg.Method != model.TwoFactorMethodSMS {
		return dispatch.Receipt{}, ErrMethodMismatch
	}
	code := common.GenerateDigits(params.TwoFactorSMSCodeLength)
	err = s.attempts.SetAttr(ctx, userKey(userID), "sms_hash",
		s.codeHash(userID, cfg.PhoneRef, code), params.TwoFactorSMSCodeTTL)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	receipt, err := s.sender.Send(ctx, cfg.PhoneRef, code, dispatch.PurposeVerification)
	if err != nil {
		slog.Error("2fa challenge code dispatch failed", "userId", userID, "error", err)
		receipt = dispatch.Receipt{Success: false, MaskedDestination: dispatch.MaskDestination(cfg.PhoneRef)}
	}
	return receipt, nil
}

// Verify checks a second-factor code against the active method, falling
// back to single-use backup codes. Attempts are counted in a sliding
// window shared across methods.
func (s *Service) Verify(ctx context.Context, userID uint, code, ip string) error {
	cfg, err := s.configRepo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !cfg.Enabled() {
		return ErrNotEnabled
	}
	if err := s.countAttempt(ctx, userID); err != nil {
		return err
	}

	switch cfg.Method {
	case model.TwoFactorMethodTOTP:
		if validateTOTP(code, cfg.Secret, time.Now()) {
			s.resetAttempts(ctx, userID)
			return nil
		}
	case model.TwoFactorMethodSMS:
		var smsHash string
		err := s.attempts.GetAttr(ctx, userKey(userID), "sms_hash", &smsHash)
		if err == nil && smsHash != "" && smsHash == s.codeHash(userID, cfg.PhoneRef, code) {
			// single use
			s.attempts.DelAttr(ctx, userKey(userID), "sms_hash")
			s.resetAttempts(ctx, userID)
			return nil
		}
	}
	if ok, err := s.consumeBackupCode(ctx, userID, cfg, code); err != nil {
		return err
	} else if ok {
		s.resetAttempts(ctx, userID)
		s.record(ctx, userID, events.TypeBackupCodeUsed, events.SeverityMedium, ip, nil)
		return nil
	}
	return s.rejectCode(ctx, userID, ip, cfg.Method)
}

// Disable turns the second factor off. The caller's password is required
// and the change is always recorded as a medium severity event.
func (s *Service) Disable(ctx context.Context, userID uint, password, ip string) error {
	if err := s.verifier.VerifyPassword(ctx, userID, password); err != nil {
		return err
	}
	cfg, err := s.configRepo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !cfg.Enabled() {
		return ErrNotEnabled
	}
	if err := s.configRepo.Disable(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, userID, events.TypeTwoFactorDisabled, events.SeverityMedium, ip, map[string]any{
		"method": cfg.Method,
	})
	return nil
}

// RegenerateBackupCodes mints a fresh set, invalidating all previous ones.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID uint, password string) ([]string, error) {
	if err := s.verifier.VerifyPassword(ctx, userID, password); err != nil {
		return nil, err
	}
	cfg, err := s.configRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, ErrNotEnabled
	}
	codes, codesJSON, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.configRepo.UpdateBackupCodes(ctx, userID, codesJSON); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Service) consumeBackupCode(ctx context.Context, userID uint, cfg *model.TwoFactorConfig, code string) (bool, error) {
	if cfg.BackupCodes == "" {
		return false, nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(cfg.BackupCodes), &hashes); err != nil {
		return false, err
	}
	for i, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			remaining := append(hashes[:i], hashes[i+1:]...)
			buf, err := json.Marshal(remaining)
			if err != nil {
				return false, err
			}
			if err := s.configRepo.UpdateBackupCodes(ctx, userID, string(buf)); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// countAttempt atomically admits one more verification attempt in the
// current window, or rejects with ErrTooManyAttempts.
func (s *Service) countAttempt(ctx context.Context, userID uint) error {
	count, err := s.attempts.IncrAttr(ctx, userKey(userID), "count", 1)
	if err != nil {
		return err
	}
	if count == 1 {
		exp := time.Now().Add(params.TwoFactorAttemptWindow)
		if err := s.attempts.ExpireAttr(ctx, userKey(userID), exp, "count"); err != nil {
			return err
		}
	}
	if count > params.TwoFactorMaxAttempts {
		return ErrTooManyAttempts
	}
	return nil
}

func (s *Service) resetAttempts(ctx context.Context, userID uint) {
	s.attempts.DelAttr(ctx, userKey(userID), "count")
}

func (s *Service) rejectCode(ctx context.Context, userID uint, ip, method string) error {
	var count int64
	s.attempts.GetAttr(ctx, userKey(userID), "count", &count)
	left := params.TwoFactorMaxAttempts - int(count)
	if left < 0 {
		left = 0
	}
	s.record(ctx, userID, events.TypeTwoFactorFailed, events.SeverityMedium, ip, map[string]any{
		"method":       method,
		"attemptsLeft": left,
	})
	return &AttemptFailError{AttemptsLeft: left}
}

func (s *Service) record(ctx context.Context, userID uint, eventType events.EventType, severity events.Severity, ip string, data map[string]any) {
	if _, err := s.recorder.Record(ctx, events.Event{
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		Data:      data,
		IPAddress: ip,
	}); err != nil {
		slog.Error("could not record 2fa event", "type", eventType, "userId", userID, "error", err)
	}
}

func (s *Service) codeHash(userID uint, destination, code string) string {
	return common.CalculateHash(s.masterKey, userID, destination, code)
}

func generateBackupCodes() ([]string, string, error) {
	codes := make([]string, params.TwoFactorBackupCodeCount)
	hashes := make([]string, params.TwoFactorBackupCodeCount)
	for i := range codes {
		code, err := common.GenerateSecret(10)
		if err != nil {
			return nil, "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", err
		}
		codes[i] = code
		hashes[i] = string(hash)
	}
	buf, err := json.Marshal(hashes)
	if err != nil {
		return nil, "", err
	}
	return codes, string(buf), nil
}

func userKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func NewService(configRepo ConfigRepository, storage store.Storage, sender dispatch.Sender,
	verifier PasswordVerifier, recorder EventRecorder, masterKey, issuer string) *Service {
	return &Service{
		configRepo:   configRepo,
		pendingStore: store.New[pendingEnrollment](storage, params.EnrollmentKeyPrefix),
		attempts:     store.StorageWithPrefix(storage, params.AttemptKeyPrefix),
		sender:       sender,
		verifier:     verifier,
		recorder:     recorder,
		masterKey:    masterKey,
		issuer:       issuer,
	}
}
