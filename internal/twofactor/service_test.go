package twofactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matchguard/matchguard/internal/dispatch"
	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/model"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWrongPassword = errors.New("wrong password")

type fakeConfigRepo struct {
	configs map[uint]*model.TwoFactorConfig
}

func (r *fakeConfigRepo) Get(ctx context.Context, userID uint) (*model.TwoFactorConfig, error) {
	if cfg, ok := r.configs[userID]; ok {
		cp := *cfg
		return &cp, nil
	}
	return &model.TwoFactorConfig{UserID: userID, Method: model.TwoFactorMethodNone}, nil
}

func (r *fakeConfigRepo) Upsert(ctx context.Context, cfg *model.TwoFactorConfig) error {
	cp := *cfg
	r.configs[cfg.UserID] = &cp
	return nil
}

func (r *fakeConfigRepo) UpdateBackupCodes(ctx context.Context, userID uint, codesJSON string) error {
	if cfg, ok := r.configs[userID]; ok {
		cfg.BackupCodes = codesJSON
	}
	return nil
}

func (r *fakeConfigRepo) Disable(ctx context.Context, userID uint) error {
	if cfg, ok := r.configs[userID]; ok {
		cfg.Method = model.TwoFactorMethodNone
		cfg.Secret = ""
		cfg.PhoneRef = ""
		cfg.BackupCodes = ""
		cfg.EnabledAt = nil
	}
	return nil
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyPassword(ctx context.Context, userID uint, password string) error {
	if password != "correct" {
		return errWrongPassword
	}
	return nil
}

type fakeRecorder struct {
	recorded []events.Event
}

func (r *fakeRecorder) Record(ctx context.Context, event events.Event) (uint64, error) {
	r.recorded = append(r.recorded, event)
	return uint64(len(r.recorded)), nil
}

type fakeSender struct {
	lastCode string
	lastDest string
	fail     bool
}

func (s *fakeSender) Send(ctx context.Context, destination, code, purpose string) (dispatch.Receipt, error) {
	if s.fail {
		return dispatch.Receipt{}, errors.New("gateway down")
	}
	s.lastCode = code
	s.lastDest = destination
	return dispatch.Receipt{
		Success:           true,
		MaskedDestination: dispatch.MaskDestination(destination),
		ExpiresAt:         time.Now().Add(10 * time.Minute),
	}, nil
}

func newTestTwoFactor() (*Service, *fakeConfigRepo, *fakeSender, *fakeRecorder) {
	repo := &fakeConfigRepo{configs: map[uint]*model.TwoFactorConfig{}}
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	svc := NewService(repo, store.NewMemoryStorage(), sender, fakeVerifier{}, recorder, "test-master-key", "matchguard")
	return svc, repo, sender, recorder
}

func TestTOTPEnrollmentFlow(t *testing.T) {
	svc, repo, _, recorder := newTestTwoFactor()
	ctx := context.Background()

	enrollment, err := svc.BeginTOTPEnrollment(ctx, 1, "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.OTPAuthURL, "otpauth://")

	// factor stays off until confirmed
	cfg, err := svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled())

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	backupCodes, err := svc.ConfirmEnrollment(ctx, 1, code, "203.0.113.42")
	require.NoError(t, err)
	assert.Len(t, backupCodes, 8)

	cfg = repo.configs[1]
	assert.Equal(t, model.TwoFactorMethodTOTP, cfg.Method)
	assert.True(t, cfg.Enabled())
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, events.TypeTwoFactorEnabled, recorder.recorded[0].Type)
}

func TestConfirmEnrollmentWrongCode(t *testing.T) {
	svc, _, _, recorder := newTestTwoFactor()
	ctx := context.Background()

	_, err := svc.ConfirmEnrollment(ctx, 1, "123456", "203.0.113.42")
	assert.ErrorIs(t, err, ErrNoPendingEnrollment)

	_, err = svc.BeginTOTPEnrollment(ctx, 1, "alice@example.com")
	require.NoError(t, err)

	_, err = svc.ConfirmEnrollment(ctx, 1, "000000", "203.0.113.42")
	var attemptErr *AttemptFailError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, 4, attemptErr.AttemptsLeft)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, events.TypeTwoFactorFailed, recorder.recorded[0].Type)
}

func TestSMSEnrollmentAndChallenge(t *testing.T) {
	svc, repo, sender, _ := newTestTwoFactor()
	ctx := context.Background()

	receipt, err := svc.BeginSMSEnrollment(ctx, 2, "+15551234567")
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "********4567", receipt.MaskedDestination)
	require.Len(t, sender.lastCode, 6)

	_, err = svc.ConfirmEnrollment(ctx, 2, sender.lastCode, "203.0.113.42")
	require.NoError(t, err)
	assert.Equal(t, model.TwoFactorMethodSMS, repo.configs[2].Method)

	// login-time challenge delivers a fresh code bound to the phone
	receipt, err = svc.ChallengeSMS(ctx, 2)
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	require.NoError(t, svc.Verify(ctx, 2, sender.lastCode, "203.0.113.42"))

	// codes are single use
	err = svc.Verify(ctx, 2, sender.lastCode, "203.0.113.42")
	var attemptErr *AttemptFailError
	assert.ErrorAs(t, err, &attemptErr)
}

func TestSMSDispatchFailureNonFatal(t *testing.T) {
	svc, _, sender, _ := newTestTwoFactor()
	sender.fail = true

	receipt, err := svc.BeginSMSEnrollment(context.Background(), 3, "+15551234567")
	require.NoError(t, err)
	assert.False(t, receipt.Success)
	assert.Equal(t, "********4567", receipt.MaskedDestination)
}

func TestVerifyAttemptLimit(t *testing.T) {
	svc, _, _, _ := newTestTwoFactor()
	ctx := context.Background()

	enrollment, err := svc.BeginTOTPEnrollment(ctx, 4, "bob@example.com")
	require.NoError(t, err)
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.ConfirmEnrollment(ctx, 4, code, "203.0.113.42")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		err := svc.Verify(ctx, 4, "000000", "203.0.113.42")
		var attemptErr *AttemptFailError
		assert.ErrorAs(t, err, &attemptErr)
	}
	// window exhausted, even a valid code is refused
	valid, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Verify(ctx, 4, valid, "203.0.113.42"), ErrTooManyAttempts)
}

func TestBackupCodeSingleUse(t *testing.T) {
	svc, _, _, recorder := newTestTwoFactor()
	ctx := context.Background()

	enrollment, err := svc.BeginTOTPEnrollment(ctx, 5, "carol@example.com")
	require.NoError(t, err)
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	backupCodes, err := svc.ConfirmEnrollment(ctx, 5, code, "203.0.113.42")
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, 5, backupCodes[0], "203.0.113.42"))
	found := false
	for _, event := range recorder.recorded {
		if event.Type == events.TypeBackupCodeUsed {
			found = true
		}
	}
	assert.True(t, found, "backup code use should be recorded")

	err = svc.Verify(ctx, 5, backupCodes[0], "203.0.113.42")
	var attemptErr *AttemptFailError
	assert.ErrorAs(t, err, &attemptErr)

	// the remaining codes still work
	require.NoError(t, svc.Verify(ctx, 5, backupCodes[1], "203.0.113.42"))
}

func TestDisable(t *testing.T) {
	svc, repo, _, recorder := newTestTwoFactor()
	ctx := context.Background()

	assert.ErrorIs(t, svc.Disable(ctx, 6, "correct", "203.0.113.42"), ErrNotEnabled)

	enrollment, err := svc.BeginTOTPEnrollment(ctx, 6, "dave@example.com")
	require.NoError(t, err)
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	_, err = svc.ConfirmEnrollment(ctx, 6, code, "203.0.113.42")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Disable(ctx, 6, "nope", "203.0.113.42"), errWrongPassword)
	require.NoError(t, svc.Disable(ctx, 6, "correct", "203.0.113.42"))
	assert.False(t, repo.configs[6].Enabled())

	last := recorder.recorded[len(recorder.recorded)-1]
	assert.Equal(t, events.TypeTwoFactorDisabled, last.Type)
	assert.Equal(t, events.SeverityMedium, last.Severity)
}

func TestBeginEnrollmentWhenEnabled(t *testing.T) {
	svc, repo, _, _ := newTestTwoFactor()
	ctx := context.Background()
	now := time.Now()
	repo.configs[7] = &model.TwoFactorConfig{UserID: 7, Method: model.TwoFactorMethodTOTP, EnabledAt: &now}

	_, err := svc.BeginTOTPEnrollment(ctx, 7, "erin@example.com")
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
	_, err = svc.BeginSMSEnrollment(ctx, 7, "+15551234567")
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
}
