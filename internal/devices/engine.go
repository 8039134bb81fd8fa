package devices

import (
	"context"
	"errors"
	"time"

	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
)

// Evaluation is the outcome of identifying the device behind a request.
type Evaluation struct {
	Device     *model.Device
	IsNew      bool
	TrustScore int
}

// Engine tracks per-device trust. Trust starts at a low baseline for new
// fingerprints, grows with each clean authentication, and drops to zero on
// a confirmed-fraud report.
type Engine struct {
	repo DeviceRepository
}

// Register creates a device record for a fingerprint on first successful
// authentication. Registering an already-known fingerprint returns the
// existing record.
func (e *Engine) Register(ctx context.Context, userID uint, signals RawSignals, ip string) (*model.Device, error) {
	hash := Fingerprint(signals)
	existing, err := e.repo.GetByFingerprint(ctx, userID, hash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, &DeviceLookupError{Err: err}
	}

	now := time.Now()
	device := &model.Device{
		UserID:          userID,
		FingerprintHash: hash,
		Platform:        signals.Platform,
		TrustScore:      params.DeviceTrustBaseline,
		Trusted:         false,
		LastIP:          ip,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
	if err := e.repo.Create(ctx, device); err != nil {
		return nil, &DeviceLookupError{Err: err}
	}
	// a concurrent registration may have won the insert
	created, err := e.repo.GetByFingerprint(ctx, userID, hash)
	if err != nil {
		return nil, &DeviceLookupError{Err: err}
	}
	return created, nil
}

// Evaluate identifies the device for an authentication attempt. On store
// failure it returns a DeviceLookupError; callers must treat that as the
// lowest trust tier, never as trusted.
func (e *Engine) Evaluate(ctx context.Context, userID uint, signals RawSignals, ip string) (*Evaluation, error) {
	hash := Fingerprint(signals)
	device, err := e.repo.GetByFingerprint(ctx, userID, hash)
	if errors.Is(err, ErrDeviceNotFound) {
		device, err = e.Register(ctx, userID, signals, ip)
		if err != nil {
			return nil, err
		}
		return &Evaluation{Device: device, IsNew: true, TrustScore: device.TrustScore}, nil
	}
	if err != nil {
		return nil, &DeviceLookupError{Err: err}
	}
	return &Evaluation{Device: device, IsNew: false, TrustScore: device.TrustScore}, nil
}

// RecordCleanAuth raises the device's trust after a successful
// non-anomalous authentication. The score only moves up here; the cap
// keeps it at DeviceTrustMax. Once the score crosses the trusted
// threshold the device is marked trusted.
func (e *Engine) RecordCleanAuth(ctx context.Context, device *model.Device, ip string) error {
	err := e.repo.IncrementTrust(ctx, device.ID, params.DeviceTrustIncrement, params.DeviceTrustMax, time.Now(), ip)
	if err != nil {
		return &DeviceLookupError{Err: err}
	}
	refreshed, err := e.repo.GetByID(ctx, device.UserID, device.ID)
	if err != nil {
		return &DeviceLookupError{Err: err}
	}
	*device = *refreshed
	if device.TrustScore >= params.DeviceTrustedAt && !device.Trusted {
		if _, err := e.repo.Updates(ctx, device.ID, map[string]interface{}{"trusted": true}); err != nil {
			return &DeviceLookupError{Err: err}
		}
		device.Trusted = true
	}
	return nil
}

// ReportFraud resets the device's trust to zero and marks it untrusted.
// The reset is a single update so no intermediate score is observable.
func (e *Engine) ReportFraud(ctx context.Context, userID uint, deviceID uint) (*model.Device, error) {
	device, err := e.repo.GetByID(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, err
		}
		return nil, &DeviceLookupError{Err: err}
	}
	if _, err := e.repo.Updates(ctx, device.ID, map[string]interface{}{
		"trust_score": 0,
		"trusted":     false,
	}); err != nil {
		return nil, &DeviceLookupError{Err: err}
	}
	device.TrustScore = 0
	device.Trusted = false
	return device, nil
}

// SetTrusted lets a user manually toggle trust on one of their devices.
// Manually trusting does not raise the score; it only flips the flag.
func (e *Engine) SetTrusted(ctx context.Context, userID uint, deviceID uint, trusted bool) (*model.Device, error) {
	device, err := e.repo.GetByID(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, err
		}
		return nil, &DeviceLookupError{Err: err}
	}
	if _, err := e.repo.Updates(ctx, device.ID, map[string]interface{}{"trusted": trusted}); err != nil {
		return nil, &DeviceLookupError{Err: err}
	}
	device.Trusted = trusted
	return device, nil
}

func (e *Engine) ListDevices(ctx context.Context, userID uint) ([]*model.Device, error) {
	rows, err := e.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, &DeviceLookupError{Err: err}
	}
	return rows, nil
}

func NewEngine(repo DeviceRepository) *Engine {
	return &Engine{repo: repo}
}
