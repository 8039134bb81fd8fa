package devices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matchguard/matchguard/model"
	"github.com/matchguard/matchguard/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceRepo struct {
	mu      sync.Mutex
	nextID  uint
	rows    map[uint]*model.Device
	failing bool
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{nextID: 1, rows: make(map[uint]*model.Device)}
}

var errStoreDown = errors.New("store unreachable")

func (r *fakeDeviceRepo) GetByFingerprint(ctx context.Context, userID uint, hash string) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return nil, errStoreDown
	}
	for _, d := range r.rows {
		if d.UserID == userID && d.FingerprintHash == hash {
			clone := *d
			return &clone, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (r *fakeDeviceRepo) GetByID(ctx context.Context, userID uint, deviceID uint) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return nil, errStoreDown
	}
	if d, ok := r.rows[deviceID]; ok && d.UserID == userID {
		clone := *d
		return &clone, nil
	}
	return nil, ErrDeviceNotFound
}

func (r *fakeDeviceRepo) ListByUser(ctx context.Context, userID uint) ([]*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return nil, errStoreDown
	}
	var out []*model.Device
	for _, d := range r.rows {
		if d.UserID == userID {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) Create(ctx context.Context, device *model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errStoreDown
	}
	for _, d := range r.rows {
		if d.UserID == device.UserID && d.FingerprintHash == device.FingerprintHash {
			return nil // conflict ignored, matches ON CONFLICT DO NOTHING
		}
	}
	device.ID = r.nextID
	r.nextID++
	clone := *device
	r.rows[device.ID] = &clone
	return nil
}

func (r *fakeDeviceRepo) Updates(ctx context.Context, deviceID uint, columns map[string]interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return 0, errStoreDown
	}
	d, ok := r.rows[deviceID]
	if !ok {
		return 0, nil
	}
	if v, ok := columns["trust_score"]; ok {
		if score, isInt := v.(int); isInt {
			d.TrustScore = score
		}
	}
	if v, ok := columns["trusted"]; ok {
		d.Trusted = v.(bool)
	}
	return 1, nil
}

func (r *fakeDeviceRepo) IncrementTrust(ctx context.Context, deviceID uint, delta int, max int, seenAt time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errStoreDown
	}
	d, ok := r.rows[deviceID]
	if !ok {
		return nil
	}
	d.TrustScore += delta
	if d.TrustScore > max {
		d.TrustScore = max
	}
	d.LastSeenAt = seenAt
	d.LastIP = ip
	return nil
}

func TestEvaluateNewDeviceGetsBaseline(t *testing.T) {
	engine := NewEngine(newFakeDeviceRepo())
	ctx := context.Background()

	eval, err := engine.Evaluate(ctx, 1, baseSignals(), "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, eval.IsNew)
	assert.Equal(t, params.DeviceTrustBaseline, eval.TrustScore)
	assert.False(t, eval.Device.Trusted)
}

func TestEvaluateKnownDevice(t *testing.T) {
	engine := NewEngine(newFakeDeviceRepo())
	ctx := context.Background()

	first, err := engine.Evaluate(ctx, 1, baseSignals(), "203.0.113.9")
	require.NoError(t, err)
	second, err := engine.Evaluate(ctx, 1, baseSignals(), "203.0.113.9")
	require.NoError(t, err)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.Device.ID, second.Device.ID)
}

func TestTrustMonotonicallyIncreasesAndCaps(t *testing.T) {
	engine := NewEngine(newFakeDeviceRepo())
	ctx := context.Background()

	eval, err := engine.Evaluate(ctx, 1, baseSignals(), "203.0.113.9")
	require.NoError(t, err)
	device := eval.Device

	prev := device.TrustScore
	for i := 0; i < 30; i++ {
		require.NoError(t, engine.RecordCleanAuth(ctx, device, "203.0.113.9"))
		assert.GreaterOrEqual(t, device.TrustScore, prev, "trust must never decrease on clean auth")
		assert.LessOrEqual(t, device.TrustScore, params.DeviceTrustMax)
		prev = device.TrustScore
	}
	assert.Equal(t, params.DeviceTrustMax, device.TrustScore)
	assert.True(t, device.Trusted)
}

func TestFraudResetDropsTrustToZero(t *testing.T) {
	engine := NewEngine(newFakeDeviceRepo())
	ctx := context.Background()

	eval, err := engine.Evaluate(ctx, 1, baseSignals(), "203.0.113.9")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, engine.RecordCleanAuth(ctx, eval.Device, "203.0.113.9"))
	}

	device, err := engine.ReportFraud(ctx, 1, eval.Device.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, device.TrustScore)
	assert.False(t, device.Trusted)
}

func TestEvaluateFailsClosedOnStoreError(t *testing.T) {
	repo := newFakeDeviceRepo()
	repo.failing = true
	engine := NewEngine(repo)

	eval, err := engine.Evaluate(context.Background(), 1, baseSignals(), "203.0.113.9")
	assert.Nil(t, eval)

	var lookupErr *DeviceLookupError
	require.ErrorAs(t, err, &lookupErr)
}
