package devices

import (
	"context"
	"errors"
	"time"

	"github.com/matchguard/matchguard/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceRepository interface {
	GetByFingerprint(ctx context.Context, userID uint, fingerprintHash string) (*model.Device, error)
	GetByID(ctx context.Context, userID uint, deviceID uint) (*model.Device, error)
	ListByUser(ctx context.Context, userID uint) ([]*model.Device, error)
	Create(ctx context.Context, device *model.Device) error
	Updates(ctx context.Context, deviceID uint, columns map[string]interface{}) (int64, error)
	// IncrementTrust atomically raises the trust score, capped at max.
	IncrementTrust(ctx context.Context, deviceID uint, delta int, max int, seenAt time.Time, ip string) error
}

type deviceRepository struct {
	db *gorm.DB
}

func (r *deviceRepository) GetByFingerprint(ctx context.Context, userID uint, fingerprintHash string) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND fingerprint_hash = ?", userID, fingerprintHash).
		First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepository) GetByID(ctx context.Context, userID uint, deviceID uint) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", deviceID, userID).
		First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepository) ListByUser(ctx context.Context, userID uint) ([]*model.Device, error) {
	var rows []*model.Device
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_seen_at DESC").Find(&rows).Error
	return rows, err
}

func (r *deviceRepository) Create(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(device).Error
}

func (r *deviceRepository) Updates(ctx context.Context, deviceID uint, columns map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", deviceID).Updates(columns)
	return res.RowsAffected, res.Error
}

func (r *deviceRepository) IncrementTrust(ctx context.Context, deviceID uint, delta int, max int, seenAt time.Time, ip string) error {
	return r.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]interface{}{
			"trust_score":  gorm.Expr("LEAST(trust_score + ?, ?)", delta, max),
			"last_seen_at": seenAt,
			"last_ip":      ip,
		}).Error
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}
