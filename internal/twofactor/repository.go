package twofactor

import (
	"context"
	"errors"

	"github.com/matchguard/matchguard/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigRepository persists per-user second-factor configuration. Get
// returns a disabled config (method none) for users with no row yet.
type ConfigRepository interface {
	Get(ctx context.Context, userID uint) (*model.TwoFactorConfig, error)
	Upsert(ctx context.Context, cfg *model.TwoFactorConfig) error
	UpdateBackupCodes(ctx context.Context, userID uint, codesJSON string) error
	Disable(ctx context.Context, userID uint) error
}

type configRepository struct {
	db *gorm.DB
}

func (r *configRepository) Get(ctx context.Context, userID uint) (*model.TwoFactorConfig, error) {
	var cfg model.TwoFactorConfig
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.TwoFactorConfig{UserID: userID, Method: model.TwoFactorMethodNone}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *configRepository) Upsert(ctx context.Context, cfg *model.TwoFactorConfig) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"method", "secret", "phone_ref", "backup_codes", "enabled_at",
		}),
	}).Create(cfg).Error
}

func (r *configRepository) UpdateBackupCodes(ctx context.Context, userID uint, codesJSON string) error {
	return r.db.WithContext(ctx).Model(&model.TwoFactorConfig{}).
		Where("user_id = ?", userID).
		Update("backup_codes", codesJSON).Error
}

func (r *configRepository) Disable(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Model(&model.TwoFactorConfig{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"method":       model.TwoFactorMethodNone,
			"secret":       "",
			"phone_ref":    "",
			"backup_codes": "",
			"enabled_at":   nil,
		}).Error
}

func NewConfigRepository(db *gorm.DB) ConfigRepository {
	return &configRepository{db: db}
}
