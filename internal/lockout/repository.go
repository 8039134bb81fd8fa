package lockout

import (
	"context"
	"errors"

	"github.com/matchguard/matchguard/model"
	"gorm.io/gorm"
)

// LockRepository persists account locks. The active lock is the single
// row with is_locked=true; releasing flips the flag so history survives.
type LockRepository interface {
	GetActive(ctx context.Context, userID uint) (*model.AccountLock, error)
	Create(ctx context.Context, lock *model.AccountLock) error
	Release(ctx context.Context, userID uint) (int64, error)
	History(ctx context.Context, userID uint, limit int) ([]*model.AccountLock, error)
}

type lockRepository struct {
	db *gorm.DB
}

func (r *lockRepository) GetActive(ctx context.Context, userID uint) (*model.AccountLock, error) {
	var lock model.AccountLock
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_locked = ?", userID, true).
		Order("locked_at DESC").
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotLocked
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *lockRepository) Create(ctx context.Context, lock *model.AccountLock) error {
	if !lock.IsLocked {
		return r.db.WithContext(ctx).Create(lock).Error
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// release any stale active lock first so at most one is in force
		if err := tx.Model(&model.AccountLock{}).
			Where("user_id = ? AND is_locked = ?", lock.UserID, true).
			Update("is_locked", false).Error; err != nil {
			return err
		}
		return tx.Create(lock).Error
	})
}

func (r *lockRepository) Release(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.AccountLock{}).
		Where("user_id = ? AND is_locked = ?", userID, true).
		Update("is_locked", false)
	return res.RowsAffected, res.Error
}

func (r *lockRepository) History(ctx context.Context, userID uint, limit int) ([]*model.AccountLock, error) {
	var locks []*model.AccountLock
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("locked_at DESC").
		Limit(limit).
		Find(&locks).Error
	return locks, err
}

func NewLockRepository(db *gorm.DB) LockRepository {
	return &lockRepository{db: db}
}
