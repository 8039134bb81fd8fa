package accounts

import (
	"context"

	"github.com/matchguard/matchguard/model"
	"gorm.io/gorm"
)

type QuestionRepository interface {
	ListByUser(ctx context.Context, userID uint) ([]*model.SecurityQuestion, error)
	Replace(ctx context.Context, userID uint, questions []*model.SecurityQuestion) error
}

type questionRepository struct {
	db *gorm.DB
}

func (r *questionRepository) ListByUser(ctx context.Context, userID uint) ([]*model.SecurityQuestion, error) {
	var rows []*model.SecurityQuestion
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").Find(&rows).Error
	return rows, err
}

// Replace swaps the user's question set in one transaction so a reader
// never observes a partial set.
func (r *questionRepository) Replace(ctx context.Context, userID uint, questions []*model.SecurityQuestion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.SecurityQuestion{}).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return tx.Create(questions).Error
	})
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}
