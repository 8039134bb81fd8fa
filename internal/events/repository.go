package events

import (
	"context"
	"errors"
	"time"

	"github.com/matchguard/matchguard/model"
	"gorm.io/gorm"
)

// Filter narrows event listings. Zero values are ignored.
type Filter struct {
	UserID    uint
	EventType EventType
	Severity  Severity
	Resolved  *bool
	Since     time.Time
	Until     time.Time
}

type Page struct {
	Offset int
	Limit  int
}

type EventRepository interface {
	Insert(ctx context.Context, event *model.SecurityEvent) error
	GetByID(ctx context.Context, id uint64) (*model.SecurityEvent, error)
	List(ctx context.Context, filter Filter, page Page) ([]*model.SecurityEvent, int64, error)
	ListWindow(ctx context.Context, since, until time.Time) ([]*model.SecurityEvent, error)
	MarkResolved(ctx context.Context, id uint64, actor uint, action string, at time.Time) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

func (r *eventRepository) Insert(ctx context.Context, event *model.SecurityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) GetByID(ctx context.Context, id uint64) (*model.SecurityEvent, error) {
	var event model.SecurityEvent
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) buildQuery(ctx context.Context, filter Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.SecurityEvent{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", string(filter.EventType))
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", string(filter.Severity))
	}
	if filter.Resolved != nil {
		q = q.Where("resolved = ?", *filter.Resolved)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at < ?", filter.Until)
	}
	return q
}

func (r *eventRepository) List(ctx context.Context, filter Filter, page Page) ([]*model.SecurityEvent, int64, error) {
	q := r.buildQuery(ctx, filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page.Limit <= 0 || page.Limit > 200 {
		page.Limit = 50
	}
	var rows []*model.SecurityEvent
	err := q.Order("created_at DESC").Order("seq DESC").
		Offset(page.Offset).Limit(page.Limit).Find(&rows).Error
	return rows, total, err
}

func (r *eventRepository) ListWindow(ctx context.Context, since, until time.Time) ([]*model.SecurityEvent, error) {
	var rows []*model.SecurityEvent
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", since, until).
		Order("created_at").Find(&rows).Error
	return rows, err
}

// MarkResolved sets resolution metadata only. The WHERE clause excludes
// already-resolved rows so a second resolve is a no-op reported to the
// caller, and the event body columns are never part of the update.
func (r *eventRepository) MarkResolved(ctx context.Context, id uint64, actor uint, action string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.SecurityEvent{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_by": actor,
			"resolved_at": at,
			"resolution":  action,
		})
	return res.RowsAffected, res.Error
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}
