package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/notification/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, n domain.Notification) error {
	return r.db.WithContext(ctx).Create(&n).Error
}

func (r *repository) InsertOutbox(ctx context.Context, e domain.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&e).Error
}

func (r *repository) List(ctx context.Context, req domain.ListRequest) ([]domain.Notification, error) {
	stmt := r.db.WithContext(ctx).Where("user_id = ?", req.UserID)
	if req.UnreadOnly {
		stmt = stmt.Where("read_at IS NULL")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var items []domain.Notification
	err := stmt.Order("id desc").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) MarkRead(ctx context.Context, userID snowflake.ID, ids []string, readAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND id IN ? AND read_at IS NULL", userID, ids).
		Update("read_at", readAt)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkAllRead(ctx context.Context, userID snowflake.ID, readAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", readAt)
	return res.RowsAffected, res.Error
}

func (r *repository) ListUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []domain.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"published":    true,
			"published_at": at,
		}).Error
}
