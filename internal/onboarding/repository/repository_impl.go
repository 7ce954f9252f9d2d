package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/onboarding/domain"
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

func (r *repository) CreateRequest(ctx context.Context, req domain.Request) error {
	return r.db.WithContext(ctx).Create(&req).Error
}

func (r *repository) GetRequest(ctx context.Context, id snowflake.ID) (*domain.Request, error) {
	var req domain.Request
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListPending(ctx context.Context, limit int) ([]domain.Request, error) {
	stmt := r.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var reqs []domain.Request
	if err := stmt.Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repository) ListByApplicant(ctx context.Context, applicantID snowflake.ID) ([]domain.Request, error) {
	var reqs []domain.Request
	err := r.db.WithContext(ctx).
		Where("applicant_id = ?", applicantID).
		Order("created_at desc, id desc").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repository) MarkDecided(ctx context.Context, id snowflake.ID, status string, reviewedBy snowflake.ID, reason string, createdOrgID *snowflake.ID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE onboarding_requests
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, rejected_reason = ?, created_org_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, reviewedBy, at, reason, createdOrgID, at, id, domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
