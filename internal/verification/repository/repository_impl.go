package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/verification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) ListQueue(ctx context.Context, filter domain.QueueFilter) ([]domain.Request, error) {
	if len(filter.Scopes) == 0 {
		return nil, nil
	}

	stmt := r.db.WithContext(ctx).Where("status = ?", domain.StatusPending)

	scoped := r.db.Session(&gorm.Session{NewDB: true})
	var entitled *gorm.DB
	for _, scope := range filter.Scopes {
		var cond *gorm.DB
		switch {
		case scope.OrphanOnly:
			cond = scoped.Where("orphan_flagged = ?", true)
		case scope.Global:
			cond = scoped.Where("type = ?", scope.Type)
		case scope.Secondary:
			cond = scoped.Where("type = ? AND secondary_org_id IN ?", scope.Type, scope.OrgIDs)
		default:
			cond = scoped.Where("type = ? AND target_org_id IN ?", scope.Type, scope.OrgIDs)
		}
		if entitled == nil {
			entitled = cond
		} else {
			entitled = entitled.Or(cond)
		}
	}
	stmt = stmt.Where(entitled)

	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.TargetOrgID != nil {
		stmt = stmt.Where("target_org_id = ?", *filter.TargetOrgID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var reqs []domain.Request
	if err := stmt.Order("created_at asc, id asc").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repository) LatestApproved(ctx context.Context, applicantID snowflake.ID, typ string) (*domain.Request, error) {
	var req domain.Request
	err := r.db.WithContext(ctx).
		Where("applicant_id = ? AND type = ? AND status = ?", applicantID, typ, domain.StatusApproved).
		Order("reviewed_at desc, id desc").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) MarkDecided(ctx context.Context, id snowflake.ID, status string, reviewedBy snowflake.ID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE verification_requests
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, rejected_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, reviewedBy, at, reason, at, id, domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkRevoked(ctx context.Context, id snowflake.ID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE verification_requests
		 SET status = ?, revoked_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusRevoked, reason, at, id, domain.StatusApproved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpsertClaim(ctx context.Context, claim domain.Claim) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"org_id":     claim.OrgID,
			"status":     claim.Status,
			"granted_by": claim.GrantedBy,
			"granted_at": claim.GrantedAt,
			"revoked_at": nil,
		}),
	}).Create(&claim).Error
}

func (r *repository) GetClaim(ctx context.Context, userID snowflake.ID, typ string) (*domain.Claim, error) {
	var claim domain.Claim
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, typ).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repository) ListActiveClaims(ctx context.Context, userID snowflake.ID) ([]domain.Claim, error) {
	var claims []domain.Claim
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.ClaimActive).
		Order("granted_at asc").
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *repository) ListActiveClaimHolders(ctx context.Context, typ string, orgID snowflake.ID) ([]domain.Claim, error) {
	var claims []domain.Claim
	err := r.db.WithContext(ctx).
		Where("type = ? AND org_id = ? AND status = ?", typ, orgID, domain.ClaimActive).
		Order("granted_at asc").
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *repository) RevokeClaim(ctx context.Context, userID snowflake.ID, typ string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE verified_claims
		 SET status = ?, revoked_at = ?
		 WHERE user_id = ? AND type = ? AND status = ?`,
		domain.ClaimRevoked, at, userID, typ, domain.ClaimActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpsertTeacherPoolEntry(ctx context.Context, entry domain.TeacherPoolEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "association_org_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"school_code":  entry.SchoolCode,
			"display_name": entry.DisplayName,
			"active":       true,
			"updated_at":   entry.UpdatedAt,
		}),
	}).Create(&entry).Error
}

func (r *repository) RemoveTeacherPoolEntry(ctx context.Context, userID snowflake.ID, associationOrgID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM teacher_pool_entries WHERE user_id = ? AND association_org_id = ?`,
		userID, associationOrgID,
	).Error
}

func (r *repository) ListTeacherPool(ctx context.Context, associationOrgID snowflake.ID, activeOnly bool) ([]domain.TeacherPoolEntry, error) {
	stmt := r.db.WithContext(ctx).Where("association_org_id = ?", associationOrgID)
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}

	var entries []domain.TeacherPoolEntry
	if err := stmt.Order("display_name asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SetTeacherPoolActive(ctx context.Context, userID snowflake.ID, associationOrgID snowflake.ID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE teacher_pool_entries
		 SET active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND association_org_id = ?`,
		active, userID, associationOrgID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
