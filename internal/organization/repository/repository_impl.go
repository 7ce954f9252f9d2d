package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"github.com/yunzhijiao/bridge/internal/organization/domain"
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

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Create(&org).Error
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrgNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindByKindAndCode(ctx context.Context, kind, code string) (*domain.Organization, error) {
	code = strings.TrimSpace(code)
	stmt := r.db.WithContext(ctx).Where("kind = ?", kind)
	if kind == domain.KindAidSchool {
		stmt = stmt.Where("aid_school_code = ?", code)
	} else {
		stmt = stmt.Where("school_code = ?", code)
	}

	var org domain.Organization
	err := stmt.First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrgNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) ListOrganizations(ctx context.Context, filter domain.ListFilter) ([]domain.Organization, error) {
	stmt := r.db.WithContext(ctx).
		Where("certified = ?", true).
		Where("disabled = ?", false)

	if !filter.IncludeHidden {
		stmt = stmt.Where("has_live_admin = ?", true)
	}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		stmt = stmt.Where("kind = ?", kind)
	}
	if code := strings.TrimSpace(filter.SchoolCode); code != "" {
		stmt = stmt.Where("school_code = ? OR aid_school_code = ?", code, code)
	}

	var orgs []domain.Organization
	if err := stmt.Order("display_name asc").Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repository) SetHasLiveAdmin(ctx context.Context, orgID snowflake.ID, live bool) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET has_live_admin = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		live, orgID,
	).Error
}

func (r *repository) CreateBinding(ctx context.Context, binding domain.AdminBinding) error {
	return r.db.WithContext(ctx).Create(&binding).Error
}

func (r *repository) GetBinding(ctx context.Context, id snowflake.ID) (*domain.AdminBinding, error) {
	var binding domain.AdminBinding
	err := r.db.WithContext(ctx).First(&binding, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBindingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

func (r *repository) DeleteBinding(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM admin_bindings WHERE id = ?`, id).Error
}

func (r *repository) ListBindingsByUser(ctx context.Context, userID snowflake.ID) ([]domain.AdminBinding, error) {
	var bindings []domain.AdminBinding
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, user_id, role_code, org_id, created_at
		 FROM admin_bindings
		 WHERE user_id = ?
		 ORDER BY created_at ASC`,
		userID,
	).Scan(&bindings).Error
	if err != nil {
		return nil, err
	}
	return bindings, nil
}

func (r *repository) CountBindingsForOrg(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AdminBinding{}).
		Where("org_id = ?", orgID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) FlagPendingRequests(ctx context.Context, orgID snowflake.ID) (int64, error) {
	return r.setOrphanFlag(ctx, orgID, true)
}

func (r *repository) UnflagPendingRequests(ctx context.Context, orgID snowflake.ID) (int64, error) {
	return r.setOrphanFlag(ctx, orgID, false)
}

// setOrphanFlag matches pending rows on their reviewing organization:
// volunteer_teacher is decided by the secondary organization, every other
// org-scoped type by the target.
func (r *repository) setOrphanFlag(ctx context.Context, orgID snowflake.ID, flagged bool) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE verification_requests
		 SET orphan_flagged = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE status = 'pending' AND orphan_flagged = ?
		   AND ((type = ? AND secondary_org_id = ?) OR (type <> ? AND target_org_id = ?))`,
		flagged, !flagged,
		authorization.TypeVolunteerTeacher, orgID,
		authorization.TypeVolunteerTeacher, orgID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
