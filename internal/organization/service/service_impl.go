package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/cloudmetrics"
	"github.com/yunzhijiao/bridge/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db       *gorm.DB
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
	log      *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, auditSvc auditdomain.Service, log *zap.Logger) domain.Service {
	return &service{
		db:       db,
		repo:     repo,
		genID:    genID,
		clock:    clk,
		auditSvc: auditSvc,
		log:      log.Named("organization.service"),
	}
}

func (s *service) ListCertified(ctx context.Context, req domain.ListOrganizationsRequest) ([]domain.Organization, error) {
	if kind := strings.TrimSpace(req.Kind); kind != "" && !domain.ValidKind(kind) {
		return nil, domain.ErrInvalidKind
	}
	return s.repo.ListOrganizations(ctx, domain.ListFilter{
		Kind:          req.Kind,
		SchoolCode:    req.SchoolCode,
		IncludeHidden: req.IncludeHidden,
	})
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.GetOrganization(ctx, id)
}

// ResolveParentUniversity walks the association -> university edge. The edge
// is stored explicitly; the shared school code is the fallback for rows
// created before the edge existed.
func (s *service) ResolveParentUniversity(ctx context.Context, associationID snowflake.ID) (*domain.Organization, error) {
	assoc, err := s.repo.GetOrganization(ctx, associationID)
	if err != nil {
		return nil, err
	}
	if assoc.Kind != domain.KindAssociation {
		return nil, domain.ErrInvalidKind
	}

	if assoc.ParentUniversityID != nil {
		return s.repo.GetOrganization(ctx, *assoc.ParentUniversityID)
	}

	if strings.TrimSpace(assoc.SchoolCode) == "" {
		return nil, domain.ErrNoParentUniversity
	}
	parent, err := s.repo.FindByKindAndCode(ctx, domain.KindUniversity, assoc.SchoolCode)
	if err == domain.ErrOrgNotFound {
		return nil, domain.ErrNoParentUniversity
	}
	if err != nil {
		return nil, err
	}
	return parent, nil
}

func (s *service) BindingsForUser(ctx context.Context, userID snowflake.ID) ([]domain.AdminBinding, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListBindingsByUser(ctx, userID)
}

func (s *service) CreateAdminBinding(ctx context.Context, actorID snowflake.ID, req domain.CreateAdminBindingRequest) (*domain.AdminBinding, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	kind := strings.TrimSpace(req.OrgKind)
	roleCode, ok := domain.RoleCodeForKind(kind)
	if !ok {
		return nil, domain.ErrInvalidKind
	}

	var binding domain.AdminBinding
	var unflagged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var orgID *snowflake.ID
		if kind != domain.KindTopAuthority {
			org, _, err := EnsureOrganization(ctx, repo, s.genID, s.clock.Now(), kind, req.SchoolCode, req.DisplayName)
			if err != nil {
				return err
			}
			orgID = &org.ID
		}

		binding = domain.AdminBinding{
			ID:        s.genID.Generate(),
			UserID:    req.UserID,
			RoleCode:  roleCode,
			OrgID:     orgID,
			CreatedAt: s.clock.Now(),
		}
		if err := repo.CreateBinding(ctx, binding); err != nil {
			return err
		}

		if orgID != nil {
			if err := repo.SetHasLiveAdmin(ctx, *orgID, true); err != nil {
				return err
			}
			// The organization is reviewable again; its stranded rows go
			// back to the regular queue.
			var err error
			unflagged, err = repo.UnflagPendingRequests(ctx, *orgID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if unflagged > 0 {
		s.log.Info("organization regained an admin",
			zap.String("org_id", binding.OrgID.String()),
			zap.Int64("pending_unflagged", unflagged),
		)
	}

	actorIDStr := actorID.String()
	targetIDStr := binding.ID.String()
	_ = s.auditSvc.AuditLog(ctx, binding.OrgID, auditdomain.ActorTypeUser, &actorIDStr, "admin_binding.created", "admin_binding", &targetIDStr, map[string]any{
		"user_id":   binding.UserID.String(),
		"role_code": binding.RoleCode,
	})

	return &binding, nil
}

// RemoveAdminBinding drops the binding and, when the organization is left
// without admins, hides it from the directory and flags its pending requests.
// Organizations and review history are never deleted.
func (s *service) RemoveAdminBinding(ctx context.Context, actorID snowflake.ID, bindingID snowflake.ID) error {
	binding, err := s.repo.GetBinding(ctx, bindingID)
	if err != nil {
		return err
	}

	var flagged int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.DeleteBinding(ctx, binding.ID); err != nil {
			return err
		}

		if binding.OrgID == nil {
			return nil
		}

		remaining, err := repo.CountBindingsForOrg(ctx, *binding.OrgID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := repo.SetHasLiveAdmin(ctx, *binding.OrgID, false); err != nil {
			return err
		}
		flagged, err = repo.FlagPendingRequests(ctx, *binding.OrgID)
		return err
	})
	if err != nil {
		return err
	}

	if flagged > 0 {
		cloudmetrics.RecordOrphanedRequests(flagged)
		s.log.Warn("organization lost its last admin",
			zap.String("org_id", binding.OrgID.String()),
			zap.Int64("pending_flagged", flagged),
		)
	}

	actorIDStr := actorID.String()
	targetIDStr := binding.ID.String()
	_ = s.auditSvc.AuditLog(ctx, binding.OrgID, auditdomain.ActorTypeUser, &actorIDStr, "admin_binding.removed", "admin_binding", &targetIDStr, map[string]any{
		"user_id":         binding.UserID.String(),
		"role_code":       binding.RoleCode,
		"pending_flagged": flagged,
	})

	return nil
}

// EnsureOrganization finds the organization for kind+code or creates it
// certified. Used by both admin management and onboarding approval; callers
// pass a tx-scoped repository when atomicity matters.
func EnsureOrganization(ctx context.Context, repo domain.Repository, genID *snowflake.Node, now time.Time, kind, code, displayName string) (*domain.Organization, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, false, domain.ErrInvalidSchoolCode
	}

	existing, err := repo.FindByKindAndCode(ctx, kind, code)
	if err == nil {
		return existing, false, nil
	}
	if err != domain.ErrOrgNotFound {
		return nil, false, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, false, domain.ErrInvalidDisplayName
	}

	org := domain.Organization{
		ID:          genID.Generate(),
		Kind:        kind,
		DisplayName: displayName,
		Slug:        slug.Make(kind + "-" + code),
		Certified:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if kind == domain.KindAidSchool {
		org.AidSchoolCode = code
	} else {
		org.SchoolCode = code
	}
	if kind == domain.KindAssociation {
		parent, err := repo.FindByKindAndCode(ctx, domain.KindUniversity, code)
		if err == nil {
			org.ParentUniversityID = &parent.ID
		} else if err != domain.ErrOrgNotFound {
			return nil, false, err
		}
	}

	if err := repo.CreateOrganization(ctx, org); err != nil {
		return nil, false, err
	}
	return &org, true, nil
}
