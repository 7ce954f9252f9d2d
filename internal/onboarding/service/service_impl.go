package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"github.com/yunzhijiao/bridge/internal/clock"
	notifdomain "github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/notification/outbox"
	"github.com/yunzhijiao/bridge/internal/onboarding/domain"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	orgservice "github.com/yunzhijiao/bridge/internal/organization/service"
	"github.com/yunzhijiao/bridge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	OrgRepo    orgdomain.Repository
	Dispatcher *outbox.Dispatcher
	AuditSvc   auditdomain.Service
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	orgRepo    orgdomain.Repository
	dispatcher *outbox.Dispatcher
	auditSvc   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("onboarding.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		dispatcher: p.Dispatcher,
		auditSvc:   p.AuditSvc,
	}
}

func (s *service) Submit(ctx context.Context, applicantID snowflake.ID, req domain.SubmitRequest) (*domain.Request, error) {
	if applicantID == 0 {
		return nil, domain.ErrForbidden
	}
	kind := strings.TrimSpace(req.OrgKind)
	switch kind {
	case orgdomain.KindUniversity, orgdomain.KindAssociation, orgdomain.KindAidSchool:
	default:
		return nil, domain.ErrInvalidKind
	}
	if strings.TrimSpace(req.SchoolCode) == "" || strings.TrimSpace(req.SchoolName) == "" {
		return nil, domain.ErrInvalidKind
	}
	contactName := strings.TrimSpace(req.ContactName)
	contactEmail := strings.TrimSpace(req.ContactEmail)
	if contactName == "" || contactEmail == "" || !strings.Contains(contactEmail, "@") {
		return nil, domain.ErrInvalidContact
	}

	refs := req.EvidenceRefs
	if refs == nil {
		refs = []domain.EvidenceRef{}
	}
	rawRefs, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	row := domain.Request{
		ID:              s.genID.Generate(),
		ApplicantID:     applicantID,
		OrgKind:         kind,
		SchoolCode:      strings.TrimSpace(req.SchoolCode),
		SchoolName:      strings.TrimSpace(req.SchoolName),
		AssociationName: strings.TrimSpace(req.AssociationName),
		ContactName:     contactName,
		ContactEmail:    contactEmail,
		ContactPhone:    strings.TrimSpace(req.ContactPhone),
		EvidenceRefs:    datatypes.JSON(rawRefs),
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateRequest(ctx, row); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicatePending
		}
		return nil, err
	}

	applicantIDStr := applicantID.String()
	targetIDStr := row.ID.String()
	_ = s.auditSvc.AuditLog(ctx, nil, auditdomain.ActorTypeUser, &applicantIDStr, "onboarding.submitted", "onboarding_request", &targetIDStr, map[string]any{
		"org_kind":      row.OrgKind,
		"school_code":   row.SchoolCode,
		"contact_email": row.ContactEmail,
	})

	return &row, nil
}

func (s *service) ListPending(ctx context.Context, reviewerID snowflake.ID, limit int) ([]domain.Request, error) {
	if err := s.requireTopAuthority(ctx, reviewerID); err != nil {
		return nil, err
	}
	return s.repo.ListPending(ctx, limit)
}

func (s *service) ListMine(ctx context.Context, applicantID snowflake.ID) ([]domain.Request, error) {
	if applicantID == 0 {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListByApplicant(ctx, applicantID)
}

func (s *service) GetRequest(ctx context.Context, viewerID snowflake.ID, requestID snowflake.ID) (*domain.Request, error) {
	row, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if row.ApplicantID == viewerID {
		return row, nil
	}
	if err := s.requireTopAuthority(ctx, viewerID); err != nil {
		return nil, err
	}
	return row, nil
}

// Review decides a pending onboarding request. Approval creates the
// certified organization and the applicant's admin binding in the deciding
// transaction, so a half-onboarded organization can never be observed.
func (s *service) Review(ctx context.Context, reviewerID snowflake.ID, req domain.ReviewRequest) (*domain.Request, error) {
	if req.Decision != domain.DecisionApprove && req.Decision != domain.DecisionReject {
		return nil, domain.ErrInvalidDecision
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Decision == domain.DecisionReject && reason == "" {
		return nil, domain.ErrReasonRequired
	}

	var decided *domain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orgRepo := s.orgRepo.WithTx(tx)

		row, err := repo.GetRequest(ctx, req.RequestID)
		if err != nil {
			return err
		}
		if row.Status != domain.StatusPending {
			return domain.ErrAlreadyDecided
		}

		// Re-check inside the transaction against current bindings.
		bindings, err := orgRepo.ListBindingsByUser(ctx, reviewerID)
		if err != nil {
			return err
		}
		if !authorization.CanReviewOnboarding(bindings) {
			return domain.ErrForbidden
		}

		now := s.clock.Now()
		var createdOrgID *snowflake.ID

		if req.Decision == domain.DecisionApprove {
			displayName := row.SchoolName
			if row.OrgKind == orgdomain.KindAssociation && row.AssociationName != "" {
				displayName = row.AssociationName
			}
			org, _, err := orgservice.EnsureOrganization(ctx, orgRepo, s.genID, now, row.OrgKind, row.SchoolCode, displayName)
			if err != nil {
				return err
			}
			createdOrgID = &org.ID

			roleCode, ok := orgdomain.RoleCodeForKind(row.OrgKind)
			if !ok {
				return domain.ErrInvalidKind
			}
			if err := orgRepo.CreateBinding(ctx, orgdomain.AdminBinding{
				ID:        s.genID.Generate(),
				UserID:    row.ApplicantID,
				RoleCode:  roleCode,
				OrgID:     &org.ID,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			if err := orgRepo.SetHasLiveAdmin(ctx, org.ID, true); err != nil {
				return err
			}
			// An existing organization may have been orphaned; the new
			// admin makes its stranded rows reviewable again.
			if _, err := orgRepo.UnflagPendingRequests(ctx, org.ID); err != nil {
				return err
			}
		}

		ok, err := repo.MarkDecided(ctx, row.ID, req.Decision, reviewerID, reason, createdOrgID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyDecided
		}

		row.Status = req.Decision
		row.ReviewedBy = &reviewerID
		row.ReviewedAt = &now
		row.RejectedReason = reason
		row.CreatedOrgID = createdOrgID
		row.UpdatedAt = now

		notifType := notifdomain.TypeOnboardingRejected
		topic := notifdomain.TopicOnboardingRejected
		if req.Decision == domain.DecisionApprove {
			notifType = notifdomain.TypeOnboardingApproved
			topic = notifdomain.TopicOnboardingApproved
		}
		payload := map[string]any{
			"request_id": row.ID.String(),
			"org_kind":   row.OrgKind,
		}
		if reason != "" {
			payload["reason"] = reason
		}
		if createdOrgID != nil {
			payload["org_id"] = createdOrgID.String()
		}
		if err := s.dispatcher.Enqueue(ctx, tx, outbox.Message{
			UserID:  row.ApplicantID,
			Type:    notifType,
			Topic:   topic,
			Payload: payload,
		}); err != nil {
			return err
		}

		decided = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	reviewerIDStr := reviewerID.String()
	targetIDStr := decided.ID.String()
	_ = s.auditSvc.AuditLog(ctx, decided.CreatedOrgID, auditdomain.ActorTypeUser, &reviewerIDStr, "onboarding."+decided.Status, "onboarding_request", &targetIDStr, map[string]any{
		"org_kind":     decided.OrgKind,
		"applicant_id": decided.ApplicantID.String(),
		"reason":       reason,
	})

	return decided, nil
}

func (s *service) requireTopAuthority(ctx context.Context, userID snowflake.ID) error {
	bindings, err := s.orgRepo.ListBindingsByUser(ctx, userID)
	if err != nil {
		return err
	}
	if !authorization.CanReviewOnboarding(bindings) {
		return domain.ErrForbidden
	}
	return nil
}
