package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"github.com/yunzhijiao/bridge/internal/clock"
	"github.com/yunzhijiao/bridge/internal/cloudmetrics"
	"github.com/yunzhijiao/bridge/internal/config"
	notifdomain "github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/notification/outbox"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	"github.com/yunzhijiao/bridge/internal/ratelimit"
	"github.com/yunzhijiao/bridge/internal/verification/domain"
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
	ReviewCfg  *config.ReviewConfigHolder
	Limiter    *ratelimit.SubmissionLimiter `optional:"true"`
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
	reviewCfg  *config.ReviewConfigHolder
	limiter    *ratelimit.SubmissionLimiter
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("verification.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgRepo:    p.OrgRepo,
		dispatcher: p.Dispatcher,
		auditSvc:   p.AuditSvc,
		reviewCfg:  p.ReviewCfg,
		limiter:    p.Limiter,
	}
}

// Submit validates the typed preconditions and inserts the pending row. The
// duplicate-pending invariant is enforced by the partial unique index, not a
// read-then-write check.
func (s *service) Submit(ctx context.Context, applicantID snowflake.ID, applicantName string, req domain.SubmitRequest) (*domain.Request, error) {
	if applicantID == 0 {
		return nil, domain.ErrForbidden
	}
	if !domain.ValidType(req.Type) {
		return nil, domain.ErrInvalidType
	}

	claim, err := s.repo.GetClaim(ctx, applicantID, req.Type)
	if err != nil && err != domain.ErrClaimNotFound {
		return nil, err
	}
	if claim != nil && claim.Active() {
		return nil, domain.ErrAlreadyVerified
	}

	if err := s.checkSubmitPreconditions(ctx, applicantID, req); err != nil {
		return nil, err
	}

	if s.limiter.Enabled() {
		res, err := s.limiter.Allow(ctx, applicantID)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, domain.ErrRateLimited
		}
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
		ID:             s.genID.Generate(),
		Type:           req.Type,
		ApplicantID:    applicantID,
		ApplicantName:  strings.TrimSpace(applicantName),
		TargetOrgID:    req.TargetOrgID,
		SecondaryOrgID: req.SecondaryOrgID,
		EvidenceRefs:   datatypes.JSON(rawRefs),
		Note:           strings.TrimSpace(req.Note),
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateRequest(ctx, row); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicatePending
		}
		return nil, err
	}

	cloudmetrics.RecordRequestSubmitted(row.Type)
	applicantIDStr := applicantID.String()
	targetIDStr := row.ID.String()
	_ = s.auditSvc.AuditLog(ctx, row.TargetOrgID, auditdomain.ActorTypeUser, &applicantIDStr, "verification.submitted", "verification_request", &targetIDStr, map[string]any{
		"type": row.Type,
	})

	return &row, nil
}

func (s *service) checkSubmitPreconditions(ctx context.Context, applicantID snowflake.ID, req domain.SubmitRequest) error {
	switch req.Type {
	case domain.TypeUniversityStudent:
		_, err := s.visibleOrg(ctx, req.TargetOrgID, orgdomain.KindUniversity, domain.ErrInvalidTarget)
		return err

	case domain.TypeVolunteerTeacher:
		target, err := s.visibleOrg(ctx, req.TargetOrgID, orgdomain.KindUniversity, domain.ErrInvalidTarget)
		if err != nil {
			return err
		}
		assoc, err := s.visibleOrg(ctx, req.SecondaryOrgID, orgdomain.KindAssociation, domain.ErrInvalidSecondary)
		if err != nil {
			return err
		}
		if assoc.ParentUniversityID == nil || *assoc.ParentUniversityID != target.ID {
			return domain.ErrAssociationParent
		}
		// The next-tier claim requires a verified student claim for the
		// same university; rejected here rather than queued invalid.
		studentClaim, err := s.repo.GetClaim(ctx, applicantID, domain.TypeUniversityStudent)
		if err == domain.ErrClaimNotFound {
			return domain.ErrMissingClaim
		}
		if err != nil {
			return err
		}
		if !studentClaim.Active() || studentClaim.OrgID == nil || *studentClaim.OrgID != target.ID {
			return domain.ErrMissingClaim
		}
		return nil

	case domain.TypeSpecialAid:
		_, err := s.visibleOrg(ctx, req.TargetOrgID, orgdomain.KindAidSchool, domain.ErrInvalidTarget)
		return err

	case domain.TypeGeneralBasic:
		// Reviewed globally by the top authority; no target organization.
		return nil

	default:
		return domain.ErrInvalidType
	}
}

// visibleOrg resolves an organization that may act as a review target:
// existing, of the right kind, certified, enabled, with a live admin.
func (s *service) visibleOrg(ctx context.Context, id *snowflake.ID, kind string, sentinel error) (*orgdomain.Organization, error) {
	if id == nil || *id == 0 {
		return nil, sentinel
	}
	org, err := s.orgRepo.GetOrganization(ctx, *id)
	if err == orgdomain.ErrOrgNotFound {
		return nil, sentinel
	}
	if err != nil {
		return nil, err
	}
	if org.Kind != kind || !org.Certified || org.Disabled || !org.HasLiveAdmin {
		return nil, sentinel
	}
	return org, nil
}

func (s *service) ListMine(ctx context.Context, applicantID snowflake.ID) ([]domain.Request, error) {
	if applicantID == 0 {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListByApplicant(ctx, applicantID)
}

// ListQueue pre-filters pending rows down to what the reviewer could actually
// decide, using the same scope expansion the decision path re-checks.
func (s *service) ListQueue(ctx context.Context, reviewerID snowflake.ID, req domain.ListQueueRequest) ([]domain.Request, error) {
	bindings, err := s.orgRepo.ListBindingsByUser(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	scopes := authorization.ScopesFor(bindings, s.orphanPolicy())
	if len(scopes) == 0 {
		return nil, domain.ErrForbidden
	}

	filter := domain.QueueFilter{
		Type:        strings.TrimSpace(req.Type),
		TargetOrgID: req.TargetOrgID,
		Limit:       req.Limit,
	}
	for _, scope := range scopes {
		filter.Scopes = append(filter.Scopes, domain.QueueScopeFilter{
			Type:       scope.Type,
			OrgIDs:     scope.OrgIDs,
			Secondary:  scope.Secondary,
			Global:     scope.Global,
			OrphanOnly: scope.OrphanOnly,
		})
	}
	return s.repo.ListQueue(ctx, filter)
}

// Review decides a pending request. Authorization is re-evaluated against
// current bindings inside the transaction, and the transition itself is a
// single compare-and-set so concurrent reviewers cannot both win.
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

		if err := s.requireReviewAuthority(ctx, orgRepo, reviewerID, row); err != nil {
			return err
		}

		now := s.clock.Now()
		ok, err := repo.MarkDecided(ctx, row.ID, req.Decision, reviewerID, reason, now)
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
		row.UpdatedAt = now

		if req.Decision == domain.DecisionApprove {
			if err := s.grantClaim(ctx, repo, orgRepo, reviewerID, row, now); err != nil {
				return err
			}
		}

		notifType := notifdomain.TypeVerificationRejected
		topic := notifdomain.TopicVerificationRejected
		if req.Decision == domain.DecisionApprove {
			notifType = notifdomain.TypeVerificationApproved
			topic = notifdomain.TopicVerificationApproved
		}
		payload := map[string]any{
			"request_id":        row.ID.String(),
			"verification_type": row.Type,
		}
		if reason != "" {
			payload["reason"] = reason
		}
		if row.TargetOrgID != nil {
			payload["target_org_id"] = row.TargetOrgID.String()
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

	cloudmetrics.RecordReviewDecision(decided.Type, decided.Status)
	reviewerIDStr := reviewerID.String()
	targetIDStr := decided.ID.String()
	_ = s.auditSvc.AuditLog(ctx, decided.TargetOrgID, auditdomain.ActorTypeUser, &reviewerIDStr, "verification."+decided.Status, "verification_request", &targetIDStr, map[string]any{
		"type":         decided.Type,
		"applicant_id": decided.ApplicantID.String(),
		"reason":       reason,
	})

	return decided, nil
}

// requireReviewAuthority re-reads bindings inside the caller's transaction so
// a binding removed mid-flight fails the decision.
func (s *service) requireReviewAuthority(ctx context.Context, orgRepo orgdomain.Repository, reviewerID snowflake.ID, row *domain.Request) error {
	bindings, err := orgRepo.ListBindingsByUser(ctx, reviewerID)
	if err != nil {
		return err
	}
	target, err := s.reviewTarget(ctx, orgRepo, row)
	if err != nil {
		return err
	}

	policy := s.orphanPolicy()
	if authorization.CanReview(bindings, target, policy) {
		return nil
	}
	if row.OrphanFlagged && policy == authorization.PolicyFreeze {
		return domain.ErrOrphanAuthority
	}
	return domain.ErrForbidden
}

func (s *service) reviewTarget(ctx context.Context, orgRepo orgdomain.Repository, row *domain.Request) (authorization.ReviewTarget, error) {
	target := authorization.ReviewTarget{
		Type:           row.Type,
		ApplicantID:    row.ApplicantID,
		TargetOrgID:    row.TargetOrgID,
		SecondaryOrgID: row.SecondaryOrgID,
		OrphanFlagged:  row.OrphanFlagged,
	}
	if row.Type == domain.TypeVolunteerTeacher && row.SecondaryOrgID != nil {
		assoc, err := orgRepo.GetOrganization(ctx, *row.SecondaryOrgID)
		if err != nil && err != orgdomain.ErrOrgNotFound {
			return target, err
		}
		if assoc != nil {
			target.SecondaryParentID = assoc.ParentUniversityID
		}
	}
	return target, nil
}

// grantClaim upserts the verified flag an approval produces and, for
// volunteer teachers, projects the applicant into the association's pool.
// Both writes ride the deciding transaction so the claim is visible before
// Review returns.
func (s *service) grantClaim(ctx context.Context, repo domain.Repository, orgRepo orgdomain.Repository, reviewerID snowflake.ID, row *domain.Request, now time.Time) error {
	claimOrg := row.TargetOrgID
	if row.Type == domain.TypeVolunteerTeacher {
		claimOrg = row.SecondaryOrgID
	}
	if row.Type == domain.TypeGeneralBasic {
		claimOrg = nil
	}

	if err := repo.UpsertClaim(ctx, domain.Claim{
		ID:        s.genID.Generate(),
		UserID:    row.ApplicantID,
		Type:      row.Type,
		OrgID:     claimOrg,
		Status:    domain.ClaimActive,
		GrantedBy: reviewerID,
		GrantedAt: now,
	}); err != nil {
		return err
	}

	if row.Type != domain.TypeVolunteerTeacher || row.SecondaryOrgID == nil {
		return nil
	}

	schoolCode := ""
	if row.TargetOrgID != nil {
		university, err := orgRepo.GetOrganization(ctx, *row.TargetOrgID)
		if err != nil && err != orgdomain.ErrOrgNotFound {
			return err
		}
		if university != nil {
			schoolCode = university.SchoolCode
		}
	}
	return repo.UpsertTeacherPoolEntry(ctx, domain.TeacherPoolEntry{
		ID:               s.genID.Generate(),
		UserID:           row.ApplicantID,
		AssociationOrgID: *row.SecondaryOrgID,
		SchoolCode:       schoolCode,
		DisplayName:      row.ApplicantName,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// Revoke withdraws an approved claim. Same reviewing authority as approval;
// the request row moves approved -> revoked, the claim flips, and the teacher
// pool projection is removed in the same transaction.
func (s *service) Revoke(ctx context.Context, reviewerID snowflake.ID, req domain.RevokeRequest) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.ErrReasonRequired
	}
	if !domain.ValidType(req.Type) {
		return domain.ErrInvalidType
	}

	var revoked *domain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orgRepo := s.orgRepo.WithTx(tx)

		row, err := repo.LatestApproved(ctx, req.ApplicantID, req.Type)
		if err != nil {
			return err
		}

		if err := s.requireReviewAuthority(ctx, orgRepo, reviewerID, row); err != nil {
			return err
		}

		now := s.clock.Now()
		ok, err := repo.MarkRevoked(ctx, row.ID, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyDecided
		}

		if _, err := repo.RevokeClaim(ctx, row.ApplicantID, row.Type, now); err != nil {
			return err
		}
		if row.Type == domain.TypeVolunteerTeacher && row.SecondaryOrgID != nil {
			if err := repo.RemoveTeacherPoolEntry(ctx, row.ApplicantID, *row.SecondaryOrgID); err != nil {
				return err
			}
		}

		payload := map[string]any{
			"request_id":        row.ID.String(),
			"verification_type": row.Type,
			"reason":            reason,
		}
		if err := s.dispatcher.Enqueue(ctx, tx, outbox.Message{
			UserID:  row.ApplicantID,
			Type:    notifdomain.TypeVerificationRevoked,
			Topic:   notifdomain.TopicVerificationRevoked,
			Payload: payload,
		}); err != nil {
			return err
		}

		row.Status = domain.StatusRevoked
		row.RevokedReason = reason
		revoked = row
		return nil
	})
	if err != nil {
		return err
	}

	cloudmetrics.RecordRevocation(revoked.Type)
	reviewerIDStr := reviewerID.String()
	targetIDStr := revoked.ID.String()
	_ = s.auditSvc.AuditLog(ctx, revoked.TargetOrgID, auditdomain.ActorTypeUser, &reviewerIDStr, "verification.revoked", "verification_request", &targetIDStr, map[string]any{
		"type":         revoked.Type,
		"applicant_id": revoked.ApplicantID.String(),
		"reason":       reason,
	})

	return nil
}

func (s *service) GetRequest(ctx context.Context, viewerID snowflake.ID, requestID snowflake.ID) (*domain.Request, error) {
	row, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if viewerID == row.ApplicantID {
		return row, nil
	}
	if err := s.requireViewAuthority(ctx, viewerID, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) requireViewAuthority(ctx context.Context, viewerID snowflake.ID, row *domain.Request) error {
	bindings, err := s.orgRepo.ListBindingsByUser(ctx, viewerID)
	if err != nil {
		return err
	}
	target, err := s.reviewTarget(ctx, s.orgRepo, row)
	if err != nil {
		return err
	}
	if !authorization.CanView(viewerID, bindings, target, s.orphanPolicy()) {
		return domain.ErrForbidden
	}
	return nil
}

// ApplicantDetail assembles review context: the request plus the applicant's
// active claims and prior requests. Reviewers only; fails closed.
func (s *service) ApplicantDetail(ctx context.Context, reviewerID snowflake.ID, requestID snowflake.ID) (*domain.ApplicantDetail, error) {
	row, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	bindings, err := s.orgRepo.ListBindingsByUser(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	target, err := s.reviewTarget(ctx, s.orgRepo, row)
	if err != nil {
		return nil, err
	}
	if !authorization.CanReview(bindings, target, s.orphanPolicy()) {
		return nil, domain.ErrForbidden
	}

	claims, err := s.repo.ListActiveClaims(ctx, row.ApplicantID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListByApplicant(ctx, row.ApplicantID)
	if err != nil {
		return nil, err
	}
	return &domain.ApplicantDetail{
		Request:      *row,
		ActiveClaims: claims,
		History:      history,
	}, nil
}

func (s *service) ActiveClaims(ctx context.Context, userID snowflake.ID) ([]domain.Claim, error) {
	if userID == 0 {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListActiveClaims(ctx, userID)
}

// ListClaimHolders lists active claim holders keyed on (type, org); used by
// aid schools to see their beneficiaries. Gated on the same routing table.
func (s *service) ListClaimHolders(ctx context.Context, reviewerID snowflake.ID, typ string, orgID snowflake.ID) ([]domain.Claim, error) {
	if !domain.ValidType(typ) {
		return nil, domain.ErrInvalidType
	}
	bindings, err := s.orgRepo.ListBindingsByUser(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	target, err := s.claimScopeTarget(ctx, typ, orgID)
	if err != nil {
		return nil, err
	}
	if !authorization.CanReview(bindings, target, s.orphanPolicy()) {
		return nil, domain.ErrForbidden
	}
	return s.repo.ListActiveClaimHolders(ctx, typ, orgID)
}

// claimScopeTarget builds the synthetic routing target for claim listings:
// the org a claim is keyed on plays the role it would in a request.
func (s *service) claimScopeTarget(ctx context.Context, typ string, orgID snowflake.ID) (authorization.ReviewTarget, error) {
	target := authorization.ReviewTarget{Type: typ}
	switch typ {
	case domain.TypeVolunteerTeacher:
		target.SecondaryOrgID = &orgID
		assoc, err := s.orgRepo.GetOrganization(ctx, orgID)
		if err != nil && err != orgdomain.ErrOrgNotFound {
			return target, err
		}
		if assoc != nil {
			target.SecondaryParentID = assoc.ParentUniversityID
			target.TargetOrgID = assoc.ParentUniversityID
		}
	case domain.TypeGeneralBasic:
	default:
		target.TargetOrgID = &orgID
	}
	return target, nil
}

func (s *service) ListTeacherPool(ctx context.Context, reviewerID snowflake.ID, req domain.ListTeacherPoolRequest) ([]domain.TeacherPoolEntry, error) {
	if err := s.requirePoolAuthority(ctx, reviewerID, req.AssociationOrgID); err != nil {
		return nil, err
	}
	return s.repo.ListTeacherPool(ctx, req.AssociationOrgID, req.ActiveOnly)
}

func (s *service) SetTeacherPoolActive(ctx context.Context, reviewerID snowflake.ID, userID snowflake.ID, associationOrgID snowflake.ID, active bool) error {
	if err := s.requirePoolAuthority(ctx, reviewerID, associationOrgID); err != nil {
		return err
	}
	ok, err := s.repo.SetTeacherPoolActive(ctx, userID, associationOrgID, active)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPoolEntryNotFound
	}

	reviewerIDStr := reviewerID.String()
	targetIDStr := userID.String()
	_ = s.auditSvc.AuditLog(ctx, &associationOrgID, auditdomain.ActorTypeUser, &reviewerIDStr, "teacher_pool.updated", "teacher_pool_entry", &targetIDStr, map[string]any{
		"active": active,
	})
	return nil
}

// requirePoolAuthority: the pool belongs to the association's admins; the top
// authority may read everywhere.
func (s *service) requirePoolAuthority(ctx context.Context, reviewerID snowflake.ID, associationOrgID snowflake.ID) error {
	bindings, err := s.orgRepo.ListBindingsByUser(ctx, reviewerID)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if b.RoleCode == orgdomain.RoleTopAuthorityAdmin {
			return nil
		}
		if b.RoleCode == orgdomain.RoleAssociationAdmin && b.OrgID != nil && *b.OrgID == associationOrgID {
			return nil
		}
	}
	return domain.ErrForbidden
}

func (s *service) orphanPolicy() string {
	return s.reviewCfg.Get().OrphanEscalation
}
