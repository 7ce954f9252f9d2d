// Package capability derives what a principal may currently do from the few
// authoritative facts: admin bindings, active verified claims, and
// organization certification state. Nothing here is cached; every projection
// is computed fresh so approvals, revocations, and binding removals take
// effect on the next call.
package capability

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"github.com/yunzhijiao/bridge/internal/config"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	verifdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
	"go.uber.org/zap"
)

// ClaimSummary is the projection-facing view of an active claim.
type ClaimSummary struct {
	Type      string        `json:"type"`
	OrgID     *snowflake.ID `json:"org_id,omitempty"`
	GrantedAt string        `json:"granted_at"`
}

// Capabilities is the derived permission set for one principal.
type Capabilities struct {
	UserID snowflake.ID `json:"user_id"`

	BasicVerified           bool          `json:"basic_verified"`
	VerifiedStudentOrgID    *snowflake.ID `json:"verified_student_org_id,omitempty"`
	CanSubmitVolunteerTeach bool          `json:"can_submit_volunteer_teacher"`
	TeacherAssociationID    *snowflake.ID `json:"teacher_association_id,omitempty"`
	AidFeatures             bool          `json:"aid_features"`
	AidSchoolOrgID          *snowflake.ID `json:"aid_school_org_id,omitempty"`

	IsAdmin        bool                       `json:"is_admin"`
	IsTopAuthority bool                       `json:"is_top_authority"`
	ReviewQueues   []authorization.QueueScope `json:"review_queues,omitempty"`
	Bindings       []orgdomain.AdminBinding   `json:"bindings,omitempty"`
	ActiveClaims   []ClaimSummary             `json:"active_claims,omitempty"`
}

// Projector recomputes capabilities on demand.
type Projector struct {
	orgRepo   orgdomain.Repository
	verifRepo verifdomain.Repository
	reviewCfg *config.ReviewConfigHolder
	log       *zap.Logger
}

func NewProjector(orgRepo orgdomain.Repository, verifRepo verifdomain.Repository, reviewCfg *config.ReviewConfigHolder, log *zap.Logger) *Projector {
	return &Projector{
		orgRepo:   orgRepo,
		verifRepo: verifRepo,
		reviewCfg: reviewCfg,
		log:       log.Named("capability.projector"),
	}
}

// Project derives the capability set for userID. A claim whose organization
// has been decertified or disabled no longer contributes.
func (p *Projector) Project(ctx context.Context, userID snowflake.ID) (*Capabilities, error) {
	bindings, err := p.orgRepo.ListBindingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	claims, err := p.verifRepo.ListActiveClaims(ctx, userID)
	if err != nil {
		return nil, err
	}

	caps := &Capabilities{
		UserID:   userID,
		Bindings: bindings,
	}

	for _, claim := range claims {
		live, err := p.claimOrgLive(ctx, claim)
		if err != nil {
			return nil, err
		}
		if !live {
			continue
		}

		caps.ActiveClaims = append(caps.ActiveClaims, ClaimSummary{
			Type:      claim.Type,
			OrgID:     claim.OrgID,
			GrantedAt: claim.GrantedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})

		switch claim.Type {
		case verifdomain.TypeGeneralBasic:
			caps.BasicVerified = true
		case verifdomain.TypeUniversityStudent:
			caps.VerifiedStudentOrgID = claim.OrgID
			caps.CanSubmitVolunteerTeach = true
		case verifdomain.TypeVolunteerTeacher:
			caps.TeacherAssociationID = claim.OrgID
		case verifdomain.TypeSpecialAid:
			caps.AidFeatures = true
			caps.AidSchoolOrgID = claim.OrgID
		}
	}

	for _, b := range bindings {
		caps.IsAdmin = true
		if b.RoleCode == orgdomain.RoleTopAuthorityAdmin {
			caps.IsTopAuthority = true
		}
	}
	caps.ReviewQueues = authorization.ScopesFor(bindings, p.reviewCfg.Get().OrphanEscalation)

	return caps, nil
}

// claimOrgLive reports whether the claim's organization still stands behind
// it. Claims without an organization (general_basic) always count.
func (p *Projector) claimOrgLive(ctx context.Context, claim verifdomain.Claim) (bool, error) {
	if claim.OrgID == nil {
		return true, nil
	}
	org, err := p.orgRepo.GetOrganization(ctx, *claim.OrgID)
	if err == orgdomain.ErrOrgNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return org.Certified && !org.Disabled, nil
}
