// Package authorization routes review requests to the single reviewing
// authority entitled to decide them and scopes review-queue listings so that
// listings and mutations share one source of truth.
package authorization

import (
	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
)

// Verification request types. Declared here because the routing table is
// keyed on them; the verification store reuses these constants.
const (
	TypeUniversityStudent = "university_student"
	TypeVolunteerTeacher  = "volunteer_teacher"
	TypeSpecialAid        = "special_aid"
	TypeGeneralBasic      = "general_basic"
)

// Orphan escalation policies. With PolicyEscalate a top-authority admin may
// decide requests whose target organization lost its last admin; with
// PolicyFreeze such requests stay pending until the organization recovers.
const (
	PolicyEscalate = "escalate"
	PolicyFreeze   = "freeze"
)

// ReviewTarget carries the routing-relevant fields of a request. For
// volunteer_teacher the caller resolves SecondaryParentID (the reviewing
// association's parent university) so the table stays a pure lookup.
type ReviewTarget struct {
	Type              string
	ApplicantID       snowflake.ID
	TargetOrgID       *snowflake.ID
	SecondaryOrgID    *snowflake.ID
	SecondaryParentID *snowflake.ID
	OrphanFlagged     bool
}

// QueueScope is one review-queue filter a principal is entitled to. OrgIDs
// empty with Global set means no organization constraint; Secondary marks
// scopes matched against the request's secondary organization.
type QueueScope struct {
	Type       string
	OrgIDs     []snowflake.ID
	Secondary  bool
	Global     bool
	OrphanOnly bool
}

// route is one row of the reviewer routing table.
type route struct {
	role      string
	secondary bool
	global    bool
}

var routes = map[string]route{
	TypeUniversityStudent: {role: orgdomain.RoleUniversityAdmin},
	TypeVolunteerTeacher:  {role: orgdomain.RoleAssociationAdmin, secondary: true},
	TypeSpecialAid:        {role: orgdomain.RoleAidSchoolAdmin},
	TypeGeneralBasic:      {role: orgdomain.RoleTopAuthorityAdmin, global: true},
}

// ValidType reports whether typ names a known verification type.
func ValidType(typ string) bool {
	_, ok := routes[typ]
	return ok
}

// CanReview reports whether a principal holding bindings may decide target.
// orphanPolicy widens (escalate) or narrows (freeze) authority over requests
// whose target organization has no live admin.
func CanReview(bindings []orgdomain.AdminBinding, target ReviewTarget, orphanPolicy string) bool {
	if target.OrphanFlagged {
		switch orphanPolicy {
		case PolicyFreeze:
			return false
		case PolicyEscalate:
			if hasRole(bindings, orgdomain.RoleTopAuthorityAdmin) {
				return true
			}
		}
	}

	r, ok := routes[target.Type]
	if !ok {
		return false
	}
	if r.global {
		return hasRole(bindings, r.role)
	}

	scopeOrg := target.TargetOrgID
	if r.secondary {
		scopeOrg = target.SecondaryOrgID
		// The association must belong to the university the claim is about.
		if target.SecondaryParentID == nil || target.TargetOrgID == nil ||
			*target.SecondaryParentID != *target.TargetOrgID {
			return false
		}
	}
	if scopeOrg == nil {
		return false
	}
	for _, b := range bindings {
		if b.RoleCode == r.role && b.OrgID != nil && *b.OrgID == *scopeOrg {
			return true
		}
	}
	return false
}

// CanView allows the applicant and anyone entitled to review.
func CanView(userID snowflake.ID, bindings []orgdomain.AdminBinding, target ReviewTarget, orphanPolicy string) bool {
	if userID == target.ApplicantID {
		return true
	}
	return CanReview(bindings, target, orphanPolicy)
}

// CanReviewOnboarding: onboarding requests are decided by the top authority
// only, unconditionally.
func CanReviewOnboarding(bindings []orgdomain.AdminBinding) bool {
	return hasRole(bindings, orgdomain.RoleTopAuthorityAdmin)
}

// ScopesFor expands bindings into the queue scopes they grant. The same
// scopes feed listReviewQueue and the capability projection, so a queue never
// shows a row its holder could not decide.
func ScopesFor(bindings []orgdomain.AdminBinding, orphanPolicy string) []QueueScope {
	orgScoped := map[string][]snowflake.ID{}
	topAuthority := false

	for _, b := range bindings {
		switch b.RoleCode {
		case orgdomain.RoleUniversityAdmin:
			if b.OrgID != nil {
				orgScoped[TypeUniversityStudent] = append(orgScoped[TypeUniversityStudent], *b.OrgID)
			}
		case orgdomain.RoleAssociationAdmin:
			if b.OrgID != nil {
				orgScoped[TypeVolunteerTeacher] = append(orgScoped[TypeVolunteerTeacher], *b.OrgID)
			}
		case orgdomain.RoleAidSchoolAdmin:
			if b.OrgID != nil {
				orgScoped[TypeSpecialAid] = append(orgScoped[TypeSpecialAid], *b.OrgID)
			}
		case orgdomain.RoleTopAuthorityAdmin:
			topAuthority = true
		}
	}

	var scopes []QueueScope
	for _, typ := range []string{TypeUniversityStudent, TypeVolunteerTeacher, TypeSpecialAid} {
		if ids := orgScoped[typ]; len(ids) > 0 {
			scopes = append(scopes, QueueScope{
				Type:      typ,
				OrgIDs:    ids,
				Secondary: typ == TypeVolunteerTeacher,
			})
		}
	}
	if topAuthority {
		scopes = append(scopes, QueueScope{Type: TypeGeneralBasic, Global: true})
		if orphanPolicy == PolicyEscalate {
			scopes = append(scopes, QueueScope{Global: true, OrphanOnly: true})
		}
	}
	return scopes
}

func hasRole(bindings []orgdomain.AdminBinding, role string) bool {
	for _, b := range bindings {
		if b.RoleCode == role {
			return true
		}
	}
	return false
}
