package authorization

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
)

func idp(v int64) *snowflake.ID {
	id := snowflake.ID(v)
	return &id
}

func binding(role string, orgID *snowflake.ID) orgdomain.AdminBinding {
	return orgdomain.AdminBinding{RoleCode: role, OrgID: orgID}
}

func TestCanReviewRouting(t *testing.T) {
	pku := idp(101)
	thu := idp(102)
	pkuAssoc := idp(201)
	aidSchool := idp(301)

	tests := []struct {
		name     string
		bindings []orgdomain.AdminBinding
		target   ReviewTarget
		want     bool
	}{
		{
			name:     "university admin decides own students",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, pku)},
			target:   ReviewTarget{Type: TypeUniversityStudent, TargetOrgID: pku},
			want:     true,
		},
		{
			name:     "university admin cannot decide another university",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, thu)},
			target:   ReviewTarget{Type: TypeUniversityStudent, TargetOrgID: pku},
			want:     false,
		},
		{
			name:     "top authority does not decide org-scoped types",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleTopAuthorityAdmin, nil)},
			target:   ReviewTarget{Type: TypeUniversityStudent, TargetOrgID: pku},
			want:     false,
		},
		{
			name:     "association admin decides volunteer teachers via secondary org",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleAssociationAdmin, pkuAssoc)},
			target: ReviewTarget{
				Type:              TypeVolunteerTeacher,
				TargetOrgID:       pku,
				SecondaryOrgID:    pkuAssoc,
				SecondaryParentID: pku,
			},
			want: true,
		},
		{
			name:     "association parent mismatch blocks the decision",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleAssociationAdmin, pkuAssoc)},
			target: ReviewTarget{
				Type:              TypeVolunteerTeacher,
				TargetOrgID:       thu,
				SecondaryOrgID:    pkuAssoc,
				SecondaryParentID: pku,
			},
			want: false,
		},
		{
			name:     "university admin does not decide volunteer teachers",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, pku)},
			target: ReviewTarget{
				Type:              TypeVolunteerTeacher,
				TargetOrgID:       pku,
				SecondaryOrgID:    pkuAssoc,
				SecondaryParentID: pku,
			},
			want: false,
		},
		{
			name:     "aid school admin decides own special aid",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleAidSchoolAdmin, aidSchool)},
			target:   ReviewTarget{Type: TypeSpecialAid, TargetOrgID: aidSchool},
			want:     true,
		},
		{
			name:     "top authority decides general basic globally",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleTopAuthorityAdmin, nil)},
			target:   ReviewTarget{Type: TypeGeneralBasic},
			want:     true,
		},
		{
			name:     "university admin does not decide general basic",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, pku)},
			target:   ReviewTarget{Type: TypeGeneralBasic},
			want:     false,
		},
		{
			name:     "no bindings decides nothing",
			bindings: nil,
			target:   ReviewTarget{Type: TypeUniversityStudent, TargetOrgID: pku},
			want:     false,
		},
		{
			name:     "unknown type decides nothing",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleTopAuthorityAdmin, nil)},
			target:   ReviewTarget{Type: "mystery"},
			want:     false,
		},
		{
			name:     "missing target org decides nothing",
			bindings: []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, pku)},
			target:   ReviewTarget{Type: TypeUniversityStudent},
			want:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanReview(tc.bindings, tc.target, PolicyEscalate))
		})
	}
}

func TestCanReviewOrphanPolicies(t *testing.T) {
	pku := idp(101)
	orphan := ReviewTarget{Type: TypeUniversityStudent, TargetOrgID: pku, OrphanFlagged: true}

	top := []orgdomain.AdminBinding{binding(orgdomain.RoleTopAuthorityAdmin, nil)}
	uniAdmin := []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, pku)}

	// Escalate widens authority to the top authority only.
	assert.True(t, CanReview(top, orphan, PolicyEscalate))
	assert.True(t, CanReview(uniAdmin, orphan, PolicyEscalate))

	// Freeze blocks everyone, including a still-bound admin.
	assert.False(t, CanReview(top, orphan, PolicyFreeze))
	assert.False(t, CanReview(uniAdmin, orphan, PolicyFreeze))
}

func TestCanView(t *testing.T) {
	pku := idp(101)
	applicant := snowflake.ID(7)
	target := ReviewTarget{Type: TypeUniversityStudent, ApplicantID: applicant, TargetOrgID: pku}

	assert.True(t, CanView(applicant, nil, target, PolicyEscalate))
	assert.True(t, CanView(9, []orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, pku)}, target, PolicyEscalate))
	assert.False(t, CanView(9, nil, target, PolicyEscalate))
}

func TestCanReviewOnboarding(t *testing.T) {
	assert.True(t, CanReviewOnboarding([]orgdomain.AdminBinding{binding(orgdomain.RoleTopAuthorityAdmin, nil)}))
	assert.False(t, CanReviewOnboarding([]orgdomain.AdminBinding{binding(orgdomain.RoleUniversityAdmin, idp(1))}))
	assert.False(t, CanReviewOnboarding(nil))
}

func TestScopesFor(t *testing.T) {
	pku := idp(101)
	thu := idp(102)
	pkuAssoc := idp(201)

	bindings := []orgdomain.AdminBinding{
		binding(orgdomain.RoleUniversityAdmin, pku),
		binding(orgdomain.RoleUniversityAdmin, thu),
		binding(orgdomain.RoleAssociationAdmin, pkuAssoc),
	}

	scopes := ScopesFor(bindings, PolicyEscalate)
	assert.Len(t, scopes, 2)

	byType := map[string]QueueScope{}
	for _, s := range scopes {
		byType[s.Type] = s
	}
	assert.ElementsMatch(t, []snowflake.ID{*pku, *thu}, byType[TypeUniversityStudent].OrgIDs)
	assert.False(t, byType[TypeUniversityStudent].Secondary)
	assert.Equal(t, []snowflake.ID{*pkuAssoc}, byType[TypeVolunteerTeacher].OrgIDs)
	assert.True(t, byType[TypeVolunteerTeacher].Secondary)
}

func TestScopesForTopAuthority(t *testing.T) {
	top := []orgdomain.AdminBinding{binding(orgdomain.RoleTopAuthorityAdmin, nil)}

	scopes := ScopesFor(top, PolicyEscalate)
	assert.Len(t, scopes, 2)
	assert.Equal(t, TypeGeneralBasic, scopes[0].Type)
	assert.True(t, scopes[0].Global)
	assert.True(t, scopes[1].OrphanOnly)

	// Under freeze the orphan scope disappears.
	scopes = ScopesFor(top, PolicyFreeze)
	assert.Len(t, scopes, 1)
	assert.Equal(t, TypeGeneralBasic, scopes[0].Type)

	assert.Empty(t, ScopesFor(nil, PolicyEscalate))
}

func TestValidType(t *testing.T) {
	for _, typ := range []string{TypeUniversityStudent, TypeVolunteerTeacher, TypeSpecialAid, TypeGeneralBasic} {
		assert.True(t, ValidType(typ))
	}
	assert.False(t, ValidType(""))
	assert.False(t, ValidType("student"))
}
