package capability

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"github.com/yunzhijiao/bridge/internal/config"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	orgrepository "github.com/yunzhijiao/bridge/internal/organization/repository"
	verifdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
	verifrepository "github.com/yunzhijiao/bridge/internal/verification/repository"
	pkgdb "github.com/yunzhijiao/bridge/pkg/db"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	genID     *snowflake.Node
	projector *Projector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.AdminBinding{},
		&verifdomain.Claim{},
	))

	genID, err := snowflake.NewNode(4)
	require.NoError(t, err)

	projector := NewProjector(
		orgrepository.NewRepository(gdb),
		verifrepository.NewRepository(gdb),
		config.NewStaticReviewConfigHolder(config.DefaultReviewConfig()),
		zaptest.NewLogger(t),
	)
	return &testEnv{db: gdb, genID: genID, projector: projector}
}

func (e *testEnv) addOrg(t *testing.T, kind, code string, certified, disabled bool) *orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:           e.genID.Generate(),
		Kind:         kind,
		DisplayName:  code,
		Slug:         kind + "-" + code,
		SchoolCode:   code,
		Certified:    certified,
		Disabled:     disabled,
		HasLiveAdmin: true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, e.db.Create(&org).Error)
	return &org
}

func (e *testEnv) addClaim(t *testing.T, userID snowflake.ID, typ string, orgID *snowflake.ID, status string) {
	t.Helper()
	require.NoError(t, e.db.Create(&verifdomain.Claim{
		ID:        e.genID.Generate(),
		UserID:    userID,
		Type:      typ,
		OrgID:     orgID,
		Status:    status,
		GrantedBy: e.genID.Generate(),
		GrantedAt: time.Now().UTC(),
	}).Error)
}

func TestProjectClaimsToFlags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU", true, false)
	assoc := env.addOrg(t, orgdomain.KindAssociation, "PKU-A", true, false)
	aid := env.addOrg(t, orgdomain.KindAidSchool, "ZT1Z", true, false)

	user := env.genID.Generate()
	env.addClaim(t, user, verifdomain.TypeGeneralBasic, nil, verifdomain.ClaimActive)
	env.addClaim(t, user, verifdomain.TypeUniversityStudent, &pku.ID, verifdomain.ClaimActive)
	env.addClaim(t, user, verifdomain.TypeVolunteerTeacher, &assoc.ID, verifdomain.ClaimActive)
	env.addClaim(t, user, verifdomain.TypeSpecialAid, &aid.ID, verifdomain.ClaimActive)

	caps, err := env.projector.Project(ctx, user)
	require.NoError(t, err)

	assert.True(t, caps.BasicVerified)
	require.NotNil(t, caps.VerifiedStudentOrgID)
	assert.Equal(t, pku.ID, *caps.VerifiedStudentOrgID)
	assert.True(t, caps.CanSubmitVolunteerTeach)
	require.NotNil(t, caps.TeacherAssociationID)
	assert.Equal(t, assoc.ID, *caps.TeacherAssociationID)
	assert.True(t, caps.AidFeatures)
	require.NotNil(t, caps.AidSchoolOrgID)
	assert.Equal(t, aid.ID, *caps.AidSchoolOrgID)
	assert.Len(t, caps.ActiveClaims, 4)

	assert.False(t, caps.IsAdmin)
	assert.False(t, caps.IsTopAuthority)
	assert.Empty(t, caps.ReviewQueues)
}

func TestProjectIgnoresRevokedClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU", true, false)
	user := env.genID.Generate()
	env.addClaim(t, user, verifdomain.TypeUniversityStudent, &pku.ID, verifdomain.ClaimRevoked)

	caps, err := env.projector.Project(ctx, user)
	require.NoError(t, err)
	assert.False(t, caps.CanSubmitVolunteerTeach)
	assert.Nil(t, caps.VerifiedStudentOrgID)
	assert.Empty(t, caps.ActiveClaims)
}

func TestProjectDropsClaimsOfDeadOrgs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.genID.Generate()

	decertified := env.addOrg(t, orgdomain.KindUniversity, "GONE", false, false)
	disabled := env.addOrg(t, orgdomain.KindAidSchool, "OFF", true, true)
	env.addClaim(t, user, verifdomain.TypeUniversityStudent, &decertified.ID, verifdomain.ClaimActive)
	env.addClaim(t, user, verifdomain.TypeSpecialAid, &disabled.ID, verifdomain.ClaimActive)

	missing := env.genID.Generate()
	env.addClaim(t, user, verifdomain.TypeVolunteerTeacher, &missing, verifdomain.ClaimActive)

	// Claims without an organization survive regardless.
	env.addClaim(t, user, verifdomain.TypeGeneralBasic, nil, verifdomain.ClaimActive)

	caps, err := env.projector.Project(ctx, user)
	require.NoError(t, err)
	assert.False(t, caps.CanSubmitVolunteerTeach)
	assert.False(t, caps.AidFeatures)
	assert.Nil(t, caps.TeacherAssociationID)
	assert.True(t, caps.BasicVerified)
	assert.Len(t, caps.ActiveClaims, 1)
}

func TestProjectAdminBindings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU", true, false)
	admin := env.genID.Generate()
	require.NoError(t, env.db.Create(&orgdomain.AdminBinding{
		ID:        env.genID.Generate(),
		UserID:    admin,
		RoleCode:  orgdomain.RoleUniversityAdmin,
		OrgID:     &pku.ID,
		CreatedAt: time.Now().UTC(),
	}).Error)

	caps, err := env.projector.Project(ctx, admin)
	require.NoError(t, err)
	assert.True(t, caps.IsAdmin)
	assert.False(t, caps.IsTopAuthority)
	require.Len(t, caps.ReviewQueues, 1)
	assert.Equal(t, authorization.TypeUniversityStudent, caps.ReviewQueues[0].Type)
	assert.Equal(t, []snowflake.ID{pku.ID}, caps.ReviewQueues[0].OrgIDs)

	top := env.genID.Generate()
	require.NoError(t, env.db.Create(&orgdomain.AdminBinding{
		ID:        env.genID.Generate(),
		UserID:    top,
		RoleCode:  orgdomain.RoleTopAuthorityAdmin,
		CreatedAt: time.Now().UTC(),
	}).Error)

	caps, err = env.projector.Project(ctx, top)
	require.NoError(t, err)
	assert.True(t, caps.IsTopAuthority)
	// General-basic queue plus the orphan escalation queue.
	assert.Len(t, caps.ReviewQueues, 2)
}
