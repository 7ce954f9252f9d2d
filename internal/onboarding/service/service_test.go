package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	auditrepository "github.com/yunzhijiao/bridge/internal/audit/repository"
	auditservice "github.com/yunzhijiao/bridge/internal/audit/service"
	"github.com/yunzhijiao/bridge/internal/clock"
	notifdomain "github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/notification/outbox"
	notifrepository "github.com/yunzhijiao/bridge/internal/notification/repository"
	"github.com/yunzhijiao/bridge/internal/onboarding/domain"
	"github.com/yunzhijiao/bridge/internal/onboarding/repository"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	orgrepository "github.com/yunzhijiao/bridge/internal/organization/repository"
	verifdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
	pkgdb "github.com/yunzhijiao/bridge/pkg/db"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	genID   *snowflake.Node
	orgRepo orgdomain.Repository
	svc     domain.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.AdminBinding{},
		&domain.Request{},
		&verifdomain.Request{},
		&notifdomain.Notification{},
		&notifdomain.OutboxEvent{},
		&auditdomain.AuditLog{},
	))

	genID, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	orgRepo := orgrepository.NewRepository(gdb)
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    gdb,
		Log:   log,
		GenID: genID,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:         gdb,
		Log:        log,
		GenID:      genID,
		Clock:      clk,
		Repo:       repository.NewRepository(gdb),
		OrgRepo:    orgRepo,
		Dispatcher: outbox.NewDispatcher(notifrepository.NewRepository(gdb), clk),
		AuditSvc:   auditSvc,
	})

	return &testEnv{db: gdb, clock: clk, genID: genID, orgRepo: orgRepo, svc: svc}
}

func (e *testEnv) bindTopAuthority(t *testing.T) snowflake.ID {
	t.Helper()
	userID := e.genID.Generate()
	require.NoError(t, e.db.Create(&orgdomain.AdminBinding{
		ID:        e.genID.Generate(),
		UserID:    userID,
		RoleCode:  orgdomain.RoleTopAuthorityAdmin,
		CreatedAt: e.clock.Now(),
	}).Error)
	return userID
}

func submitFixture(kind string) domain.SubmitRequest {
	return domain.SubmitRequest{
		OrgKind:      kind,
		SchoolCode:   "PKU",
		SchoolName:   "Peking University",
		ContactName:  "Wang Wu",
		ContactEmail: "wangwu@example.edu",
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := env.genID.Generate()

	req := submitFixture("not_a_kind")
	_, err := env.svc.Submit(ctx, applicant, req)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	// The top authority itself is never onboarded.
	req = submitFixture(orgdomain.KindTopAuthority)
	_, err = env.svc.Submit(ctx, applicant, req)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	req = submitFixture(orgdomain.KindUniversity)
	req.SchoolCode = " "
	_, err = env.svc.Submit(ctx, applicant, req)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	req = submitFixture(orgdomain.KindUniversity)
	req.ContactEmail = "not-an-email"
	_, err = env.svc.Submit(ctx, applicant, req)
	assert.ErrorIs(t, err, domain.ErrInvalidContact)

	row, err := env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, row.Status)

	// One pending onboarding request per applicant, regardless of kind.
	other := submitFixture(orgdomain.KindAidSchool)
	other.SchoolCode = "ZT1Z"
	other.SchoolName = "Zhaotong No.1 Middle School"
	_, err = env.svc.Submit(ctx, applicant, other)
	assert.ErrorIs(t, err, domain.ErrDuplicatePending)
}

func TestReviewApproveCreatesOrgAndBinding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := env.genID.Generate()
	reviewer := env.bindTopAuthority(t)

	row, err := env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	decided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, decided.Status)
	require.NotNil(t, decided.CreatedOrgID)

	org, err := env.orgRepo.GetOrganization(ctx, *decided.CreatedOrgID)
	require.NoError(t, err)
	assert.Equal(t, orgdomain.KindUniversity, org.Kind)
	assert.Equal(t, "PKU", org.SchoolCode)
	assert.Equal(t, "Peking University", org.DisplayName)
	assert.True(t, org.Certified)
	assert.True(t, org.HasLiveAdmin)

	bindings, err := env.orgRepo.ListBindingsByUser(ctx, applicant)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, orgdomain.RoleUniversityAdmin, bindings[0].RoleCode)
	require.NotNil(t, bindings[0].OrgID)
	assert.Equal(t, org.ID, *bindings[0].OrgID)

	var n int64
	require.NoError(t, env.db.Model(&notifdomain.OutboxEvent{}).
		Where("topic = ?", notifdomain.TopicOnboardingApproved).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestReviewApproveReusesExistingOrg(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reviewer := env.bindTopAuthority(t)

	first, err := env.svc.Submit(ctx, env.genID.Generate(), submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)
	decidedFirst, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: first.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	// A second administrator for the same school joins the existing org.
	second, err := env.svc.Submit(ctx, env.genID.Generate(), submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)
	decidedSecond, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: second.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	require.NotNil(t, decidedFirst.CreatedOrgID)
	require.NotNil(t, decidedSecond.CreatedOrgID)
	assert.Equal(t, *decidedFirst.CreatedOrgID, *decidedSecond.CreatedOrgID)

	var orgs int64
	require.NoError(t, env.db.Model(&orgdomain.Organization{}).Count(&orgs).Error)
	assert.EqualValues(t, 1, orgs)
}

func TestReviewApproveRestoresOrphanedOrg(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reviewer := env.bindTopAuthority(t)

	// The school was onboarded before, lost its only admin, and stranded a
	// pending verification while hidden from the directory.
	first, err := env.svc.Submit(ctx, env.genID.Generate(), submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)
	decided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: first.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)
	require.NotNil(t, decided.CreatedOrgID)
	orgID := *decided.CreatedOrgID

	require.NoError(t, env.db.Exec(
		`UPDATE organizations SET has_live_admin = ? WHERE id = ?`, false, orgID).Error)
	stranded := verifdomain.Request{
		ID:            env.genID.Generate(),
		Type:          verifdomain.TypeUniversityStudent,
		ApplicantID:   env.genID.Generate(),
		TargetOrgID:   &orgID,
		Status:        verifdomain.StatusPending,
		OrphanFlagged: true,
		CreatedAt:     env.clock.Now(),
		UpdatedAt:     env.clock.Now(),
	}
	require.NoError(t, env.db.Create(&stranded).Error)

	second, err := env.svc.Submit(ctx, env.genID.Generate(), submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)
	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: second.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	var org orgdomain.Organization
	require.NoError(t, env.db.First(&org, "id = ?", orgID).Error)
	assert.True(t, org.HasLiveAdmin)

	var row verifdomain.Request
	require.NoError(t, env.db.First(&row, "id = ?", stranded.ID).Error)
	assert.False(t, row.OrphanFlagged)
}

func TestReviewAssociationLinksParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reviewer := env.bindTopAuthority(t)

	uniReq, err := env.svc.Submit(ctx, env.genID.Generate(), submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)
	uniDecided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: uniReq.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	assocSubmit := submitFixture(orgdomain.KindAssociation)
	assocSubmit.AssociationName = "PKU Volunteer Teaching Association"
	assocReq, err := env.svc.Submit(ctx, env.genID.Generate(), assocSubmit)
	require.NoError(t, err)
	assocDecided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: assocReq.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	assoc, err := env.orgRepo.GetOrganization(ctx, *assocDecided.CreatedOrgID)
	require.NoError(t, err)
	assert.Equal(t, "PKU Volunteer Teaching Association", assoc.DisplayName)
	require.NotNil(t, assoc.ParentUniversityID)
	assert.Equal(t, *uniDecided.CreatedOrgID, *assoc.ParentUniversityID)
}

func TestReviewRejectNeedsReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := env.genID.Generate()
	reviewer := env.bindTopAuthority(t)

	row, err := env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionReject,
	})
	assert.ErrorIs(t, err, domain.ErrReasonRequired)

	decided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionReject,
		Reason:    "办学资质证明缺失",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, decided.Status)
	assert.Nil(t, decided.CreatedOrgID)

	// Rejection creates nothing.
	var orgs int64
	require.NoError(t, env.db.Model(&orgdomain.Organization{}).Count(&orgs).Error)
	assert.Zero(t, orgs)

	// The applicant may file again after a rejection.
	_, err = env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	assert.NoError(t, err)
}

func TestReviewRequiresTopAuthority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := env.genID.Generate()
	reviewer := env.bindTopAuthority(t)

	row, err := env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)

	// An org-scoped admin has no say over onboarding.
	orgID := env.genID.Generate()
	uniAdmin := env.genID.Generate()
	require.NoError(t, env.db.Create(&orgdomain.AdminBinding{
		ID:        env.genID.Generate(),
		UserID:    uniAdmin,
		RoleCode:  orgdomain.RoleUniversityAdmin,
		OrgID:     &orgID,
		CreatedAt: env.clock.Now(),
	}).Error)

	_, err = env.svc.Review(ctx, uniAdmin, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.ListPending(ctx, uniAdmin, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	pending, err := env.svc.ListPending(ctx, reviewer, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestReviewIsCompareAndSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := env.genID.Generate()
	reviewer := env.bindTopAuthority(t)

	row, err := env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionReject,
		Reason:    "late",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyDecided)
}

func TestGetRequestVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := env.genID.Generate()
	reviewer := env.bindTopAuthority(t)
	stranger := env.genID.Generate()

	row, err := env.svc.Submit(ctx, applicant, submitFixture(orgdomain.KindUniversity))
	require.NoError(t, err)

	_, err = env.svc.GetRequest(ctx, applicant, row.ID)
	assert.NoError(t, err)
	_, err = env.svc.GetRequest(ctx, reviewer, row.ID)
	assert.NoError(t, err)
	_, err = env.svc.GetRequest(ctx, stranger, row.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	mine, err := env.svc.ListMine(ctx, applicant)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
