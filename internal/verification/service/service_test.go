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
	"github.com/yunzhijiao/bridge/internal/config"
	notifdomain "github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/notification/outbox"
	notifrepository "github.com/yunzhijiao/bridge/internal/notification/repository"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	orgrepository "github.com/yunzhijiao/bridge/internal/organization/repository"
	"github.com/yunzhijiao/bridge/internal/verification/domain"
	"github.com/yunzhijiao/bridge/internal/verification/repository"
	pkgdb "github.com/yunzhijiao/bridge/pkg/db"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	genID   *snowflake.Node
	repo    domain.Repository
	orgRepo orgdomain.Repository
	svc     domain.Service
}

func newTestEnv(t *testing.T, cfg config.ReviewConfig) *testEnv {
	t.Helper()

	gdb, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.AdminBinding{},
		&domain.Request{},
		&domain.Claim{},
		&domain.TeacherPoolEntry{},
		&notifdomain.Notification{},
		&notifdomain.OutboxEvent{},
		&auditdomain.AuditLog{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	repo := repository.NewRepository(gdb)
	orgRepo := orgrepository.NewRepository(gdb)
	dispatcher := outbox.NewDispatcher(notifrepository.NewRepository(gdb), clk)
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
		Repo:       repo,
		OrgRepo:    orgRepo,
		Dispatcher: dispatcher,
		AuditSvc:   auditSvc,
		ReviewCfg:  config.NewStaticReviewConfigHolder(cfg),
	})

	return &testEnv{
		db:      gdb,
		clock:   clk,
		genID:   genID,
		repo:    repo,
		orgRepo: orgRepo,
		svc:     svc,
	}
}

func (e *testEnv) addOrg(t *testing.T, kind, code string, mutate ...func(*orgdomain.Organization)) *orgdomain.Organization {
	t.Helper()
	org := orgdomain.Organization{
		ID:           e.genID.Generate(),
		Kind:         kind,
		DisplayName:  code,
		Slug:         kind + "-" + code,
		Certified:    true,
		HasLiveAdmin: true,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    e.clock.Now(),
		UpdatedAt:    e.clock.Now(),
	}
	if kind == orgdomain.KindAidSchool {
		org.AidSchoolCode = code
	} else {
		org.SchoolCode = code
	}
	for _, fn := range mutate {
		fn(&org)
	}
	require.NoError(t, e.db.Create(&org).Error)
	return &org
}

func (e *testEnv) bind(t *testing.T, userID snowflake.ID, roleCode string, orgID *snowflake.ID) {
	t.Helper()
	require.NoError(t, e.db.Create(&orgdomain.AdminBinding{
		ID:        e.genID.Generate(),
		UserID:    userID,
		RoleCode:  roleCode,
		OrgID:     orgID,
		CreatedAt: e.clock.Now(),
	}).Error)
}

func (e *testEnv) outboxCount(t *testing.T, topic string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&notifdomain.OutboxEvent{}).Where("topic = ?", topic).Count(&n).Error)
	return n
}

func TestSubmitUniversityStudent(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()

	row, err := env.svc.Submit(ctx, applicant, "Zhang San", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
		EvidenceRefs: []domain.EvidenceRef{
			{ID: "ev-1", Name: "student-card.jpg"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, row.Status)
	assert.Equal(t, "Zhang San", row.ApplicantName)
	require.NotNil(t, row.TargetOrgID)
	assert.Equal(t, university.ID, *row.TargetOrgID)

	// One pending row per (applicant, type).
	_, err = env.svc.Submit(ctx, applicant, "Zhang San", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePending)

	// A different type may still be filed in parallel.
	_, err = env.svc.Submit(ctx, applicant, "Zhang San", domain.SubmitRequest{
		Type: domain.TypeGeneralBasic,
	})
	assert.NoError(t, err)
}

func TestSubmitRejectsInvisibleTargets(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()
	applicant := env.genID.Generate()

	missing := env.genID.Generate()
	_, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &missing,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	uncertified := env.addOrg(t, orgdomain.KindUniversity, "RAW", func(o *orgdomain.Organization) {
		o.Certified = false
	})
	_, err = env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &uncertified.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	orphaned := env.addOrg(t, orgdomain.KindUniversity, "ORPH", func(o *orgdomain.Organization) {
		o.HasLiveAdmin = false
	})
	_, err = env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &orphaned.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	aidSchool := env.addOrg(t, orgdomain.KindAidSchool, "ZT1Z")
	_, err = env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &aidSchool.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	_, err = env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{Type: "not_a_type"})
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestSubmitVolunteerTeacherPrerequisites(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	thu := env.addOrg(t, orgdomain.KindUniversity, "THU")
	pkuAssoc := env.addOrg(t, orgdomain.KindAssociation, "PKU", func(o *orgdomain.Organization) {
		o.ParentUniversityID = &pku.ID
	})
	applicant := env.genID.Generate()

	// No student claim at all.
	_, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:           domain.TypeVolunteerTeacher,
		TargetOrgID:    &pku.ID,
		SecondaryOrgID: &pkuAssoc.ID,
	})
	assert.ErrorIs(t, err, domain.ErrMissingClaim)

	// Student claim held at a different university.
	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    applicant,
		Type:      domain.TypeUniversityStudent,
		OrgID:     &thu.ID,
		Status:    domain.ClaimActive,
		GrantedBy: env.genID.Generate(),
		GrantedAt: env.clock.Now(),
	}))
	_, err = env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:           domain.TypeVolunteerTeacher,
		TargetOrgID:    &pku.ID,
		SecondaryOrgID: &pkuAssoc.ID,
	})
	assert.ErrorIs(t, err, domain.ErrMissingClaim)

	// Association that does not belong to the named university.
	_, err = env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:           domain.TypeVolunteerTeacher,
		TargetOrgID:    &thu.ID,
		SecondaryOrgID: &pkuAssoc.ID,
	})
	assert.ErrorIs(t, err, domain.ErrAssociationParent)

	// With the matching claim the submission goes through.
	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    applicant,
		Type:      domain.TypeUniversityStudent,
		OrgID:     &pku.ID,
		Status:    domain.ClaimActive,
		GrantedBy: env.genID.Generate(),
		GrantedAt: env.clock.Now(),
	}))
	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:           domain.TypeVolunteerTeacher,
		TargetOrgID:    &pku.ID,
		SecondaryOrgID: &pkuAssoc.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, row.Status)
}

func TestSubmitAlreadyVerified(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    applicant,
		Type:      domain.TypeUniversityStudent,
		OrgID:     &university.ID,
		Status:    domain.ClaimActive,
		GrantedBy: env.genID.Generate(),
		GrantedAt: env.clock.Now(),
	}))

	_, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)
}

func TestReviewApproveGrantsClaim(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleUniversityAdmin, &university.ID)

	row, err := env.svc.Submit(ctx, applicant, "Zhang San", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	decided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, reviewer, *decided.ReviewedBy)

	claim, err := env.repo.GetClaim(ctx, applicant, domain.TypeUniversityStudent)
	require.NoError(t, err)
	assert.True(t, claim.Active())
	require.NotNil(t, claim.OrgID)
	assert.Equal(t, university.ID, *claim.OrgID)

	var notif notifdomain.Notification
	require.NoError(t, env.db.First(&notif, "user_id = ?", applicant).Error)
	assert.Equal(t, notifdomain.TypeVerificationApproved, notif.Type)
	assert.EqualValues(t, 1, env.outboxCount(t, notifdomain.TopicVerificationApproved))
}

func TestReviewRejectAndResubmit(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleUniversityAdmin, &university.ID)

	row, err := env.svc.Submit(ctx, applicant, "Zhang San", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionReject,
	})
	assert.ErrorIs(t, err, domain.ErrReasonRequired)

	decided, err := env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionReject,
		Reason:    "材料不清晰",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, decided.Status)
	assert.Equal(t, "材料不清晰", decided.RejectedReason)

	// No claim from a rejection.
	_, err = env.repo.GetClaim(ctx, applicant, domain.TypeUniversityStudent)
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)
	assert.EqualValues(t, 1, env.outboxCount(t, notifdomain.TopicVerificationRejected))

	// The rejected row stays; a fresh pending row is allowed.
	env.clock.Advance(time.Minute)
	again, err := env.svc.Submit(ctx, applicant, "Zhang San", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, row.ID, again.ID)

	history, err := env.svc.ListMine(ctx, applicant)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestReviewWrongReviewer(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	thu := env.addOrg(t, orgdomain.KindUniversity, "THU")
	applicant := env.genID.Generate()
	outsider := env.genID.Generate()
	env.bind(t, outsider, orgdomain.RoleUniversityAdmin, &thu.ID)

	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &pku.ID,
	})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, outsider, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// The top authority does not decide org-scoped types either.
	top := env.genID.Generate()
	env.bind(t, top, orgdomain.RoleTopAuthorityAdmin, nil)
	_, err = env.svc.Review(ctx, top, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReviewIsCompareAndSet(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleUniversityAdmin, &university.ID)

	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionReject,
		Reason:    "changed my mind",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyDecided)

	// Only one approval notification was emitted.
	assert.EqualValues(t, 1, env.outboxCount(t, notifdomain.TopicVerificationApproved))
	assert.EqualValues(t, 0, env.outboxCount(t, notifdomain.TopicVerificationRejected))
}

func TestVolunteerTeacherApprovalFeedsPool(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	assoc := env.addOrg(t, orgdomain.KindAssociation, "PKU", func(o *orgdomain.Organization) {
		o.ParentUniversityID = &pku.ID
	})
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleAssociationAdmin, &assoc.ID)

	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    applicant,
		Type:      domain.TypeUniversityStudent,
		OrgID:     &pku.ID,
		Status:    domain.ClaimActive,
		GrantedBy: env.genID.Generate(),
		GrantedAt: env.clock.Now(),
	}))

	row, err := env.svc.Submit(ctx, applicant, "Li Si", domain.SubmitRequest{
		Type:           domain.TypeVolunteerTeacher,
		TargetOrgID:    &pku.ID,
		SecondaryOrgID: &assoc.ID,
	})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	// The claim is keyed on the association, not the university.
	claim, err := env.repo.GetClaim(ctx, applicant, domain.TypeVolunteerTeacher)
	require.NoError(t, err)
	require.NotNil(t, claim.OrgID)
	assert.Equal(t, assoc.ID, *claim.OrgID)

	pool, err := env.svc.ListTeacherPool(ctx, reviewer, domain.ListTeacherPoolRequest{
		AssociationOrgID: assoc.ID,
	})
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, applicant, pool[0].UserID)
	assert.Equal(t, "PKU", pool[0].SchoolCode)
	assert.Equal(t, "Li Si", pool[0].DisplayName)
	assert.True(t, pool[0].Active)
}

func TestRevokeClearsClaimAndPool(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	assoc := env.addOrg(t, orgdomain.KindAssociation, "PKU", func(o *orgdomain.Organization) {
		o.ParentUniversityID = &pku.ID
	})
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleAssociationAdmin, &assoc.ID)

	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    applicant,
		Type:      domain.TypeUniversityStudent,
		OrgID:     &pku.ID,
		Status:    domain.ClaimActive,
		GrantedBy: env.genID.Generate(),
		GrantedAt: env.clock.Now(),
	}))
	row, err := env.svc.Submit(ctx, applicant, "Li Si", domain.SubmitRequest{
		Type:           domain.TypeVolunteerTeacher,
		TargetOrgID:    &pku.ID,
		SecondaryOrgID: &assoc.ID,
	})
	require.NoError(t, err)
	_, err = env.svc.Review(ctx, reviewer, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)

	err = env.svc.Revoke(ctx, reviewer, domain.RevokeRequest{
		ApplicantID: applicant,
		Type:        domain.TypeVolunteerTeacher,
	})
	assert.ErrorIs(t, err, domain.ErrReasonRequired)

	env.clock.Advance(time.Hour)
	err = env.svc.Revoke(ctx, reviewer, domain.RevokeRequest{
		ApplicantID: applicant,
		Type:        domain.TypeVolunteerTeacher,
		Reason:      "资质不再有效",
	})
	require.NoError(t, err)

	claim, err := env.repo.GetClaim(ctx, applicant, domain.TypeVolunteerTeacher)
	require.NoError(t, err)
	assert.False(t, claim.Active())
	assert.NotNil(t, claim.RevokedAt)

	pool, err := env.svc.ListTeacherPool(ctx, reviewer, domain.ListTeacherPoolRequest{
		AssociationOrgID: assoc.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, pool)

	assert.EqualValues(t, 1, env.outboxCount(t, notifdomain.TopicVerificationRevoked))

	// Revoking twice has nothing approved to act on.
	err = env.svc.Revoke(ctx, reviewer, domain.RevokeRequest{
		ApplicantID: applicant,
		Type:        domain.TypeVolunteerTeacher,
		Reason:      "again",
	})
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestOrphanEscalatePolicy(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	top := env.genID.Generate()
	env.bind(t, top, orgdomain.RoleTopAuthorityAdmin, nil)

	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)

	// The organization loses its last admin while the request is pending.
	require.NoError(t, env.db.Model(&domain.Request{}).
		Where("id = ?", row.ID).
		Update("orphan_flagged", true).Error)

	queue, err := env.svc.ListQueue(ctx, top, domain.ListQueueRequest{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, row.ID, queue[0].ID)

	decided, err := env.svc.Review(ctx, top, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, decided.Status)
}

func TestOrphanFreezePolicy(t *testing.T) {
	cfg := config.DefaultReviewConfig()
	cfg.OrphanEscalation = config.OrphanFreeze
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	top := env.genID.Generate()
	env.bind(t, top, orgdomain.RoleTopAuthorityAdmin, nil)

	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&domain.Request{}).
		Where("id = ?", row.ID).
		Update("orphan_flagged", true).Error)

	queue, err := env.svc.ListQueue(ctx, top, domain.ListQueueRequest{})
	require.NoError(t, err)
	assert.Empty(t, queue)

	_, err = env.svc.Review(ctx, top, domain.ReviewRequest{
		RequestID: row.ID,
		Decision:  domain.DecisionApprove,
	})
	assert.ErrorIs(t, err, domain.ErrOrphanAuthority)
}

func TestListQueueScopes(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	thu := env.addOrg(t, orgdomain.KindUniversity, "THU")

	first := env.genID.Generate()
	second := env.genID.Generate()
	third := env.genID.Generate()

	_, err := env.svc.Submit(ctx, first, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &pku.ID,
	})
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	_, err = env.svc.Submit(ctx, second, "b", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &thu.ID,
	})
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	_, err = env.svc.Submit(ctx, third, "c", domain.SubmitRequest{
		Type: domain.TypeGeneralBasic,
	})
	require.NoError(t, err)

	pkuAdmin := env.genID.Generate()
	env.bind(t, pkuAdmin, orgdomain.RoleUniversityAdmin, &pku.ID)
	queue, err := env.svc.ListQueue(ctx, pkuAdmin, domain.ListQueueRequest{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, first, queue[0].ApplicantID)

	top := env.genID.Generate()
	env.bind(t, top, orgdomain.RoleTopAuthorityAdmin, nil)
	queue, err = env.svc.ListQueue(ctx, top, domain.ListQueueRequest{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, domain.TypeGeneralBasic, queue[0].Type)

	nobody := env.genID.Generate()
	_, err = env.svc.ListQueue(ctx, nobody, domain.ListQueueRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGetRequestVisibility(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	stranger := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleUniversityAdmin, &university.ID)

	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)

	got, err := env.svc.GetRequest(ctx, applicant, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, got.ID)

	_, err = env.svc.GetRequest(ctx, reviewer, row.ID)
	assert.NoError(t, err)

	_, err = env.svc.GetRequest(ctx, stranger, row.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestApplicantDetail(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	university := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	applicant := env.genID.Generate()
	reviewer := env.genID.Generate()
	env.bind(t, reviewer, orgdomain.RoleUniversityAdmin, &university.ID)

	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    applicant,
		Type:      domain.TypeGeneralBasic,
		Status:    domain.ClaimActive,
		GrantedBy: env.genID.Generate(),
		GrantedAt: env.clock.Now(),
	}))
	row, err := env.svc.Submit(ctx, applicant, "a", domain.SubmitRequest{
		Type:        domain.TypeUniversityStudent,
		TargetOrgID: &university.ID,
	})
	require.NoError(t, err)

	detail, err := env.svc.ApplicantDetail(ctx, reviewer, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, detail.Request.ID)
	assert.Len(t, detail.ActiveClaims, 1)
	assert.Len(t, detail.History, 1)

	_, err = env.svc.ApplicantDetail(ctx, applicant, row.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListClaimHolders(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	aidSchool := env.addOrg(t, orgdomain.KindAidSchool, "ZT1Z")
	admin := env.genID.Generate()
	outsider := env.genID.Generate()
	env.bind(t, admin, orgdomain.RoleAidSchoolAdmin, &aidSchool.ID)

	beneficiary := env.genID.Generate()
	require.NoError(t, env.repo.UpsertClaim(ctx, domain.Claim{
		ID:        env.genID.Generate(),
		UserID:    beneficiary,
		Type:      domain.TypeSpecialAid,
		OrgID:     &aidSchool.ID,
		Status:    domain.ClaimActive,
		GrantedBy: admin,
		GrantedAt: env.clock.Now(),
	}))

	holders, err := env.svc.ListClaimHolders(ctx, admin, domain.TypeSpecialAid, aidSchool.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, beneficiary, holders[0].UserID)

	_, err = env.svc.ListClaimHolders(ctx, outsider, domain.TypeSpecialAid, aidSchool.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestTeacherPoolManagement(t *testing.T) {
	env := newTestEnv(t, config.DefaultReviewConfig())
	ctx := context.Background()

	pku := env.addOrg(t, orgdomain.KindUniversity, "PKU")
	assoc := env.addOrg(t, orgdomain.KindAssociation, "PKU", func(o *orgdomain.Organization) {
		o.ParentUniversityID = &pku.ID
	})
	admin := env.genID.Generate()
	outsider := env.genID.Generate()
	env.bind(t, admin, orgdomain.RoleAssociationAdmin, &assoc.ID)

	teacher := env.genID.Generate()
	require.NoError(t, env.repo.UpsertTeacherPoolEntry(ctx, domain.TeacherPoolEntry{
		ID:               env.genID.Generate(),
		UserID:           teacher,
		AssociationOrgID: assoc.ID,
		SchoolCode:       "PKU",
		DisplayName:      "Li Si",
		Active:           true,
		CreatedAt:        env.clock.Now(),
		UpdatedAt:        env.clock.Now(),
	}))

	require.NoError(t, env.svc.SetTeacherPoolActive(ctx, admin, teacher, assoc.ID, false))

	pool, err := env.svc.ListTeacherPool(ctx, admin, domain.ListTeacherPoolRequest{
		AssociationOrgID: assoc.ID,
		ActiveOnly:       true,
	})
	require.NoError(t, err)
	assert.Empty(t, pool)

	pool, err = env.svc.ListTeacherPool(ctx, admin, domain.ListTeacherPoolRequest{
		AssociationOrgID: assoc.ID,
	})
	require.NoError(t, err)
	assert.Len(t, pool, 1)

	err = env.svc.SetTeacherPoolActive(ctx, admin, env.genID.Generate(), assoc.ID, true)
	assert.ErrorIs(t, err, domain.ErrPoolEntryNotFound)

	err = env.svc.SetTeacherPoolActive(ctx, outsider, teacher, assoc.ID, true)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.ListTeacherPool(ctx, outsider, domain.ListTeacherPoolRequest{
		AssociationOrgID: assoc.ID,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
