package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	orgdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectVerification = "verification"
	ObjectOnboarding   = "onboarding"
	ObjectOrganization = "organization"
	ObjectTeacherPool  = "teacher_pool"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionVerificationQueueView = "verification.queue_view"
	ActionVerificationReview    = "verification.review"
	ActionVerificationRevoke    = "verification.revoke"
	ActionApplicantView         = "verification.applicant_view"

	ActionOnboardingReview = "onboarding.review"

	ActionOrgManageAdmins = "organization.manage_admins"

	ActionTeacherPoolView   = "teacher_pool.view"
	ActionTeacherPoolManage = "teacher_pool.manage"

	ActionAuditLogView = "audit_log.view"
)

// globalDomain is the casbin domain for bindings whose org id is null
// (top-authority admins).
const globalDomain = "org:global"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Authorize checks actor against the seeded role policies. orgID may be
// empty for global (top-authority) actions.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorID, err := s.resolveActor(ctx, actor, strings.TrimSpace(orgID))
	if err != nil {
		s.auditDenied(ctx, actorID, orgID, object, action)
		return err
	}

	domain := globalDomain
	if orgID != "" {
		domain = fmt.Sprintf("org:%s", orgID)
	}
	if roleName == roleSubject(orgdomain.RoleTopAuthorityAdmin) {
		// Top-authority bindings carry no org; their grants live in the
		// global domain regardless of the org the call addresses.
		domain = globalDomain
	}
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorID, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", nil, nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", "", nil, ErrInvalidActor
	}

	userIDRaw := strings.TrimPrefix(actor, "user:")
	userID, err := snowflake.ParseString(userIDRaw)
	if err != nil || userID == 0 {
		return "", "", nil, ErrInvalidActor
	}
	userIDStr := userID.String()

	role, err := s.roleForUser(ctx, userID, orgID)
	if err != nil {
		return actor, "", &userIDStr, err
	}
	return actor, roleSubject(role), &userIDStr, nil
}

// roleForUser reads the current admin binding. Global bindings (org_id null)
// match regardless of the addressed org, so a top-authority admin passes the
// gate everywhere.
func (s *ServiceImpl) roleForUser(ctx context.Context, userID snowflake.ID, orgID string) (string, error) {
	var row struct {
		RoleCode string `gorm:"column:role_code"`
	}
	query := `SELECT role_code
		 FROM admin_bindings
		 WHERE user_id = ? AND org_id IS NULL
		 LIMIT 1`
	args := []any{userID}
	if orgID != "" {
		parsedOrgID, err := snowflake.ParseString(orgID)
		if err != nil || parsedOrgID == 0 {
			return "", ErrInvalidOrganization
		}
		query = `SELECT role_code
			 FROM admin_bindings
			 WHERE user_id = ? AND (org_id = ? OR org_id IS NULL)
			 ORDER BY org_id IS NULL
			 LIMIT 1`
		args = []any{userID, parsedOrgID}
	}
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.RoleCode)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	var orgRef *snowflake.ID
	if parsed, err := snowflake.ParseString(orgID); err == nil && parsed != 0 {
		orgRef = &parsed
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, orgRef, "user", actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"org_id": orgID,
	})
}

func roleSubject(roleCode string) string {
	return fmt.Sprintf("role:%s", strings.ToLower(roleCode))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	reviewerActions := [][]string{
		{ObjectVerification, ActionVerificationQueueView},
		{ObjectVerification, ActionVerificationReview},
		{ObjectVerification, ActionVerificationRevoke},
		{ObjectVerification, ActionApplicantView},
		{ObjectAuditLog, ActionAuditLogView},
	}

	var policies [][]string
	for _, role := range []string{
		orgdomain.RoleUniversityAdmin,
		orgdomain.RoleAssociationAdmin,
		orgdomain.RoleAidSchoolAdmin,
		orgdomain.RoleTopAuthorityAdmin,
	} {
		for _, oa := range reviewerActions {
			policies = append(policies, []string{roleSubject(role), oa[0], oa[1]})
		}
	}

	policies = append(policies,
		// Associations run the teacher pool.
		[]string{roleSubject(orgdomain.RoleAssociationAdmin), ObjectTeacherPool, ActionTeacherPoolView},
		[]string{roleSubject(orgdomain.RoleAssociationAdmin), ObjectTeacherPool, ActionTeacherPoolManage},

		// Top authority alone decides onboarding and manages org admins.
		[]string{roleSubject(orgdomain.RoleTopAuthorityAdmin), ObjectOnboarding, ActionOnboardingReview},
		[]string{roleSubject(orgdomain.RoleTopAuthorityAdmin), ObjectOrganization, ActionOrgManageAdmins},
		[]string{roleSubject(orgdomain.RoleTopAuthorityAdmin), ObjectTeacherPool, ActionTeacherPoolView},
	)

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
