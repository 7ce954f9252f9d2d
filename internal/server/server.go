package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yunzhijiao/bridge/internal/audit"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	"github.com/yunzhijiao/bridge/internal/auth"
	authdomain "github.com/yunzhijiao/bridge/internal/auth/domain"
	"github.com/yunzhijiao/bridge/internal/auth/session"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"github.com/yunzhijiao/bridge/internal/capability"
	"github.com/yunzhijiao/bridge/internal/cloudmetrics"
	"github.com/yunzhijiao/bridge/internal/config"
	"github.com/yunzhijiao/bridge/internal/notification"
	notificationdomain "github.com/yunzhijiao/bridge/internal/notification/domain"
	"github.com/yunzhijiao/bridge/internal/observability"
	obsmiddleware "github.com/yunzhijiao/bridge/internal/observability/logger"
	obsmetrics "github.com/yunzhijiao/bridge/internal/observability/metrics"
	obstracing "github.com/yunzhijiao/bridge/internal/observability/tracing"
	"github.com/yunzhijiao/bridge/internal/onboarding"
	onboardingdomain "github.com/yunzhijiao/bridge/internal/onboarding/domain"
	"github.com/yunzhijiao/bridge/internal/organization"
	organizationdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	"github.com/yunzhijiao/bridge/internal/providers/pdf"
	"github.com/yunzhijiao/bridge/internal/ratelimit"
	"github.com/yunzhijiao/bridge/internal/verification"
	verificationdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	auth.Module,
	session.Module,
	organization.Module,
	notification.Module,
	verification.Module,
	onboarding.Module,
	capability.Module,
	ratelimit.Module,
	pdf.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	authsvc         authdomain.Service
	sessions        *session.Manager
	genID           *snowflake.Node
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	verificationSvc verificationdomain.Service
	onboardingSvc   onboardingdomain.Service
	organizationSvc organizationdomain.Service
	notificationSvc notificationdomain.Service
	projector       *capability.Projector
	pdfProvider     pdf.Provider
	reviewCfg       *config.ReviewConfigHolder
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	VerificationSvc verificationdomain.Service
	OnboardingSvc   onboardingdomain.Service
	OrganizationSvc organizationdomain.Service
	NotificationSvc notificationdomain.Service
	Projector       *capability.Projector
	PDFProvider     pdf.Provider
	ReviewCfg       *config.ReviewConfigHolder
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		verificationSvc: p.VerificationSvc,
		onboardingSvc:   p.OnboardingSvc,
		organizationSvc: p.OrganizationSvc,
		notificationSvc: p.NotificationSvc,
		projector:       p.Projector,
		pdfProvider:     p.PDFProvider,
		reviewCfg:       p.ReviewCfg,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
	auth.GET("/me", s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(s.AuthRequired())

	// -------- Verification requests --------
	api.POST("/verifications/requests", s.SubmitVerification)
	api.GET("/verifications/requests/mine", s.ListMyVerifications)
	api.GET("/verifications/requests/:id", s.GetVerification)
	api.GET("/verifications/requests/:id/certificate", s.VerificationCertificate)

	// -------- Review queues --------
	api.GET("/verifications/queue", s.authorizeOrgAction(authorization.ObjectVerification, authorization.ActionVerificationQueueView), s.ListVerificationQueue)
	api.GET("/verifications/requests/:id/applicant", s.authorizeOrgAction(authorization.ObjectVerification, authorization.ActionApplicantView), s.VerificationApplicantDetail)
	api.POST("/verifications/requests/:id/review", s.authorizeOrgAction(authorization.ObjectVerification, authorization.ActionVerificationReview), s.ReviewVerification)
	api.POST("/verifications/revoke", s.authorizeOrgAction(authorization.ObjectVerification, authorization.ActionVerificationRevoke), s.RevokeVerification)

	// -------- Claims --------
	api.GET("/me/claims", s.ListMyClaims)
	api.GET("/me/capabilities", s.GetCapabilities)
	api.GET("/orgs/:id/claim-holders", s.ListClaimHolders)

	// -------- Teacher pool --------
	api.GET("/teacher-pool", s.authorizeOrgAction(authorization.ObjectTeacherPool, authorization.ActionTeacherPoolView), s.ListTeacherPool)
	api.POST("/teacher-pool/:user_id/active", s.authorizeOrgAction(authorization.ObjectTeacherPool, authorization.ActionTeacherPoolManage), s.SetTeacherPoolActive)

	// -------- Onboarding --------
	api.POST("/onboarding/requests", s.SubmitOnboarding)
	api.GET("/onboarding/requests/mine", s.ListMyOnboarding)
	api.GET("/onboarding/requests/:id", s.GetOnboarding)
	api.GET("/onboarding/queue", s.authorizeOrgAction(authorization.ObjectOnboarding, authorization.ActionOnboardingReview), s.ListOnboardingQueue)
	api.POST("/onboarding/requests/:id/review", s.authorizeOrgAction(authorization.ObjectOnboarding, authorization.ActionOnboardingReview), s.ReviewOnboarding)

	// -------- Organization directory --------
	api.GET("/orgs", s.ListOrganizations)
	api.GET("/orgs/:id", s.GetOrganization)
	api.GET("/orgs/:id/parent", s.GetParentUniversity)
	api.GET("/me/bindings", s.ListMyBindings)
	api.POST("/admin-bindings", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrgManageAdmins), s.CreateAdminBinding)
	api.DELETE("/admin-bindings/:id", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrgManageAdmins), s.RemoveAdminBinding)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)
	api.GET("/notifications/unread-count", s.UnreadNotificationCount)
	api.POST("/notifications/read", s.MarkNotificationsRead)
	api.POST("/notifications/read-all", s.MarkAllNotificationsRead)

	// -------- Audit logs --------
	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
