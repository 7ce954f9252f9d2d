package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yunzhijiao/bridge/internal/providers/pdf"
	verificationdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
)

type submitVerificationRequest struct {
	Type           string                           `json:"type"`
	TargetOrgID    string                           `json:"target_org_id"`
	SecondaryOrgID string                           `json:"secondary_org_id"`
	EvidenceRefs   []verificationdomain.EvidenceRef `json:"evidence_refs"`
	Note           string                           `json:"note"`
}

type reviewVerificationRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type revokeVerificationRequest struct {
	ApplicantID string `json:"applicant_id"`
	Type        string `json:"type"`
	Reason      string `json:"reason"`
}

func (s *Server) SubmitVerification(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req submitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	targetOrgID, err := parseOptionalID(req.TargetOrgID)
	if err != nil {
		AbortWithError(c, newValidationError("target_org_id", "invalid_target", "invalid target organization id"))
		return
	}
	secondaryOrgID, err := parseOptionalID(req.SecondaryOrgID)
	if err != nil {
		AbortWithError(c, newValidationError("secondary_org_id", "invalid_secondary", "invalid secondary organization id"))
		return
	}

	user, err := s.authsvc.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	created, err := s.verificationSvc.Submit(c.Request.Context(), userID, user.DisplayName, verificationdomain.SubmitRequest{
		Type:           strings.TrimSpace(req.Type),
		TargetOrgID:    targetOrgID,
		SecondaryOrgID: secondaryOrgID,
		EvidenceRefs:   req.EvidenceRefs,
		Note:           strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Server) ListMyVerifications(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	requests, err := s.verificationSvc.ListMine(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}

func (s *Server) GetVerification(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	request, err := s.verificationSvc.GetRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (s *Server) ListVerificationQueue(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	targetOrgID, err := parseOptionalID(c.Query("target_org_id"))
	if err != nil {
		AbortWithError(c, newValidationError("target_org_id", "invalid_target", "invalid target organization id"))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	requests, err := s.verificationSvc.ListQueue(c.Request.Context(), userID, verificationdomain.ListQueueRequest{
		Type:        strings.TrimSpace(c.Query("type")),
		TargetOrgID: targetOrgID,
		Limit:       limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}

func (s *Server) VerificationApplicantDetail(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.verificationSvc.ApplicantDetail(c.Request.Context(), userID, requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) ReviewVerification(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req reviewVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	decided, err := s.verificationSvc.Review(c.Request.Context(), userID, verificationdomain.ReviewRequest{
		RequestID: requestID,
		Decision:  strings.TrimSpace(req.Decision),
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decided)
}

func (s *Server) RevokeVerification(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req revokeVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	applicantID, err := parseOptionalID(req.ApplicantID)
	if err != nil || applicantID == nil {
		AbortWithError(c, newValidationError("applicant_id", "invalid_applicant", "invalid applicant id"))
		return
	}

	err = s.verificationSvc.Revoke(c.Request.Context(), userID, verificationdomain.RevokeRequest{
		ApplicantID: *applicantID,
		Type:        strings.TrimSpace(req.Type),
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListMyClaims(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	claims, err := s.verificationSvc.ActiveClaims(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": claims})
}

func (s *Server) ListClaimHolders(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}
	typ := strings.TrimSpace(c.Query("type"))
	if typ == "" {
		AbortWithError(c, newValidationError("type", "required", "type is required"))
		return
	}

	claims, err := s.verificationSvc.ListClaimHolders(c.Request.Context(), userID, typ, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": claims})
}

// VerificationCertificate renders a PDF for an approved request. Visibility
// follows GetRequest: the applicant or an entitled reviewer.
func (s *Server) VerificationCertificate(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	request, err := s.verificationSvc.GetRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if request.Status != verificationdomain.StatusApproved {
		AbortWithError(c, ErrNotFound)
		return
	}

	orgName := "Verification Review Authority"
	if request.TargetOrgID != nil {
		if org, err := s.organizationSvc.GetByID(c.Request.Context(), *request.TargetOrgID); err == nil {
			orgName = org.DisplayName
		}
	}

	reviewedAt := ""
	if request.ReviewedAt != nil {
		reviewedAt = request.ReviewedAt.UTC().Format("2006-01-02")
	}

	doc, err := s.pdfProvider.GenerateCertificate(c.Request.Context(), pdf.CertificateData{
		CertificateNumber: request.ID.String(),
		HolderName:        request.ApplicantName,
		VerificationType:  request.Type,
		OrganizationName:  orgName,
		ReviewedAt:        reviewedAt,
		IssuedAt:          time.Now().UTC().Format("2006-01-02"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="certificate-`+request.ID.String()+`.pdf"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, nil)
}
