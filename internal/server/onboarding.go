package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	onboardingdomain "github.com/yunzhijiao/bridge/internal/onboarding/domain"
)

type submitOnboardingRequest struct {
	OrgKind         string                         `json:"org_kind"`
	SchoolCode      string                         `json:"school_code"`
	SchoolName      string                         `json:"school_name"`
	AssociationName string                         `json:"association_name"`
	ContactName     string                         `json:"contact_name"`
	ContactEmail    string                         `json:"contact_email"`
	ContactPhone    string                         `json:"contact_phone"`
	EvidenceRefs    []onboardingdomain.EvidenceRef `json:"evidence_refs"`
}

type reviewOnboardingRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (s *Server) SubmitOnboarding(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req submitOnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.onboardingSvc.Submit(c.Request.Context(), userID, onboardingdomain.SubmitRequest{
		OrgKind:         strings.TrimSpace(req.OrgKind),
		SchoolCode:      strings.TrimSpace(req.SchoolCode),
		SchoolName:      strings.TrimSpace(req.SchoolName),
		AssociationName: strings.TrimSpace(req.AssociationName),
		ContactName:     strings.TrimSpace(req.ContactName),
		ContactEmail:    strings.TrimSpace(req.ContactEmail),
		ContactPhone:    strings.TrimSpace(req.ContactPhone),
		EvidenceRefs:    req.EvidenceRefs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) ListMyOnboarding(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	requests, err := s.onboardingSvc.ListMine(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}

func (s *Server) GetOnboarding(c *gin.Context) {
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

	request, err := s.onboardingSvc.GetRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (s *Server) ListOnboardingQueue(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
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

	requests, err := s.onboardingSvc.ListPending(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requests})
}

func (s *Server) ReviewOnboarding(c *gin.Context) {
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

	var req reviewOnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	decided, err := s.onboardingSvc.Review(c.Request.Context(), userID, onboardingdomain.ReviewRequest{
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
