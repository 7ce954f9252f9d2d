package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	verificationdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
)

type setTeacherPoolActiveRequest struct {
	AssociationOrgID string `json:"association_org_id"`
	Active           *bool  `json:"active"`
}

func (s *Server) ListTeacherPool(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	associationOrgID, err := parseOptionalID(c.Query("association_org_id"))
	if err != nil || associationOrgID == nil {
		AbortWithError(c, newValidationError("association_org_id", "required", "association organization id is required"))
		return
	}

	activeOnly := strings.EqualFold(strings.TrimSpace(c.Query("active_only")), "true")

	entries, err := s.verificationSvc.ListTeacherPool(c.Request.Context(), userID, verificationdomain.ListTeacherPoolRequest{
		AssociationOrgID: *associationOrgID,
		ActiveOnly:       activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) SetTeacherPoolActive(c *gin.Context) {
	reviewerID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	targetUserID, ok := parseIDParam(c, "user_id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req setTeacherPoolActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	associationOrgID, err := parseOptionalID(req.AssociationOrgID)
	if err != nil || associationOrgID == nil {
		AbortWithError(c, newValidationError("association_org_id", "required", "association organization id is required"))
		return
	}
	if req.Active == nil {
		AbortWithError(c, newValidationError("active", "required", "active is required"))
		return
	}

	err = s.verificationSvc.SetTeacherPoolActive(c.Request.Context(), reviewerID, targetUserID, *associationOrgID, *req.Active)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
