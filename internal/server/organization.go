package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
)

type createAdminBindingRequest struct {
	UserID      string `json:"user_id"`
	OrgKind     string `json:"org_kind"`
	SchoolCode  string `json:"school_code"`
	DisplayName string `json:"display_name"`
}

func (s *Server) ListOrganizations(c *gin.Context) {
	req := organizationdomain.ListOrganizationsRequest{
		Kind:       strings.TrimSpace(c.Query("kind")),
		SchoolCode: strings.TrimSpace(c.Query("school_code")),
	}

	// Only top-authority admins may list organizations hidden by the
	// orphan-admin rule.
	if strings.EqualFold(strings.TrimSpace(c.Query("include_hidden")), "true") {
		userID, ok := s.userIDFromSession(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		bindings, err := s.organizationSvc.BindingsForUser(c.Request.Context(), userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		for _, b := range bindings {
			if b.RoleCode == organizationdomain.RoleTopAuthorityAdmin {
				req.IncludeHidden = true
				break
			}
		}
		if !req.IncludeHidden {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	orgs, err := s.organizationSvc.ListCertified(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orgs})
}

func (s *Server) GetOrganization(c *gin.Context) {
	orgID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.GetByID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (s *Server) GetParentUniversity(c *gin.Context) {
	orgID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	parent, err := s.organizationSvc.ResolveParentUniversity(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, parent)
}

func (s *Server) ListMyBindings(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	bindings, err := s.organizationSvc.BindingsForUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bindings})
}

func (s *Server) CreateAdminBinding(c *gin.Context) {
	actorID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createAdminBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseOptionalID(req.UserID)
	if err != nil || userID == nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user id"))
		return
	}

	binding, err := s.organizationSvc.CreateAdminBinding(c.Request.Context(), actorID, organizationdomain.CreateAdminBindingRequest{
		UserID:      *userID,
		OrgKind:     strings.TrimSpace(req.OrgKind),
		SchoolCode:  strings.TrimSpace(req.SchoolCode),
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, binding)
}

func (s *Server) RemoveAdminBinding(c *gin.Context) {
	actorID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bindingID, ok := parseIDParam(c, "id")
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.organizationSvc.RemoveAdminBinding(c.Request.Context(), actorID, bindingID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
