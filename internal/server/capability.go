package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCapabilities(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	caps, err := s.projector.Project(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, caps)
}

func (s *Server) pollIntervalSeconds() int {
	if s.reviewCfg == nil {
		return 30
	}
	return s.reviewCfg.Get().NotificationPollSeconds
}
