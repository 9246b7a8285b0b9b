package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// authorizeOrgAction checks the caller's role in the :org path organization.
func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		org := strings.TrimSpace(c.Param("org"))
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, org, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
