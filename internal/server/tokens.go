package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/packhub/internal/auth/domain"
)

type createTokenRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"`
}

func (s *Server) ListTokens(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.authSvc.List(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// CreateToken issues another credential for the caller. The raw token is
// only returned here.
func (s *Server) CreateToken(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ExpiresInDays < 0 {
		AbortWithError(c, newValidationError("expires_in_days", "invalid_expires_in_days", "expires_in_days must not be negative"))
		return
	}

	resp, err := s.authSvc.Issue(c.Request.Context(), authdomain.IssueRequest{
		Username: actor,
		Name:     req.Name,
		TTL:      time.Duration(req.ExpiresInDays) * 24 * time.Hour,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionTokenCreate, auditdomain.TargetToken, resp.ID, map[string]any{
		"name": req.Name,
	})

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RevokeToken(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authSvc.Revoke(c.Request.Context(), actor, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionTokenRevoke, auditdomain.TargetToken, c.Param("id"), nil)

	c.Status(http.StatusNoContent)
}
