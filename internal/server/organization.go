package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
)

type addMemberRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req orgdomain.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Create(c.Request.Context(), actor, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionOrgCreate, auditdomain.TargetOrganization, org.Name, nil)

	c.JSON(http.StatusCreated, gin.H{"data": org})
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.organizationSvc.Get(c.Request.Context(), c.Param("org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	var req orgdomain.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Update(c.Request.Context(), c.Param("org"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionOrgUpdate, auditdomain.TargetOrganization, org.Name, nil)

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	if err := s.organizationSvc.Delete(c.Request.Context(), c.Param("org")); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionOrgDelete, auditdomain.TargetOrganization, c.Param("org"), nil)

	c.Status(http.StatusNoContent)
}

func (s *Server) ListMembers(c *gin.Context) {
	members, err := s.organizationSvc.ListMembers(c.Request.Context(), c.Param("org"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = orgdomain.RoleMember
	}

	member, err := s.organizationSvc.AddMember(c.Request.Context(), c.Param("org"), req.Username, role)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionMemberAdd, auditdomain.TargetOrganization, c.Param("org"), map[string]any{
		"username": req.Username,
		"role":     role,
	})

	c.JSON(http.StatusCreated, gin.H{"data": member})
}

func (s *Server) RemoveMember(c *gin.Context) {
	if err := s.organizationSvc.RemoveMember(c.Request.Context(), c.Param("org"), c.Param("username")); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionMemberRemove, auditdomain.TargetOrganization, c.Param("org"), map[string]any{
		"username": c.Param("username"),
	})

	c.Status(http.StatusNoContent)
}

func (s *Server) ListUserOrgs(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgs, err := s.organizationSvc.GetUserOrgs(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orgs})
}
