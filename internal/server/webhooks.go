package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
)

func (s *Server) CreateWebhook(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req webhookdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	hook, err := s.webhookSvc.Create(c.Request.Context(), actor, packName(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionWebhookCreate, auditdomain.TargetWebhook, hook.ID, map[string]any{
		"pack": hook.PackName,
		"url":  hook.URL,
	})

	c.JSON(http.StatusCreated, gin.H{"data": hook})
}

func (s *Server) ListWebhooks(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	hooks, err := s.webhookSvc.List(c.Request.Context(), actor, packName(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hooks})
}

func (s *Server) GetWebhook(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	hook, err := s.webhookSvc.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hook})
}

func (s *Server) UpdateWebhook(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req webhookdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	hook, err := s.webhookSvc.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionWebhookUpdate, auditdomain.TargetWebhook, hook.ID, nil)

	c.JSON(http.StatusOK, gin.H{"data": hook})
}

func (s *Server) DeleteWebhook(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.webhookSvc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionWebhookDelete, auditdomain.TargetWebhook, c.Param("id"), nil)

	c.Status(http.StatusNoContent)
}

func (s *Server) ListWebhookDeliveries(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
		return
	}
	size := webhookdomain.DefaultDeliveryLimit
	if limit != nil {
		size = int(*limit)
	}

	deliveries, err := s.webhookSvc.GetDeliveries(c.Request.Context(), actor, c.Param("id"), size)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deliveries})
}
