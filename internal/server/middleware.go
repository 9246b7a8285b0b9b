package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/packhub/internal/observability/context"
	"github.com/smallbiznis/packhub/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextActorKey   = "actor"
	contextTokenIDKey = "token_id"

	rateLimitEndpointPublish = "publish"
)

// AuthRequired resolves the bearer token into the acting username.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authSvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, principal.Username)
		c.Set(contextTokenIDKey, principal.TokenID)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), principal.Username))
		c.Next()
	}
}

// PublishRateLimit throttles publishes per client IP.
func (s *Server) PublishRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.publishLimiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.publishLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("publish rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			logger.FromContext(ctx).Warn("publish rate limit exceeded", zap.String("endpoint", rateLimitEndpointPublish))
			s.obsMetrics.RecordRateLimitDenied(ctx, rateLimitEndpointPublish, "ip-rate")
			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, rateLimitEndpointPublish)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetString(contextActorKey))
	return actor, actor != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
