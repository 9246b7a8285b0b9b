package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/packhub/internal/release"
)

const maxReleasePayloadBytes = 5 << 20

// HandleGitHubRelease accepts signed GitHub release webhooks. Events other
// than release (ping included) are acknowledged without processing.
func (s *Server) HandleGitHubRelease(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxReleasePayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("payload", "payload_too_large", "release payload is too large"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := c.GetHeader(release.SignatureHeader)
	if event := strings.TrimSpace(c.GetHeader("X-GitHub-Event")); event != "" && event != "release" {
		if err := release.VerifySignature(s.cfg.Release.WebhookSecret, signature, body); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": release.Outcome{Status: release.StatusIgnored, Reason: "event " + event}})
		return
	}

	outcome, err := s.releaseSvc.Handle(c.Request.Context(), body, signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if outcome.Status == release.StatusPublished {
		status = http.StatusCreated
		if outcome.Release != nil {
			c.Set("pack", outcome.Release.Name)
		}
	}
	c.JSON(status, gin.H{"data": outcome})
}
