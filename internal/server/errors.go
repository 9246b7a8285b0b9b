package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/packhub/internal/auth/domain"
	"github.com/smallbiznis/packhub/internal/authorization"
	"github.com/smallbiznis/packhub/internal/blobstore"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	"github.com/smallbiznis/packhub/internal/publish"
	"github.com/smallbiznis/packhub/internal/release"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"github.com/smallbiznis/packhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationErrorMessage(err),
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(err),
				},
			},
		}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: forbiddenMessage(err),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, publish.ErrTooLarge),
		errors.Is(err, release.ErrAssetTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "tarball exceeds the size limit",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "rate limit exceeded",
		}
	case errors.Is(err, release.ErrUpstream):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_failure",
			Message: "upstream request failed",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if err != nil {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidActor),
		errors.Is(err, publish.ErrMissingTarball),
		errors.Is(err, publish.ErrMissingMetadata),
		errors.Is(err, publish.ErrInvalidManifest),
		errors.Is(err, publish.ErrInvalidName),
		errors.Is(err, publish.ErrReservedName),
		errors.Is(err, release.ErrInvalidPayload),
		errors.Is(err, release.ErrMissingAsset),
		errors.Is(err, packdomain.ErrInvalidName),
		errors.Is(err, versiondomain.ErrInvalidPackName),
		errors.Is(err, versiondomain.ErrInvalidVersion),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidUser),
		errors.Is(err, orgdomain.ErrInvalidRole),
		errors.Is(err, orgdomain.ErrInvalidWebsite),
		errors.Is(err, orgdomain.ErrLastOwner),
		errors.Is(err, webhookdomain.ErrInvalidID),
		errors.Is(err, webhookdomain.ErrInvalidURL),
		errors.Is(err, webhookdomain.ErrInvalidEvents),
		errors.Is(err, authdomain.ErrInvalidUser),
		errors.Is(err, authdomain.ErrInvalidName),
		errors.Is(err, authdomain.ErrInvalidID),
		errors.Is(err, blobstore.ErrInvalidKey):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, authdomain.ErrUnauthorized) ||
		errors.Is(err, publish.ErrUnauthorized) ||
		errors.Is(err, release.ErrInvalidSignature)
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, publish.ErrForbidden),
		errors.Is(err, packdomain.ErrForbidden),
		errors.Is(err, orgdomain.ErrForbidden),
		errors.Is(err, webhookdomain.ErrForbidden):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, versiondomain.ErrConflict),
		errors.Is(err, orgdomain.ErrConflict),
		errors.Is(err, publish.ErrNameSquatting),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, packdomain.ErrNotFound),
		errors.Is(err, versiondomain.ErrNotFound),
		errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, orgdomain.ErrMemberNotFound),
		errors.Is(err, webhookdomain.ErrNotFound),
		errors.Is(err, webhookdomain.ErrPackNotFound),
		errors.Is(err, authdomain.ErrNotFound),
		errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func forbiddenMessage(err error) string {
	if errors.Is(err, publish.ErrForbidden) {
		return "not allowed to publish this pack"
	}
	return "forbidden"
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, versiondomain.ErrConflict):
		return "version already exists"
	case errors.Is(err, publish.ErrNameSquatting):
		return "pack name is too similar to an existing pack"
	case errors.Is(err, orgdomain.ErrConflict):
		return "organization already exists"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, publish.ErrInvalidManifest):
		return publish.ErrInvalidManifest.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "missing_tarball":
		return "tarball"
	case "missing_metadata", "invalid_manifest":
		return "metadata"
	case "reserved_pack_name", "invalid_pack_name":
		return "name"
	case "last_owner":
		return "role"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// validationErrorMessage keeps schema details for manifest errors so
// publishers can fix their metadata.
func validationErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid request"
	case errors.Is(err, publish.ErrInvalidManifest):
		return err.Error()
	case errors.Is(err, orgdomain.ErrLastOwner):
		return "an organization must keep at least one owner"
	default:
		return "invalid value"
	}
}
