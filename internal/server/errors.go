package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/yunzhijiao/bridge/internal/audit/domain"
	authdomain "github.com/yunzhijiao/bridge/internal/auth/domain"
	"github.com/yunzhijiao/bridge/internal/authorization"
	onboardingdomain "github.com/yunzhijiao/bridge/internal/onboarding/domain"
	organizationdomain "github.com/yunzhijiao/bridge/internal/organization/domain"
	verificationdomain "github.com/yunzhijiao/bridge/internal/verification/domain"
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
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
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
	case errors.Is(err, verificationdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
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

// classifyErrorForLog feeds the request logger; it must never panic.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Type
	}
	return "client", payload.Type
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
		errors.Is(err, verificationdomain.ErrInvalidType),
		errors.Is(err, verificationdomain.ErrInvalidTarget),
		errors.Is(err, verificationdomain.ErrInvalidSecondary),
		errors.Is(err, verificationdomain.ErrInvalidDecision),
		errors.Is(err, verificationdomain.ErrReasonRequired),
		errors.Is(err, verificationdomain.ErrMissingClaim),
		errors.Is(err, verificationdomain.ErrAssociationParent),
		errors.Is(err, onboardingdomain.ErrInvalidKind),
		errors.Is(err, onboardingdomain.ErrInvalidContact),
		errors.Is(err, onboardingdomain.ErrInvalidDecision),
		errors.Is(err, onboardingdomain.ErrReasonRequired),
		errors.Is(err, organizationdomain.ErrInvalidKind),
		errors.Is(err, organizationdomain.ErrInvalidSchoolCode),
		errors.Is(err, organizationdomain.ErrInvalidDisplayName),
		errors.Is(err, organizationdomain.ErrInvalidUser),
		errors.Is(err, organizationdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, verificationdomain.ErrForbidden),
		errors.Is(err, onboardingdomain.ErrForbidden),
		errors.Is(err, organizationdomain.ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, verificationdomain.ErrDuplicatePending),
		errors.Is(err, verificationdomain.ErrAlreadyDecided),
		errors.Is(err, verificationdomain.ErrAlreadyVerified),
		errors.Is(err, verificationdomain.ErrOrphanAuthority),
		errors.Is(err, onboardingdomain.ErrDuplicatePending),
		errors.Is(err, onboardingdomain.ErrAlreadyDecided),
		errors.Is(err, organizationdomain.ErrBindingExists),
		errors.Is(err, organizationdomain.ErrOrganizationExists):
		return true
	default:
		return false
	}
}

// conflictMessage keeps the specific sentinel visible so clients can
// distinguish a duplicate submission from a lost review race.
func conflictMessage(err error) string {
	switch {
	case errors.Is(err, verificationdomain.ErrDuplicatePending),
		errors.Is(err, onboardingdomain.ErrDuplicatePending):
		return "duplicate_pending"
	case errors.Is(err, verificationdomain.ErrAlreadyDecided),
		errors.Is(err, onboardingdomain.ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, verificationdomain.ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, verificationdomain.ErrOrphanAuthority):
		return "orphan_authority"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, verificationdomain.ErrRequestNotFound),
		errors.Is(err, verificationdomain.ErrClaimNotFound),
		errors.Is(err, verificationdomain.ErrPoolEntryNotFound),
		errors.Is(err, onboardingdomain.ErrRequestNotFound),
		errors.Is(err, organizationdomain.ErrOrgNotFound),
		errors.Is(err, organizationdomain.ErrBindingNotFound),
		errors.Is(err, organizationdomain.ErrNoParentUniversity),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
