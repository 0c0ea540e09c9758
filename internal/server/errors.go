package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/crmbilling/internal/fault"
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
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = fault.NotFound("not_found")
	ErrInvalidRequest     = fault.Validation("invalid_request")
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
			Type:    fault.KindValidation.String(),
			Message: "validation error",
			Code:    vErr.Errors[0].Code,
			Errors:  vErr.Errors,
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{
			Type:    fault.KindNotFound.String(),
			Message: "not found",
			Code:    "not_found",
		}
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	}

	kind := fault.KindOf(err)
	code := fault.CodeOf(err)
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest, errorPayload{
			Type:    kind.String(),
			Message: "validation error",
			Code:    code,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case fault.KindConflict:
		return http.StatusConflict, errorPayload{Type: kind.String(), Message: humanize(code), Code: code}
	case fault.KindNotFound:
		return http.StatusNotFound, errorPayload{Type: kind.String(), Message: humanize(code), Code: code}
	case fault.KindUnauthenticated:
		return http.StatusUnauthorized, errorPayload{Type: kind.String(), Message: "unauthenticated", Code: code}
	case fault.KindForbidden:
		return http.StatusForbidden, errorPayload{Type: kind.String(), Message: "forbidden", Code: code}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    kind.String(),
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the error type and code recorded on the request log line.
func classifyErrorForLog(err error) (string, string) {
	if vErr := asValidationErrors(err); vErr != nil {
		return fault.KindValidation.String(), vErr.Errors[0].Code
	}
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil && len(vErr.Errors) > 0 {
		return vErr
	}
	return nil
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

func humanize(code string) string {
	if code == "" {
		return ""
	}
	return strings.ReplaceAll(code, "_", " ")
}
