package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comptoir/internal/domainerr"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = domainerr.ErrUnauthenticated
	ErrInvalidRequest = domainerr.Invalid("request", "invalid_request")
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
	return ErrInvalidRequest
}

func newValidationError(field, code, message string) error {
	return &domainerr.ValidationError{Field: field, Rule: code, Message: message}
}

func mapError(err error) (int, errorPayload) {
	var vErr *domainerr.ValidationError
	if errors.As(err, &vErr) {
		message := vErr.Message
		if message == "" {
			message = "invalid value"
		}
		return http.StatusBadRequest, errorPayload{
			Code:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: vErr.Field, Code: vErr.Rule, Message: message},
			},
		}
	}

	switch domainerr.Kind(err) {
	case domainerr.ErrUnauthenticated:
		return http.StatusUnauthorized, errorPayload{Code: "unauthenticated", Message: "unauthenticated"}
	case domainerr.ErrInactiveAccount:
		return http.StatusForbidden, errorPayload{Code: "inactive_account", Message: "account or establishment inactive"}
	case domainerr.ErrForbidden:
		return http.StatusForbidden, errorPayload{Code: codeOf(err, "forbidden"), Message: "forbidden"}
	case domainerr.ErrNotFound:
		return http.StatusNotFound, errorPayload{Code: codeOf(err, "not_found"), Message: "not found"}
	case domainerr.ErrInsufficientStock:
		return http.StatusConflict, errorPayload{Code: "insufficient_stock", Message: err.Error()}
	case domainerr.ErrInvalidOrderState:
		return http.StatusConflict, errorPayload{Code: codeOf(err, "invalid_order_state"), Message: "invalid order state"}
	case domainerr.ErrInvalidRange:
		return http.StatusUnprocessableEntity, errorPayload{Code: "invalid_range", Message: "start must not be after end"}
	case domainerr.ErrCannotReactivateExpired:
		return http.StatusUnprocessableEntity, errorPayload{Code: "cannot_reactivate_expired", Message: "subscription has ended"}
	default:
		return http.StatusInternalServerError, errorPayload{Code: "internal_error", Message: "internal server error"}
	}
}

// codeOf returns the specific sentinel message when err carries one on top
// of its kind, e.g. "order_not_found" rather than "not_found".
func codeOf(err error, fallback string) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errors.Unwrap(e) == domainerr.Kind(err) && e.Error() != "" {
			return e.Error()
		}
	}
	return fallback
}

func classifyErrorForLog(err error) string {
	if kind := domainerr.Kind(err); kind != nil {
		return kind.Error()
	}
	return "internal_error"
}
