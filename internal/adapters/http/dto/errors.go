// Package dto holds the JSON shapes of the HTTP API and the mapping from
// errors to responses.
package dto

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/reqctx-service/internal/domain"
	"github.com/jsamuelsen/reqctx-service/internal/platform/logging"
)

// Gin context keys shared with the middleware package.
const (
	ContextKeyRequestID     = "request_id"
	ContextKeyCorrelationID = "correlation_id"
)

// Machine-readable error codes.
const (
	ErrorCodeNotFound    = "NOT_FOUND"
	ErrorCodeValidation  = "VALIDATION_ERROR"
	ErrorCodeUnavailable = "SERVICE_UNAVAILABLE"
	ErrorCodeInternal    = "INTERNAL_ERROR"
	ErrorCodeTimeout     = "TIMEOUT"
	ErrorCodeBadRequest  = "BAD_REQUEST"
)

var codeStatus = map[string]int{
	ErrorCodeNotFound:    http.StatusNotFound,
	ErrorCodeValidation:  http.StatusBadRequest,
	ErrorCodeBadRequest:  http.StatusBadRequest,
	ErrorCodeUnavailable: http.StatusServiceUnavailable,
	ErrorCodeTimeout:     http.StatusGatewayTimeout,
	ErrorCodeInternal:    http.StatusInternalServerError,
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error         ErrorDetail `json:"error"`
	TraceID       string      `json:"traceId,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
}

// ErrorDetail carries the code, a message, and per-field problems for
// validation failures.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewErrorResponse builds an envelope. Details is optional.
func NewErrorResponse(code, message string, details ...map[string]string) *ErrorResponse {
	resp := &ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
	if len(details) > 0 {
		resp.Error.Details = details[0]
	}

	return resp
}

// HTTPStatusFromCode returns the status for code, 500 if unknown.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}

	return http.StatusInternalServerError
}

// MapDomainError picks the status and envelope for err. Errors outside the
// domain vocabulary become a 500 with a generic message.
func MapDomainError(err error) (int, *ErrorResponse) {
	var (
		code    string
		message = err.Error()
		details map[string]string
	)

	var fieldErr *domain.ValidationError

	switch {
	case domain.IsNotFound(err):
		code = ErrorCodeNotFound
	case errors.As(err, &fieldErr) && fieldErr.Field != "":
		code, message = ErrorCodeValidation, "request validation failed"
		details = map[string]string{fieldErr.Field: fieldErr.Message}
	case domain.IsValidation(err):
		code = ErrorCodeValidation
	case domain.IsUnavailable(err):
		code = ErrorCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code, message = ErrorCodeTimeout, "request timed out"
	default:
		code, message = ErrorCodeInternal, "an internal error occurred"
	}

	return HTTPStatusFromCode(code), NewErrorResponse(code, message, details)
}

// GetTraceID returns the request span's trace ID, or the request ID when
// there is no valid span.
func GetTraceID(c *gin.Context) string {
	if c.Request != nil {
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			return sc.TraceID().String()
		}
	}

	return c.GetString(ContextKeyRequestID)
}

func decorate(c *gin.Context, resp *ErrorResponse) *ErrorResponse {
	resp.TraceID = GetTraceID(c)
	resp.CorrelationID = c.GetString(ContextKeyCorrelationID)

	return resp
}

// HandleError writes the response for a non-nil err. 500s are logged with the
// real error, which the client never sees.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	status, resp := MapDomainError(err)

	if status == http.StatusInternalServerError {
		ctx := c.Request.Context()
		logging.FromContext(ctx).ErrorContext(ctx, "internal error", slog.Any("error", err))
	}

	c.JSON(status, decorate(c, resp))
}

// RespondWithValidationErrors writes a 400 listing fieldErrors.
func RespondWithValidationErrors(c *gin.Context, fieldErrors map[string]string) {
	c.JSON(http.StatusBadRequest,
		decorate(c, NewErrorResponse(ErrorCodeValidation, "request validation failed", fieldErrors)))
}

// AbortWithErrorCode stops the chain and writes an envelope for code.
func AbortWithErrorCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(HTTPStatusFromCode(code), decorate(c, NewErrorResponse(code, message)))
}
