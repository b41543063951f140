// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marker-map/backend/internal/logging"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Result  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Result: "error", Code: code, Message: message}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message)
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field, message string) *APIError {
	err := newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", message)
	err.Field = field
	return err
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return newAPIError(http.StatusConflict, "DUPLICATE_POSITION", message)
}

// NewInternalError creates a 500 error. Causes are logged, never returned.
func NewInternalError(message string) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

// NewRateLimitError creates a 429 Too Many Requests error
func NewRateLimitError() *APIError {
	return newAPIError(http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down")
}

// fromHTTPError converts errors raised by Echo and its middleware
func fromHTTPError(he *echo.HTTPError) *APIError {
	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		message = m
	}

	code := "HTTP_ERROR"
	switch he.Code {
	case http.StatusNotFound:
		code = "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		code = "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		code = "PAYLOAD_TOO_LARGE"
	case http.StatusUnsupportedMediaType:
		code = "UNSUPPORTED_MEDIA_TYPE"
	case http.StatusTooManyRequests:
		code = "RATE_LIMITED"
	case http.StatusInternalServerError:
		code = "INTERNAL_ERROR"
		message = "an unexpected error occurred"
	}
	return newAPIError(he.Code, code, message)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		apiErr  *APIError
		httpErr *echo.HTTPError
	)
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = fromHTTPError(httpErr)
	default:
		logging.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		apiErr = NewInternalError("an unexpected error occurred")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = RespondWithError(c, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
