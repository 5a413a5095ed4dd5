// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/conversion"
	"github.com/akabaki/saas-ui/internal/organization"
	"github.com/akabaki/saas-ui/internal/settings"
	"github.com/akabaki/saas-ui/internal/storage"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ShowErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

// ShowErrorDetails exposes unexpected error text in responses. Set from the
// configured log level at startup.
var ShowErrorDetails = true

// mapDomainError translates sentinel errors from the lower layers.
func mapDomainError(err error, resource, id string) *APIError {
	switch {
	case errors.Is(err, conversion.ErrNoFiles):
		return NewBadRequestError("no files selected", err)
	case errors.Is(err, conversion.ErrBatchInProgress):
		return NewConflictError(err.Error())
	case errors.Is(err, conversion.ErrJobNotFound),
		errors.Is(err, organization.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError(resource, id)
	case errors.Is(err, conversion.ErrNotDownloadable):
		return NewConflictError(err.Error())
	case errors.Is(err, conversion.ErrInvalidFormat):
		return NewValidationError("format")
	case errors.Is(err, conversion.ErrInvalidIndex):
		return NewBadRequestError("file index out of range", err)
	case errors.Is(err, organization.ErrValidation),
		errors.Is(err, settings.ErrInvalid):
		apiErr := NewBadRequestError("validation failed", err)
		apiErr.Code = "VALIDATION_ERROR"
		return apiErr
	default:
		return NewInternalError("request failed", err)
	}
}
