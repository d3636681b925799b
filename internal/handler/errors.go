package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"imghost/internal/logger"
)

// Common error messages for clients (no internal details)
const (
	ErrMsgInternalError    = "An internal error occurred"
	ErrMsgDatabaseError    = "A database error occurred"
	ErrMsgStorageError     = "A storage backend error occurred"
	ErrMsgBadRequest       = "Invalid request"
	ErrMsgValidationFailed = "Validation failed"
)

// ErrorResponse is the standard error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// internalError logs the actual error and returns a generic message to the client
func internalError(c echo.Context, operation string, err error) error {
	logger.HTTP.Error().Err(err).Str("op", operation).Msg("internal error")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   ErrMsgInternalError,
		Details: err.Error(),
	})
}

// databaseError logs the database error and returns a generic message
func databaseError(c echo.Context, operation string, err error) error {
	logger.HTTP.Error().Err(err).Str("op", operation).Msg("database error")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   ErrMsgDatabaseError,
		Details: err.Error(),
	})
}

// storageError is returned when every backend refused an operation.
func storageError(c echo.Context, operation string, err error) error {
	logger.HTTP.Error().Err(err).Str("op", operation).Msg("storage error")
	return c.JSON(http.StatusBadGateway, ErrorResponse{
		Error:   ErrMsgStorageError,
		Details: err.Error(),
	})
}

// notFoundError returns a not found error
func notFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error": resource + " not found",
	})
}

// badRequestError returns a bad request error with a safe message
func badRequestError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": message,
	})
}

// validationError returns a validation error with field details
func validationError(c echo.Context, field, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": field + " " + message,
		"field": field,
	})
}

func unavailableError(c echo.Context, message string) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]string{
		"error": message,
	})
}

// successMessage returns a success response with a message
func successMessage(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": message,
	})
}

// createdResponse returns a 201 Created response with the created resource
func createdResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, data)
}
