// Package server provides the HTTP API for the course scheduler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/cab-scheduler/internal/fetch"
	"github.com/jonathan/cab-scheduler/internal/offerings"
	"github.com/jonathan/cab-scheduler/internal/preferences"
	"github.com/jonathan/cab-scheduler/internal/schedule"
	"github.com/jonathan/cab-scheduler/internal/server/middleware"
	"github.com/jonathan/cab-scheduler/internal/session"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	var generationErr *schedule.GenerationError
	var fetchErr *fetch.Error

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr),
		errors.Is(err, preferences.ErrInvalidPreference),
		errors.Is(err, offerings.ErrEmptyDepartment),
		errors.Is(err, session.ErrEmptyUserID):
		return http.StatusBadRequest
	case errors.Is(err, middleware.ErrNoUser):
		return http.StatusUnauthorized
	case errors.As(err, &generationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		// A newer request for the same session took over.
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, schedule.ErrGenerationFailed), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, preferences.ErrNotLoaded),
		errors.Is(err, preferences.ErrClosed),
		errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
