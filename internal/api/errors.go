package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

func fromDomain(err *domainerrors.Error) *APIError {
	return &APIError{
		status:  err.HTTPStatus(),
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	}
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *domainerrors.Error
			if errors.As(err, &domainErr) {
				return fromDomain(domainErr)
			}
		}

		apiErr := &APIError{
			status:  status,
			Code:    statusToCode(status),
			Message: message,
		}
		// Request validation failures carry one detail per field.
		if len(errs) > 0 && status == http.StatusUnprocessableEntity {
			details := make([]string, 0, len(errs))
			for _, err := range errs {
				details = append(details, err.Error())
			}
			apiErr.Details = details
		}
		return apiErr
	}
}

// toAPIError converts an error returned by a service into a response error.
// Unknown errors are logged and reported without their text.
func (s *Server) toAPIError(err error, op string) error {
	if err == nil {
		return nil
	}
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus() >= http.StatusInternalServerError {
			s.logger.Error(op+" failed", slog.String("error", err.Error()))
		}
		return fromDomain(domainErr)
	}

	s.logger.Error(op+" failed", slog.String("error", err.Error()))
	return &APIError{
		status:  http.StatusInternalServerError,
		Code:    string(domainerrors.CodeInternal),
		Message: op + " failed",
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusUnauthorized:
		return string(domainerrors.CodeUnauthorized)
	case http.StatusForbidden:
		return string(domainerrors.CodeForbidden)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	case http.StatusTooManyRequests:
		return string(domainerrors.CodeRateLimited)
	case http.StatusServiceUnavailable:
		return string(domainerrors.CodeStorageUnavailable)
	default:
		return string(domainerrors.CodeInternal)
	}
}
