// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrDuplicate           = errors.New("duplicate entry")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyConverted    = errors.New("estimate already converted to invoice")
	ErrRecomputeFailure    = errors.New("balance recompute failed")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)

const internalMessage = "internal server error"

// StatusFor reports the HTTP status a domain error maps to.
func StatusFor(err error) int {
	// A recompute failure may wrap NotFound for a missing parent; it is still
	// a server-side failure.
	switch {
	case errors.Is(err, ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRecomputeFailure):
		return http.StatusInternalServerError
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyConverted), errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses. Server-side failures are
// logged and answered with a fixed message.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, status, http.StatusText(status), internalMessage)
		return
	}
	Problem(w, status, http.StatusText(status), err.Error())
}
