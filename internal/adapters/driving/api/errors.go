package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// statusFor maps a service error to an HTTP status and a short error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented, "not_implemented"
	case domain.IsUnavailable(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err as an errorResponse.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	id := requestID(r.Context())

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "request_id", id, "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	} else {
		logger.Debug("request rejected", "request_id", id, "status", status, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: code, RequestID: id, Message: message})
}
