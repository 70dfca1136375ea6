package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/coordinator"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/http/middleware"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/repository"
)

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error(logger, "failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, logger *slog.Logger) {
	reqID := middleware.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = r.Header.Get("X-Request-ID")
	}
	body := map[string]string{"error": message}
	if reqID != "" {
		body["requestId"] = reqID
	}
	writeJSON(w, status, body, logger)
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrInvalidTeam), errors.Is(err, coordinator.ErrInvalidScore):
		return http.StatusBadRequest
	// A rolled-back write stays a gateway failure even when the row vanished underneath it.
	case errors.Is(err, coordinator.ErrWriteFailed):
		return http.StatusBadGateway
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func loggerFromContext(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if r == nil {
		return fallback
	}
	return logging.FromContext(r.Context(), fallback)
}
