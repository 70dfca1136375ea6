package handlers

import (
	"context"
	"log/slog"
	"net/http"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/http/requestutil"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

// StatusWriter changes a game's status in the repository.
type StatusWriter interface {
	SetStatus(ctx context.Context, id string, status domaingames.GameStatus) error
}

// AdminHandler exposes operator endpoints that write straight to the
// repository. Their effects reach views through the change channel.
type AdminHandler struct {
	repo   StatusWriter
	logger *slog.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(repo StatusWriter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{repo: repo, logger: logger}
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus moves a game to a new status, e.g. completed at the final whistle.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, r, http.StatusServiceUnavailable, "status writer not configured", h.logger)
		return
	}
	id, ok := gameID(w, r, h.logger)
	if !ok {
		return
	}
	logger := loggerFromContext(r, h.logger)

	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", logger)
		return
	}
	status, err := domaingames.ParseStatus(req.Status)
	if err != nil {
		logging.Warn(logger, "admin status invalid", slog.String("status", req.Status))
		writeError(w, r, http.StatusBadRequest, err.Error(), logger)
		return
	}

	if err := h.repo.SetStatus(r.Context(), id, status); err != nil {
		code := statusForError(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		logging.Warn(logger, "admin status write failed",
			logging.FieldGameID, id,
			logging.FieldError, err,
			slog.String("client_ip", requestutil.ClientIP(r)),
		)
		msg := "failed to update status"
		if code == http.StatusNotFound {
			msg = "game not found"
		}
		writeError(w, r, code, msg, logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": string(status),
	}, logger)
	logging.Info(logger, "admin status written", logging.FieldGameID, id, slog.String("status", string(status)))
}
