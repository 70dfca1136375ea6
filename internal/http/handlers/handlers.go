package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	nethttp "net/http"
	"strings"

	"github.com/gorilla/mux"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/liveview"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

const maxBodyBytes = 4 << 10

// LiveView is the part of liveview.View the HTTP surface needs.
type LiveView interface {
	Phase() liveview.Phase
	LiveGames() []domaingames.Game
	Game(id string) (domaingames.Game, bool)
	ConnectionState() domaingames.ConnectionState
	SetScore(ctx context.Context, id string, home, away int) error
	IncrementScore(ctx context.Context, id string, team domaingames.Team) error
	DecrementScore(ctx context.Context, id string, team domaingames.Team) error
}

// Handler wires HTTP routes to the live view.
type Handler struct {
	view   LiveView
	logger *slog.Logger
}

// NewHandler constructs a Handler with defaults.
func NewHandler(view LiveView, logger *slog.Logger) *Handler {
	return &Handler{view: view, logger: logger}
}

// Health reports the service health.
func (h *Handler) Health(w nethttp.ResponseWriter, r *nethttp.Request) {
	if err := r.Context().Err(); err != nil {
		writeError(w, r, nethttp.StatusServiceUnavailable, "shutting down", h.logger)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// Ready reports readiness for traffic: the view is subscribed and the channel connected.
func (h *Handler) Ready(w nethttp.ResponseWriter, r *nethttp.Request) {
	phase := h.view.Phase()
	conn := h.view.ConnectionState()
	if phase == liveview.PhaseSubscribed && conn.Status == domaingames.ConnectionConnected {
		writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ready"}, h.logger)
		return
	}
	msg := "not ready: " + string(phase)
	if phase == liveview.PhaseSubscribed {
		msg = "not ready: channel " + string(conn.Status)
	}
	writeError(w, r, nethttp.StatusServiceUnavailable, msg, h.logger)
}

// LiveGames returns the tracked in-progress games and the connection indicator.
func (h *Handler) LiveGames(w nethttp.ResponseWriter, r *nethttp.Request) {
	games := h.view.LiveGames()
	logging.Debug(loggerFromContext(r, h.logger), "served live games", logging.FieldCount, len(games))
	writeJSON(w, nethttp.StatusOK, domaingames.LiveResponse{
		Games:      games,
		Connection: h.view.ConnectionState(),
	}, h.logger)
}

// GameByID returns a specific live game if present.
func (h *Handler) GameByID(w nethttp.ResponseWriter, r *nethttp.Request) {
	id, ok := gameID(w, r, h.logger)
	if !ok {
		return
	}
	game, found := h.view.Game(id)
	if !found {
		writeError(w, r, nethttp.StatusNotFound, "game not found", h.logger)
		return
	}
	writeJSON(w, nethttp.StatusOK, game, h.logger)
}

// Connection returns the change channel indicator.
func (h *Handler) Connection(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, h.view.ConnectionState(), h.logger)
}

type scoreRequest struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// SetScore replaces both scores of a game.
func (h *Handler) SetScore(w nethttp.ResponseWriter, r *nethttp.Request) {
	id, ok := gameID(w, r, h.logger)
	if !ok {
		return
	}
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, nethttp.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if req.Home == nil || req.Away == nil {
		writeError(w, r, nethttp.StatusBadRequest, "home and away are required", h.logger)
		return
	}
	h.finishMutation(w, r, id, h.view.SetScore(r.Context(), id, *req.Home, *req.Away))
}

// IncrementScore adds one point for the team in the path.
func (h *Handler) IncrementScore(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.delta(w, r, h.view.IncrementScore)
}

// DecrementScore removes one point for the team in the path, never below zero.
func (h *Handler) DecrementScore(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.delta(w, r, h.view.DecrementScore)
}

func (h *Handler) delta(w nethttp.ResponseWriter, r *nethttp.Request, op func(context.Context, string, domaingames.Team) error) {
	id, ok := gameID(w, r, h.logger)
	if !ok {
		return
	}
	team, err := domaingames.ParseTeam(mux.Vars(r)["team"])
	if err != nil {
		writeError(w, r, nethttp.StatusBadRequest, err.Error(), h.logger)
		return
	}
	h.finishMutation(w, r, id, op(r.Context(), id, team))
}

// finishMutation answers with the game as the view now holds it. The value
// may still be optimistic; the channel confirms it asynchronously.
func (h *Handler) finishMutation(w nethttp.ResponseWriter, r *nethttp.Request, id string, err error) {
	if err != nil {
		status := statusForError(err)
		logger := loggerFromContext(r, h.logger)
		if status >= nethttp.StatusInternalServerError {
			logging.Warn(logger, "score mutation failed", logging.FieldGameID, id, logging.FieldError, err)
		}
		writeError(w, r, status, err.Error(), h.logger)
		return
	}
	game, ok := h.view.Game(id)
	if !ok {
		w.WriteHeader(nethttp.StatusNoContent)
		return
	}
	writeJSON(w, nethttp.StatusOK, game, h.logger)
}

func gameID(w nethttp.ResponseWriter, r *nethttp.Request, logger *slog.Logger) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" || strings.ContainsAny(id, " \t/") {
		writeError(w, r, nethttp.StatusBadRequest, "invalid game id", logger)
		return "", false
	}
	return id, true
}

func decodeBody(w nethttp.ResponseWriter, r *nethttp.Request, dest any) error {
	dec := json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func (h *Handler) NotFound(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeError(w, r, nethttp.StatusNotFound, "not found", h.logger)
}

func (h *Handler) MethodNotAllowed(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeError(w, r, nethttp.StatusMethodNotAllowed, "method not allowed", h.logger)
}
