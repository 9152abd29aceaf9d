package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/metrics"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/render"
	"github.com/christianmark/transmit/internal/store"
	"github.com/christianmark/transmit/internal/websocket"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store   store.Store
	boards  *board.Registry
	hub     *websocket.Hub
	ws      *websocket.Handler
	html    *render.HTML
	logger  zerolog.Logger
	version string
}

// NewHandler creates a new Handler instance.
func NewHandler(st store.Store, boards *board.Registry, hub *websocket.Hub, html *render.HTML, logger zerolog.Logger, version string) *Handler {
	return &Handler{
		store:   st,
		boards:  boards,
		hub:     hub,
		ws:      websocket.NewHandler(hub, logger),
		html:    html,
		logger:  logger,
		version: version,
	}
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError sends a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, err error) {
	resp := models.ErrorResponse{Error: err.Error()}
	var alert *models.Alert
	if errors.As(err, &alert) {
		resp.Kind = alert.Kind.String()
	}
	writeJSON(w, status, resp)
}

// alertStatus maps a failed action to its HTTP status and user-visible text.
// Errors that are not alerts are hidden behind a generic message.
func alertStatus(err error) (int, string) {
	var alert *models.Alert
	if !errors.As(err, &alert) {
		return http.StatusInternalServerError, "ERROR: INTERNAL FAILURE"
	}

	metrics.ActionsRejected.WithLabelValues(alert.Kind.String()).Inc()
	switch alert.Kind {
	case models.KindValidation:
		return http.StatusUnprocessableEntity, alert.Error()
	case models.KindUnauthorized:
		return http.StatusForbidden, alert.Error()
	case models.KindSessionExpired:
		return http.StatusUnauthorized, alert.Error()
	default:
		return http.StatusBadGateway, alert.Error()
	}
}
