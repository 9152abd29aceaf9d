package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/christianmark/transmit/internal/metrics"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/store"
)

// maxBodySize bounds API request bodies.
const maxBodySize = 8 * 1024

// ListTransmissions handles GET /api/transmissions
// Returns the whole collection in no particular order.
func (h *Handler) ListTransmissions(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list transmissions")
		writeError(w, http.StatusBadGateway, models.RemoteAlert(err))
		return
	}

	writeJSON(w, http.StatusOK, models.GetMessagesResponse{Transmissions: msgs})
}

// PostTransmission handles POST /api/transmissions
// The store assigns the id and timestamp. Without a user_agent field the
// request's User-Agent header is used.
func (h *Handler) PostTransmission(w http.ResponseWriter, r *http.Request) {
	var req models.PostMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	msg := &models.Message{
		Author:    req.Author,
		Text:      strings.TrimSpace(req.Text),
		UserAgent: models.Signature(ua),
	}
	if err := h.store.Push(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Msg("push transmission")
		writeError(w, http.StatusBadGateway, models.RemoteAlert(err))
		return
	}

	metrics.TransmissionsPosted.WithLabelValues("api").Inc()
	h.logger.Info().Str("id", msg.ID).Str("author", msg.Author).Msg("transmission posted")
	writeJSON(w, http.StatusCreated, msg)
}

// GetTransmission handles GET /api/transmissions/{id}
func (h *Handler) GetTransmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, models.RemoteAlert(err))
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// DeleteTransmission handles DELETE /api/transmissions/{id}
// Like the backing store, this endpoint checks no ownership: anyone who can
// reach it can delete any transmission.
func (h *Handler) DeleteTransmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Remove(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, models.RemoteAlert(err))
		return
	}

	metrics.TransmissionsDeleted.WithLabelValues("api").Inc()
	h.logger.Info().Str("id", id).Msg("transmission removed via api")
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/transmissions/stream
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	h.ws.ServeStream(w, r)
}
