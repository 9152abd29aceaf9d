package handlers

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/metrics"
)

// boardFor returns the calling device's board, refreshing its signature.
func (h *Handler) boardFor(r *http.Request) (*board.Board, string) {
	device := DeviceFrom(r.Context())
	b := h.boards.Board(device)
	b.SetUserAgent(r.UserAgent())
	return b, device
}

// renderPage writes the full page with an optional alert banner.
func (h *Handler) renderPage(w http.ResponseWriter, b *board.Board, status int, alert string) {
	data, err := b.Page(alert)
	if err != nil {
		h.logger.Error().Err(err).Msg("build page")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := h.html.Page(&buf, data); err != nil {
		h.logger.Error().Err(err).Msg("render page")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// fail re-renders the page with the alert for err.
func (h *Handler) fail(w http.ResponseWriter, b *board.Board, err error) {
	status, alert := h.alertFor(err)
	h.renderPage(w, b, status, alert)
}

func (h *Handler) alertFor(err error) (int, string) {
	status, alert := alertStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("action failed")
	}
	return status, alert
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Index handles GET /
// Shows the setup form or, when the device has a name, the transmissions.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	b, _ := h.boardFor(r)
	h.renderPage(w, b, http.StatusOK, "")
}

// SetUsername handles POST /session
func (h *Handler) SetUsername(w http.ResponseWriter, r *http.Request) {
	b, device := h.boardFor(r)

	name, err := b.SetUsername(r.FormValue("username"))
	if err != nil {
		h.fail(w, b, err)
		return
	}

	h.logger.Info().Str("device", device).Str("user", name).Msg("operative connected")
	redirectHome(w, r)
}

// Logout handles POST /session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	b, _ := h.boardFor(r)
	if err := b.Logout(); err != nil {
		h.fail(w, b, err)
		return
	}
	redirectHome(w, r)
}

// Post handles POST /transmissions
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	b, _ := h.boardFor(r)

	msg, err := b.Post(r.Context(), r.FormValue("text"))
	if err != nil {
		h.fail(w, b, err)
		return
	}
	if msg != nil {
		metrics.TransmissionsPosted.WithLabelValues("page").Inc()
	}
	redirectHome(w, r)
}

// ConfirmDelete handles GET /transmissions/{id}/delete
// Shows the confirmation panel.
func (h *Handler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	b, _ := h.boardFor(r)
	b.ConfirmDelete(chi.URLParam(r, "id"))
	h.renderPage(w, b, http.StatusOK, "")
}

// Delete handles POST /transmissions/{id}/delete
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	b, device := h.boardFor(r)
	id := chi.URLParam(r, "id")

	if err := b.Delete(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("device", device).Str("id", id).Msg("delete refused")
		h.fail(w, b, err)
		return
	}

	metrics.TransmissionsDeleted.WithLabelValues("page").Inc()
	redirectHome(w, r)
}

// CancelDelete handles POST /transmissions/delete/cancel
func (h *Handler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	b, _ := h.boardFor(r)
	b.CancelDelete()
	redirectHome(w, r)
}

// Live handles GET /ws, streaming redraws of the device's board.
// The board stays live for as long as the socket is open.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	device := DeviceFrom(r.Context())
	b, release := h.boards.Hold(device)
	b.SetUserAgent(r.UserAgent())
	h.ws.ServePage(w, r, b, device, release)
}
