package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin (CORS handled by middleware)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub    *Hub
	logger zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// ServePage upgrades a page connection that receives b's rendered frames.
// release, when set, runs once the connection is gone.
func (h *Handler) ServePage(w http.ResponseWriter, r *http.Request, b *board.Board, id string, release func()) {
	h.serve(w, r, b, id, release)
}

// ServeStream handles GET /api/transmissions/stream
// Each change delivers the full, unordered collection.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, nil, r.RemoteAddr, nil)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, b *board.Board, id string, release func()) {
	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		if release != nil {
			release()
		}
		return
	}

	// Create client and register with hub
	client := NewClient(h.hub, conn, b, id, h.logger)
	client.release = release
	if !h.hub.Register(client) {
		conn.Close()
		if release != nil {
			release()
		}
		return
	}

	// Start read/write pumps in separate goroutines
	go client.WritePump()
	go client.ReadPump()
}
