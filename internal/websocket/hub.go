package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/metrics"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/render"
)

// Reducer receives every feed event before clients are redrawn.
type Reducer interface {
	Apply(ev feed.Event)
}

// Hub maintains the set of active clients and pushes the feed to them.
// Page clients get their board's rendered frame; stream clients get the raw
// snapshot.
type Hub struct {
	// clients is the set of registered clients, owned by Run
	clients map[*Client]bool

	// register requests from clients
	register chan *Client

	// unregister requests from clients
	unregister chan *Client

	// events is the upstream feed subscription
	events <-chan feed.Event

	// boards is updated with each event before frames are built
	boards Reducer

	// done is closed when Run returns
	done chan struct{}

	// mutex for the state read by other goroutines
	mu          sync.RWMutex
	latest      []models.Message
	hasSnapshot bool
	connected   bool
	count       int

	logger zerolog.Logger
}

// pageFrame is a redraw sent to page clients.
type pageFrame struct {
	Type string `json:"type"`
	render.Frame
}

// NewHub creates a new Hub instance fed by events. boards may be nil.
func NewHub(events <-chan feed.Event, boards Reducer, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     events,
		boards:     boards,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main event loop until ctx ends.
// This should be called in a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev, ok := <-h.events:
			if !ok {
				h.events = nil
				continue
			}
			h.handleEvent(ev)

		case <-ctx.Done():
			for client := range h.clients {
				h.unregisterClient(client)
			}
			return
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Connected reports whether the upstream feed is connected.
func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Latest returns the newest ordered snapshot, if one has arrived.
func (h *Hub) Latest() ([]models.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.hasSnapshot
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// registerClient adds a client and sends it the current state
func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true
	h.setCount()
	metrics.WebSocketClients.WithLabelValues(client.kind()).Inc()

	h.logger.Debug().
		Str("client", client.ID).
		Str("kind", client.kind()).
		Int("total", len(h.clients)).
		Msg("client joined")

	var payload []byte
	if client.board != nil {
		payload = h.frameFor(client.board)
	} else if msgs, ok := h.Latest(); ok {
		payload = h.snapshotPayload(msgs)
	}
	if payload != nil {
		h.deliver(client, payload)
	}
}

// unregisterClient removes a client and closes its send channel
func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if client.release != nil {
		client.release()
	}
	h.setCount()
	metrics.WebSocketClients.WithLabelValues(client.kind()).Dec()

	h.logger.Debug().
		Str("client", client.ID).
		Int("remaining", len(h.clients)).
		Msg("client left")
}

func (h *Hub) handleEvent(ev feed.Event) {
	// boards first, so anything that sees the hub's new state also sees theirs
	if h.boards != nil {
		h.boards.Apply(ev)
	}

	h.mu.Lock()
	switch ev.Kind {
	case feed.EventSnapshot:
		h.latest = ev.Messages
		h.hasSnapshot = true
		metrics.SnapshotsDelivered.Inc()
	case feed.EventConnected:
		h.connected = true
		metrics.FeedConnected.Set(1)
	case feed.EventDisconnected:
		h.connected = false
		metrics.FeedConnected.Set(0)
	}
	h.mu.Unlock()

	h.logger.Debug().Stringer("kind", ev.Kind).Int("messages", len(ev.Messages)).Msg("feed event")

	var snapshot []byte
	if ev.Kind == feed.EventSnapshot {
		snapshot = h.snapshotPayload(ev.Messages)
	}

	// boards shared by several tabs render once
	frames := make(map[*board.Board][]byte)
	for client := range h.clients {
		var payload []byte
		if client.board != nil {
			var ok bool
			if payload, ok = frames[client.board]; !ok {
				payload = h.frameFor(client.board)
				frames[client.board] = payload
			}
		} else {
			payload = snapshot
		}
		if payload != nil {
			h.deliver(client, payload)
		}
	}
}

// deliver queues payload, dropping the client when its buffer is full
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.logger.Warn().Str("client", client.ID).Msg("client too slow, dropping")
		h.unregisterClient(client)
	}
}

func (h *Hub) frameFor(b *board.Board) []byte {
	frame, err := b.Frame()
	if err != nil {
		h.logger.Error().Err(err).Msg("render frame")
		return nil
	}
	data, err := json.Marshal(pageFrame{Type: models.FrameRender, Frame: frame})
	if err != nil {
		h.logger.Error().Err(err).Msg("encode frame")
		return nil
	}
	return data
}

func (h *Hub) snapshotPayload(msgs []models.Message) []byte {
	if msgs == nil {
		msgs = []models.Message{}
	}
	data, err := json.Marshal(models.SnapshotFrame{Type: models.FrameSnapshot, Transmissions: msgs})
	if err != nil {
		h.logger.Error().Err(err).Msg("encode snapshot")
		return nil
	}
	return data
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}
