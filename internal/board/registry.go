package board

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/session"
)

// Factory builds a board around a device's session.
type Factory func(sess *session.Store) *Board

// Registry keeps one board per device token. Boards expire after a period
// without use unless a live page holds them; the device's session survives
// in the KV.
type Registry struct {
	cache   *ttlcache.Cache[string, *Board]
	kv      session.KV
	factory Factory
	logger  zerolog.Logger

	// mu orders board creation against Apply so new boards start from the
	// newest state.
	mu        sync.Mutex
	latest    []models.Message
	connected bool

	// held counts open pages per device; a held board outlives its cache entry.
	held map[string]*hold
}

type hold struct {
	board *Board
	refs  int
}

// NewRegistry creates a registry whose boards idle out after ttl. The
// expiry worker stops when ctx ends.
func NewRegistry(ctx context.Context, kv session.KV, ttl time.Duration, factory Factory, logger zerolog.Logger) *Registry {
	cache := ttlcache.New[string, *Board](
		// a board nobody has looked at for ttl is dropped
		ttlcache.WithTTL[string, *Board](ttl),
	)

	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Board]) {
		logger.Debug().Str("device", item.Key()).Int("reason", int(reason)).Msg("board evicted")
	})

	go cache.Start()

	go func() {
		<-ctx.Done()
		cache.Stop()
	}()

	return &Registry{
		cache:   cache,
		kv:      kv,
		factory: factory,
		logger:  logger,
		held:    make(map[string]*hold),
	}
}

// Board returns the device's board, creating it on first use.
func (r *Registry) Board(device string) *Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boardLocked(device)
}

// Hold returns the device's board and keeps it live until release is called,
// however long the cache TTL. Release is safe to call more than once.
func (r *Registry) Hold(device string) (*Board, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.boardLocked(device)
	h, ok := r.held[device]
	if !ok {
		h = &hold{board: b}
		r.held[device] = h
	}
	h.refs++

	var once sync.Once
	return b, func() {
		once.Do(func() { r.release(device) })
	}
}

func (r *Registry) release(device string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.held[device]
	if !ok {
		return
	}
	h.refs--
	if h.refs > 0 {
		return
	}
	delete(r.held, device)
	// idle from now on
	r.cache.Set(device, h.board, ttlcache.DefaultTTL)
}

func (r *Registry) boardLocked(device string) *Board {
	if h, ok := r.held[device]; ok {
		r.cache.Set(device, h.board, ttlcache.DefaultTTL)
		return h.board
	}
	if item := r.cache.Get(device); item != nil {
		return item.Value()
	}

	b := r.factory(session.New(session.Prefixed(r.kv, device+":")))
	b.seed(r.latest, r.connected)
	r.cache.Set(device, b, ttlcache.DefaultTTL)
	r.logger.Debug().Str("device", device).Msg("board created")
	return b
}

// Apply hands ev to every live board and remembers it for boards created later.
func (r *Registry) Apply(ev feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case feed.EventSnapshot:
		r.latest = ev.Messages
	case feed.EventConnected:
		r.connected = true
	case feed.EventDisconnected:
		r.connected = false
	}

	seen := make(map[*Board]bool, len(r.held))
	for _, h := range r.held {
		seen[h.board] = true
		h.board.Apply(ev)
	}
	for _, item := range r.cache.Items() {
		if b := item.Value(); !seen[b] {
			seen[b] = true
			b.Apply(ev)
		}
	}
}

// Len returns the number of boards in the cache. Held boards whose entry has
// expired are not counted.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// seed sets the starting state of a fresh board without announcing anything.
func (b *Board) seed(msgs []models.Message, connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = msgs
	b.connected = connected
}
