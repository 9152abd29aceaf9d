// Package store holds the transmissions collection behind a single interface.
// Every backend delivers full snapshots of an unordered collection; callers
// order them for display.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/models"
)

// ErrNotFound is returned when no transmission has the requested id.
var ErrNotFound = errors.New("transmission not found")

// Snapshot is the entire collection at one instant, in no particular order.
type Snapshot []models.Message

// Store is the remote collaborator holding the shared transmissions.
type Store interface {
	// Push appends msg, filling in the id and timestamp the store assigns.
	Push(ctx context.Context, msg *models.Message) error

	// Get reads a single transmission.
	Get(ctx context.Context, id string) (*models.Message, error)

	// Remove deletes a single transmission. No ownership is checked.
	Remove(ctx context.Context, id string) error

	// All returns the current collection.
	All(ctx context.Context) ([]models.Message, error)

	// Watch streams a snapshot now and another after every change until ctx
	// ends. The channel holds only the newest snapshot; it is closed when the
	// subscription is lost.
	Watch(ctx context.Context) (<-chan Snapshot, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger zerolog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the clock used to stamp new transmissions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the backend logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newID() string {
	return ulid.Make().String()
}

// offer replaces any unread snapshot in out with s. out must have a buffer of
// one and a single writer.
func offer(out chan Snapshot, s Snapshot) {
	select {
	case <-out:
	default:
	}
	out <- s
}

// follow sends an initial snapshot and then a fresh one after every signal.
// The returned channel closes when ctx ends, signal closes or a fetch fails;
// cancel is then called to release whatever feeds signal.
func follow(ctx context.Context, cancel context.CancelFunc, signal <-chan struct{}, fetch func(context.Context) ([]models.Message, error), logger zerolog.Logger) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)
		defer cancel()

		send := func() bool {
			msgs, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(err).Msg("snapshot fetch failed")
				}
				return false
			}
			offer(out, Snapshot(msgs))
			return true
		}

		if !send() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signal:
				if !ok || !send() {
					return
				}
			}
		}
	}()

	return out
}

// notifier fans change signals out to local watchers.
type notifier struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan struct{}]struct{})}
}

// subscribe returns a signal channel that is dropped when ctx ends.
func (n *notifier) subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[ch]; ok {
			delete(n.subs, ch)
			close(ch)
		}
	}()

	return ch
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for ch := range n.subs {
		delete(n.subs, ch)
		close(ch)
	}
}

// merge forwards signals from a and b until ctx ends or either closes.
func merge(ctx context.Context, a, b <-chan struct{}) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			var ok bool
			select {
			case <-ctx.Done():
				return
			case _, ok = <-a:
			case _, ok = <-b:
			}
			if !ok {
				return
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out
}
