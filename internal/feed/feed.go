// Package feed turns a store's snapshot stream into a restartable event stream.
package feed

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/store"
)

// Kind tells what an Event carries.
type Kind int

const (
	EventSnapshot Kind = iota + 1
	EventConnected
	EventDisconnected
)

func (k Kind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one item of the feed. Messages is set only for snapshots and is
// always in display order.
type Event struct {
	Kind     Kind
	Messages []models.Message
}

// Source is the part of a store the feed needs.
type Source interface {
	Watch(ctx context.Context) (<-chan store.Snapshot, error)
}

// Option configures Subscribe.
type Option func(*subscriber)

// WithRetry sets how long to wait before re-watching after a lost subscription.
func WithRetry(d time.Duration) Option {
	return func(s *subscriber) { s.retry = d }
}

// WithLogger sets the logger used for connection changes.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *subscriber) { s.logger = logger }
}

type subscriber struct {
	source Source
	retry  time.Duration
	logger zerolog.Logger
	out    chan Event
}

// Subscribe keeps one standing subscription to source for the lifetime of
// ctx. Whenever the source's watch fails or ends, an EventDisconnected is
// emitted and the watch is retried. The returned channel is closed only after
// ctx ends.
func Subscribe(ctx context.Context, source Source, opts ...Option) <-chan Event {
	s := &subscriber{
		source: source,
		retry:  2 * time.Second,
		logger: zerolog.Nop(),
		out:    make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run(ctx)
	return s.out
}

func (s *subscriber) run(ctx context.Context) {
	defer close(s.out)

	// connected starts false so the first successful watch is announced.
	connected := false
	for {
		snapshots, err := s.source.Watch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Dur("retry", s.retry).Msg("watch failed")
		} else {
			s.logger.Debug().Msg("watching transmissions")
			if !s.consume(ctx, snapshots, &connected) {
				return
			}
			s.logger.Warn().Dur("retry", s.retry).Msg("watch ended")
		}

		if connected {
			connected = false
			if !s.emit(ctx, Event{Kind: EventDisconnected}) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}

// consume forwards snapshots until the watch ends. It returns false once ctx is done.
func (s *subscriber) consume(ctx context.Context, snapshots <-chan store.Snapshot, connected *bool) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-snapshots:
			if !ok {
				return ctx.Err() == nil
			}
			if !*connected {
				*connected = true
				if !s.emit(ctx, Event{Kind: EventConnected}) {
					return false
				}
			}
			if !s.emit(ctx, Event{Kind: EventSnapshot, Messages: Order(snap)}) {
				return false
			}
		}
	}
}

func (s *subscriber) emit(ctx context.Context, ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Order returns a copy of snap sorted ascending by timestamp, ties broken by id.
// The store's own ordering is never trusted.
func Order(snap []models.Message) []models.Message {
	msgs := make([]models.Message, len(snap))
	copy(msgs, snap)
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}
