package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/models"
)

// Poller detects changes in a store that cannot push them.
// It runs as a background goroutine, periodically fetching the collection and
// signalling whenever its fingerprint differs from the last one seen.
type Poller struct {
	list     func(context.Context) ([]models.Message, error)
	interval time.Duration
	logger   zerolog.Logger

	changed  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	last     uint64
}

// NewPoller creates a new poller.
// - list: fetches the whole collection
// - interval: how often to fetch (e.g., 2 seconds)
func NewPoller(list func(context.Context) ([]models.Message, error), interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		list:     list,
		interval: interval,
		logger:   logger,
		changed:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Changed signals after each detected change. It is closed when the poller
// stops, including after a failed fetch.
func (p *Poller) Changed() <-chan struct{} {
	return p.changed
}

// Prime records the current fingerprint without signalling.
func (p *Poller) Prime(ctx context.Context) error {
	msgs, err := p.list(ctx)
	if err != nil {
		return err
	}
	p.last = Fingerprint(msgs)
	return nil
}

// Start begins polling.
// This method runs in its own goroutine and should be called with 'go'.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Debug().Dur("interval", p.interval).Msg("poller started")
	defer close(p.changed)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.check(ctx); err != nil {
				if ctx.Err() == nil {
					p.logger.Warn().Err(err).Msg("poll failed")
				}
				return
			}
		case <-ctx.Done():
			return
		case <-p.stopChan:
			p.logger.Debug().Msg("poller stopped")
			return
		}
	}
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
}

func (p *Poller) check(ctx context.Context) error {
	msgs, err := p.list(ctx)
	if err != nil {
		return err
	}

	sum := Fingerprint(msgs)
	if sum == p.last {
		return nil
	}
	p.last = sum

	select {
	case p.changed <- struct{}{}:
	default:
	}
	return nil
}

// Fingerprint hashes the set of transmission ids, independent of order.
// Transmissions are never edited, so the id set identifies the collection.
func Fingerprint(msgs []models.Message) uint64 {
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	sort.Strings(ids)

	h := xxhash.New()
	for _, id := range ids {
		h.WriteString(id)
		h.Write([]byte{0})
	}
	return h.Sum64()
}
