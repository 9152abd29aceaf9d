package store

import (
	"context"
	"sync"

	"github.com/christianmark/transmit/internal/models"
)

// MemoryStore keeps transmissions in process memory.
// Everything is lost on restart, which suits development and tests.
type MemoryStore struct {
	// messages stores transmissions by id
	messages map[string]models.Message
	mu       sync.RWMutex

	changes *notifier
	opts    options
}

// NewMemory creates an empty MemoryStore.
func NewMemory(opts ...Option) *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]models.Message),
		changes:  newNotifier(),
		opts:     newOptions(opts),
	}
}

// Push stores a new transmission and notifies watchers.
func (s *MemoryStore) Push(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	msg.ID = newID()
	msg.Timestamp = s.opts.now().UTC()
	s.messages[msg.ID] = *msg
	s.mu.Unlock()

	s.changes.notify()
	return nil
}

// Get returns a copy of the transmission with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

// Remove deletes a transmission and notifies watchers.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.messages[id]
	delete(s.messages, id)
	count := len(s.messages)
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.opts.logger.Debug().Str("id", id).Int("remaining", count).Msg("transmission removed")
	s.changes.notify()
	return nil
}

// All returns every transmission in map order.
func (s *MemoryStore) All(ctx context.Context) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		result = append(result, msg)
	}
	return result, nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	return follow(ctx, cancel, s.changes.subscribe(ctx), s.All, s.opts.logger), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ends every active watch.
func (s *MemoryStore) Close() error {
	s.changes.close()
	return nil
}

// Count returns the number of stored transmissions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

var _ Store = (*MemoryStore)(nil)
