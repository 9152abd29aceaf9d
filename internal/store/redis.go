package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/christianmark/transmit/internal/models"
)

const (
	redisHashKey = "transmissions"
	redisChannel = "transmissions:changed"
)

// RedisStore keeps transmissions in a Redis hash keyed by id and announces
// every change on a pub/sub channel.
type RedisStore struct {
	client *redis.Client
	owned  bool
	opts   options
}

// NewRedis wraps an existing client. The caller keeps ownership of it.
func NewRedis(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: newOptions(opts)}
}

// OpenRedis connects to the server at url and verifies it responds.
func OpenRedis(ctx context.Context, url string, opts ...Option) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := NewRedis(client, opts...)
	s.owned = true
	return s, nil
}

// Client exposes the underlying connection for components sharing it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Push(ctx context.Context, msg *models.Message) error {
	msg.ID = newID()
	msg.Timestamp = s.opts.now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode transmission: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, redisHashKey, msg.ID, data)
	pipe.Publish(ctx, redisChannel, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push transmission: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := s.client.HGet(ctx, redisHashKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transmission: %w", err)
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode transmission %s: %w", id, err)
	}
	return &msg, nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	n, err := s.client.HDel(ctx, redisHashKey, id).Result()
	if err != nil {
		return fmt.Errorf("remove transmission: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := s.client.Publish(ctx, redisChannel, id).Err(); err != nil {
		return fmt.Errorf("announce removal: %w", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	values, err := s.client.HGetAll(ctx, redisHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}

	result := make([]models.Message, 0, len(values))
	for id, data := range values {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			s.opts.logger.Warn().Err(err).Str("id", id).Msg("skipping unreadable transmission")
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}

// Watch subscribes to the change channel before taking the first snapshot so
// no change between the two is missed.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := s.client.Subscribe(ctx, redisChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", redisChannel, err)
	}

	signal := make(chan struct{}, 1)
	go func() {
		defer close(signal)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case signal <- struct{}{}:
				default:
				}
			}
		}
	}()

	return follow(ctx, cancel, signal, s.All, s.opts.logger), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases the connection if OpenRedis created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
