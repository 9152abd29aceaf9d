package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/christianmark/transmit/internal/models"
)

const postgresChannel = "transmissions_changed"

// PostgresStore handles PostgreSQL database operations.
// Changes are announced with NOTIFY so every watcher refreshes.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgres creates a new PostgreSQL store with a connection pool.
func NewPostgres(ctx context.Context, databaseURL string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool, opts: newOptions(opts)}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS transmissions (
		id TEXT PRIMARY KEY,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		user_agent TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Push(ctx context.Context, msg *models.Message) error {
	msg.ID = newID()
	// Postgres keeps microseconds; trim so the caller holds what was stored.
	msg.Timestamp = s.opts.now().UTC().Truncate(time.Microsecond)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO transmissions (id, author, text, created_at, user_agent)
			VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, msg.Author, msg.Text, msg.Timestamp, msg.UserAgent); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, postgresChannel, msg.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("push transmission: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Message, error) {
	msg := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, author, text, created_at, user_agent
		FROM transmissions WHERE id = $1
	`, id).Scan(&msg.ID, &msg.Author, &msg.Text, &msg.Timestamp, &msg.UserAgent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transmission: %w", err)
	}
	msg.Timestamp = msg.Timestamp.UTC()
	return msg, nil
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	var removed int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM transmissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		if removed == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, postgresChannel, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove transmission: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, author, text, created_at, user_agent FROM transmissions
	`)
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	defer rows.Close()

	result := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.Author, &msg.Text, &msg.Timestamp, &msg.UserAgent); err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		msg.Timestamp = msg.Timestamp.UTC()
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Watch holds one pooled connection for LISTEN until ctx ends or the
// connection fails.
func (s *PostgresStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+postgresChannel); err != nil {
		conn.Release()
		cancel()
		return nil, fmt.Errorf("listen %s: %w", postgresChannel, err)
	}

	signal := make(chan struct{}, 1)
	go func() {
		defer close(signal)
		defer func() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			conn.Exec(unlistenCtx, "UNLISTEN *")
			conn.Release()
		}()

		for {
			if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					s.opts.logger.Warn().Err(err).Msg("postgres listener lost")
				}
				return
			}
			select {
			case signal <- struct{}{}:
			default:
			}
		}
	}()

	return follow(ctx, cancel, signal, s.All, s.opts.logger), nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
