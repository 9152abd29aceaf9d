package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/christianmark/transmit/internal/models"
)

// SQLiteStore handles SQLite database operations.
// Writes from this process wake watchers immediately; writes from other
// processes sharing the file are picked up by polling.
type SQLiteStore struct {
	db       *sql.DB
	interval time.Duration
	changes  *notifier
	opts     options
}

// NewSQLite opens (creating if needed) the database at dbPath.
// If dbPath is empty, defaults to "./data/transmit.db"
func NewSQLite(ctx context.Context, dbPath string, pollInterval time.Duration, opts ...Option) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/transmit.db"
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:       db,
		interval: pollInterval,
		changes:  newNotifier(),
		opts:     newOptions(opts),
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS transmissions (
		id TEXT PRIMARY KEY,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TEXT NOT NULL,
		user_agent TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Push(ctx context.Context, msg *models.Message) error {
	msg.ID = newID()
	msg.Timestamp = s.opts.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transmissions (id, author, text, created_at, user_agent)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.Author, msg.Text, msg.Timestamp.Format(time.RFC3339Nano), msg.UserAgent)
	if err != nil {
		return fmt.Errorf("push transmission: %w", err)
	}

	s.changes.notify()
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, author, text, created_at, user_agent
		FROM transmissions WHERE id = ?
	`, id)

	msg, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transmission: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transmissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove transmission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove transmission: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.changes.notify()
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, text, created_at, user_agent FROM transmissions
	`)
	if err != nil {
		return nil, fmt.Errorf("list transmissions: %w", err)
	}
	defer rows.Close()

	result := []models.Message{}
	for rows.Next() {
		msg, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	poller := NewPoller(s.All, s.interval, s.opts.logger)
	if err := poller.Prime(ctx); err != nil {
		cancel()
		return nil, err
	}
	go poller.Start(ctx)

	signal := merge(ctx, s.changes.subscribe(ctx), poller.Changed())
	return follow(ctx, cancel, signal, s.All, s.opts.logger), nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.changes.close()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var createdAt string
	if err := row.Scan(&msg.ID, &msg.Author, &msg.Text, &createdAt, &msg.UserAgent); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	msg.Timestamp = ts.UTC()
	return &msg, nil
}

var _ Store = (*SQLiteStore)(nil)
