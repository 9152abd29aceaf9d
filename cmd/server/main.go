package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/config"
	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/handlers"
	"github.com/christianmark/transmit/internal/logging"
	"github.com/christianmark/transmit/internal/render"
	"github.com/christianmark/transmit/internal/session"
	"github.com/christianmark/transmit/internal/store"
	"github.com/christianmark/transmit/internal/websocket"
)

var version = "dev"

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(true)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}

// run serves until ctx ends, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	app, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     app.handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.ServerPort).
			Str("env", cfg.Env).
			Strs("cors_origins", cfg.CORSOrigins).
			Msg("starting transmit server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// server is the assembled service: store, viewer boards, live feed and router.
type server struct {
	handler  http.Handler
	store    store.Store
	registry *board.Registry
	hub      *websocket.Hub

	cancel  context.CancelFunc
	closeKV func()
}

// newServer wires every component. The feed, hub and board cache run until
// ctx ends or Close is called.
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	ctx, cancel := context.WithCancel(ctx)

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("store connection failed: %w", err)
	}
	logger.Info().Str("store", cfg.Store).Msg("store ready")

	html, err := render.NewHTML(cfg.Location)
	if err != nil {
		cancel()
		st.Close()
		return nil, fmt.Errorf("templates failed to load: %w", err)
	}

	kv, closeKV, err := sessionKV(ctx, cfg, st, logger)
	if err != nil {
		cancel()
		st.Close()
		return nil, err
	}

	registry := board.NewRegistry(ctx, kv, cfg.BoardIdleTTL, func(sess *session.Store) *board.Board {
		return board.New(st, sess,
			board.WithHTML(html),
			board.WithLogger(logger.With().Str("component", "board").Logger()),
		)
	}, logger)

	events := feed.Subscribe(ctx, st, feed.WithLogger(logger.With().Str("component", "feed").Logger()))
	hub := websocket.NewHub(events, registry, logger.With().Str("component", "hub").Logger())
	go hub.Run(ctx)

	h := handlers.NewHandler(st, registry, hub, html, logger, version)

	return &server{
		handler:  handlers.NewRouter(h, logger, cfg.CORSOrigins),
		store:    st,
		registry: registry,
		hub:      hub,
		cancel:   cancel,
		closeKV:  closeKV,
	}, nil
}

// Close stops the background workers and releases the store.
func (s *server) Close() error {
	s.cancel()
	s.closeKV()
	return s.store.Close()
}

// sessionKV picks where viewer names live. A Redis store shares its client,
// a REDIS_URL alone gets its own, anything else keeps names in memory.
func sessionKV(ctx context.Context, cfg *config.Config, st store.Store, logger zerolog.Logger) (session.KV, func(), error) {
	const prefix = "transmit:device:"

	if rs, ok := st.(*store.RedisStore); ok {
		return session.NewRedisKV(rs.Client(), prefix), func() {}, nil
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info().Msg("viewer sessions stored in Redis")
		return session.NewRedisKV(client, prefix), func() { client.Close() }, nil
	}

	return session.NewMemoryKV(), func() {}, nil
}
