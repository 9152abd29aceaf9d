package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/config"
)

// Open creates the backend selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("store", cfg.Store).Logger()
	opts := []Option{WithLogger(logger)}

	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, transmissions are lost on restart")
		return NewMemory(opts...), nil
	case config.StoreRedis:
		s, err := OpenRedis(ctx, cfg.RedisURL, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := NewPostgres(ctx, cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		s, err := NewSQLite(ctx, cfg.SQLitePath, cfg.PollInterval, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSupabase:
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable, cfg.PollInterval, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
