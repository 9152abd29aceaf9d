package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends understood by the server.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreSupabase = "supabase"
)

// Config holds all environment configuration values for the server.
// These values are loaded from a .env file at startup.
type Config struct {
	// ServerPort is the port the HTTP server listens on
	ServerPort string

	// Env is "development" or "production"
	Env string

	// Store selects the backend holding the transmissions collection
	Store string

	// RedisURL is used by the redis store and, when set, for device sessions
	RedisURL string

	// DatabaseURL is the PostgreSQL connection string for the postgres store
	DatabaseURL string

	// SQLitePath is the database file for the sqlite store
	SQLitePath string

	// SupabaseURL is the URL of your Supabase project
	SupabaseURL string

	// SupabaseKey is the service role key for backend operations
	// This key has elevated privileges and should never be exposed to clients
	SupabaseKey string

	// SupabaseTable is the PostgREST table holding transmissions
	SupabaseTable string

	// PollInterval is how often polling stores check for remote changes
	PollInterval time.Duration

	// CORSOrigins lists the allowed browser origins
	CORSOrigins []string

	// BoardIdleTTL is how long an idle device board stays cached
	BoardIdleTTL time.Duration

	// Location is the time zone used to render message timestamps
	Location *time.Location
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment variables.
// Falls back to sensible defaults if values are not set.
func Load() (*Config, error) {
	// Not an error if it doesn't exist: production uses real environment variables
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:    getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		Store:         strings.ToLower(getEnv("STORE", StoreMemory)),
		RedisURL:      os.Getenv("REDIS_URL"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/transmit.db"),
		SupabaseURL:   os.Getenv("SUPABASE_URL"),
		SupabaseKey:   os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseTable: getEnv("SUPABASE_TABLE", "transmissions"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:8080,http://localhost:3000")),
	}

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.BoardIdleTTL, err = getDuration("BOARD_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Location, err = time.LoadLocation(getEnv("TIME_ZONE", "Local")); err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory:
		if c.Env == "production" {
			return fmt.Errorf("STORE=memory is not allowed in production")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for STORE=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORE=postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for STORE=sqlite")
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for STORE=supabase")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	return nil
}

// ClientConfig holds the terminal client's settings.
type ClientConfig struct {
	// ServerURL is the base URL of a transmit server
	ServerURL string

	// SessionFile is the YAML file acting as the client's local storage
	SessionFile string

	// UserAgent is sent with every request and kept as the message signature
	UserAgent string
}

// LoadClient reads the terminal client's configuration from the environment.
func LoadClient(version string) *ClientConfig {
	_ = godotenv.Load()

	sessionFile := os.Getenv("TRANSMIT_SESSION_FILE")
	if sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		sessionFile = filepath.Join(dir, "transmit", "session.yaml")
	}

	return &ClientConfig{
		ServerURL:   strings.TrimRight(getEnv("TRANSMIT_SERVER", "http://localhost:8080"), "/"),
		SessionFile: sessionFile,
		UserAgent:   getEnv("TRANSMIT_USER_AGENT", "transmit-cli/"+version),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList splits comma-separated values and trims whitespace
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
