package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	arkerrors "noahs-ark/backend/pkg/errors"
)

// Backend selector values. "memory" runs the store in-process, which is what
// tests and local demos use.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendLocal  = "local"

	SyncModeInline = "inline"
	SyncModeAsync  = "async"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Neo4j (ancestry graph index). NEO4J_URI=memory selects the in-process store.
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	GraphTimeout  time.Duration

	// Postgres (authoritative records). DATABASE_URL=memory selects the in-process store.
	DatabaseURL string

	// Snapshot cache
	CacheBackend string // redis or local
	RedisURL     string
	CacheTTL     time.Duration
	CacheSize    int

	// Post-commit graph propagation
	GraphSyncMode       string // inline or async
	GraphSyncWorkers    int
	GraphSyncMaxElapsed time.Duration

	// Analytics
	MaxGenerations int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "3000"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", ""),
		Neo4jURI:            getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:           getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:       getEnv("NEO4J_PASSWORD", "password"),
		GraphTimeout:        getEnvDuration("GRAPH_TIMEOUT", 5*time.Second),
		DatabaseURL:         getEnv("DATABASE_URL", "postgres://localhost/geneweb?sslmode=disable"),
		CacheBackend:        getEnv("CACHE_BACKEND", BackendRedis),
		RedisURL:            getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		CacheTTL:            getEnvDuration("CACHE_TTL", time.Hour),
		CacheSize:           getEnvInt("CACHE_SIZE", 10000),
		GraphSyncMode:       getEnv("GRAPH_SYNC_MODE", SyncModeInline),
		GraphSyncWorkers:    getEnvInt("GRAPH_SYNC_WORKERS", 4),
		GraphSyncMaxElapsed: getEnvDuration("GRAPH_SYNC_MAX_ELAPSED", 30*time.Second),
		MaxGenerations:      getEnvInt("MAX_GENERATIONS", 32),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return arkerrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jURI != BackendMemory {
		if c.Neo4jUser == "" {
			return arkerrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return arkerrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	}
	if c.DatabaseURL == "" {
		return arkerrors.NewConfigMissingRequired("DATABASE_URL")
	}
	switch c.CacheBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return arkerrors.NewConfigMissingRequired("REDIS_URL")
		}
	case BackendLocal:
		if c.CacheSize <= 0 {
			return arkerrors.NewConfigValidationFailed("CACHE_SIZE", "must be positive")
		}
	default:
		return arkerrors.NewConfigValidationFailed("CACHE_BACKEND", fmt.Sprintf("unknown backend %q", c.CacheBackend))
	}
	if c.CacheTTL <= 0 {
		return arkerrors.NewConfigValidationFailed("CACHE_TTL", "must be positive")
	}
	switch c.GraphSyncMode {
	case SyncModeInline:
	case SyncModeAsync:
		if c.GraphSyncWorkers <= 0 {
			return arkerrors.NewConfigValidationFailed("GRAPH_SYNC_WORKERS", "must be positive in async mode")
		}
	default:
		return arkerrors.NewConfigValidationFailed("GRAPH_SYNC_MODE", fmt.Sprintf("unknown mode %q", c.GraphSyncMode))
	}
	if c.MaxGenerations < 0 {
		return arkerrors.NewConfigValidationFailed("MAX_GENERATIONS", "must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
