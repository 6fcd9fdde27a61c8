package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arkerrors "noahs-ark/backend/pkg/errors"
)

func validConfig() *Config {
	return &Config{
		Neo4jURI:         "neo4j://localhost:7687",
		Neo4jUser:        "neo4j",
		Neo4jPassword:    "secret",
		DatabaseURL:      "postgres://localhost/ark",
		CacheBackend:     BackendRedis,
		RedisURL:         "redis://localhost:6379/0",
		CacheTTL:         time.Hour,
		CacheSize:        10,
		GraphSyncMode:    SyncModeInline,
		GraphSyncWorkers: 1,
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "GRAPH_SYNC_MODE", "CACHE_TTL", "GRAPH_TIMEOUT", "CACHE_BACKEND", "REDIS_URL", "NEO4J_URI", "DATABASE_URL"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, SyncModeInline, cfg.GraphSyncMode)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.GraphTimeout)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("NEO4J_URI", BackendMemory)
	t.Setenv("DATABASE_URL", BackendMemory)
	t.Setenv("CACHE_BACKEND", BackendLocal)
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_SIZE", "256")
	t.Setenv("GRAPH_SYNC_MODE", SyncModeAsync)
	t.Setenv("GRAPH_SYNC_WORKERS", "8")
	t.Setenv("MAX_GENERATIONS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, 8, cfg.GraphSyncWorkers)
	assert.Equal(t, 32, cfg.MaxGenerations, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing neo4j uri", func(c *Config) { c.Neo4jURI = "" }, "NEO4J_URI"},
		{"missing neo4j password", func(c *Config) { c.Neo4jPassword = "" }, "NEO4J_PASSWORD"},
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"missing redis url", func(c *Config) { c.RedisURL = "" }, "REDIS_URL"},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "memcached" }, "CACHE_BACKEND"},
		{"local cache without size", func(c *Config) { c.CacheBackend = BackendLocal; c.CacheSize = 0 }, "CACHE_SIZE"},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, "CACHE_TTL"},
		{"unknown sync mode", func(c *Config) { c.GraphSyncMode = "eventually" }, "GRAPH_SYNC_MODE"},
		{"async without workers", func(c *Config) { c.GraphSyncMode = SyncModeAsync; c.GraphSyncWorkers = 0 }, "GRAPH_SYNC_WORKERS"},
		{"negative generations", func(c *Config) { c.MaxGenerations = -1 }, "MAX_GENERATIONS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, arkerrors.IsErrorType(err, arkerrors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidate_MemoryGraphNeedsNoCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Neo4jURI = BackendMemory
	cfg.Neo4jUser = ""
	cfg.Neo4jPassword = ""
	assert.NoError(t, cfg.Validate())
}

func TestEnvironmentChecks(t *testing.T) {
	assert.True(t, (&Config{Env: "development"}).IsDevelopment())
	assert.True(t, (&Config{Env: "production"}).IsProduction())
	assert.False(t, (&Config{Env: "test"}).IsProduction())
}
