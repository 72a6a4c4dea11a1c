package storage

import (
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatehouse/pkg/cache"
)

// Config for the Postgres and Redis backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string // comma separated
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration
	PostgresMaxIdleTime time.Duration
	// Migrate applies pending schema migrations on startup
	Migrate bool

	// Redis config. An empty URL disables the L2 cache and escalation
	// revocation.
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisTimeout    time.Duration
	KeyPrefix       string

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int // Entries per cache
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		RedisDB:             0,
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
		RedisTimeout:        3 * time.Second,
		KeyPrefix:           "gatehouse",
		CacheEnabled:        true,
		CacheTTL: map[string]time.Duration{
			"tenant": 30 * time.Second,
			"plan":   5 * time.Minute,
		},
		L1CacheSize: 10000,
	}
}

// CacheConfig returns the read-through cache settings for name. client may
// be nil, leaving the cache L1 only.
func (c Config) CacheConfig(name string, client *redis.Client) cache.Config {
	cfg := cache.DefaultConfig(name)
	if ttl, ok := c.CacheTTL[name]; ok && ttl > 0 {
		cfg.TTL = ttl
	}
	if c.L1CacheSize > 0 {
		cfg.Size = c.L1CacheSize
	}
	if c.KeyPrefix != "" {
		cfg.KeyPrefix = c.KeyPrefix
	}
	cfg.Redis = client
	return cfg
}
