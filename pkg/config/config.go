package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/lifecycle"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Credential signing and escalation settings
	Auth AuthConfig

	// Storage configuration
	Storage storage.Config

	// Plan catalog
	Plans PlansConfig

	// Tenant status routing
	Lifecycle LifecycleConfig

	// Decision trail
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Counter reconciliation
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds credential settings
type AuthConfig struct {
	JWTSecret        string
	Issuer           string
	AccessTTL        time.Duration
	MaxEscalationTTL time.Duration

	// AssumeRateLimit caps escalation requests per admin per hour. Zero
	// disables the limiter.
	AssumeRateLimit int
}

// PlansConfig locates the plan catalog. With no path, plans are read from
// the plans table.
type PlansConfig struct {
	CatalogPath string
	Watch       bool
}

// LifecycleConfig configures the status gate
type LifecycleConfig struct {
	BillingPrefixes []string
	SupportPrefix   string
}

// AuditConfig configures decision recording
type AuditConfig struct {
	QueueSize int
	Workers   int
	// PersistDecisions writes consequential decisions to access_decisions
	PersistDecisions bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelEnvironment    string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// ReconcileConfig schedules counter reconciliation. An empty schedule
// disables it.
type ReconcileConfig struct {
	Schedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Storage:       loadStorageConfig(),
		Plans:         loadPlansConfig(),
		Lifecycle:     loadLifecycleConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
		Reconcile:     ReconcileConfig{Schedule: getEnv("GATEHOUSE_RECONCILE_SCHEDULE", "*/15 * * * *")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:        getEnv("GATEHOUSE_JWT_SECRET", ""),
		Issuer:           getEnv("GATEHOUSE_JWT_ISSUER", "gatehouse"),
		AccessTTL:        getEnvDuration("GATEHOUSE_ACCESS_TTL", auth.DefaultAccessTTL),
		MaxEscalationTTL: getEnvDuration("GATEHOUSE_MAX_ESCALATION_TTL", auth.MaxEscalationTTL),
		AssumeRateLimit:  getEnvInt("GATEHOUSE_ASSUME_RATE_LIMIT", 10),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("GATEHOUSE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("GATEHOUSE_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}
	cfg.Migrate = getEnvBool("GATEHOUSE_POSTGRES_MIGRATE", true)

	// Redis config
	if redisURL := getEnv("GATEHOUSE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GATEHOUSE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATEHOUSE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if timeout := getEnvDuration("GATEHOUSE_REDIS_TIMEOUT", 0); timeout > 0 {
		cfg.RedisTimeout = timeout
	}
	if prefix := getEnv("GATEHOUSE_KEY_PREFIX", ""); prefix != "" {
		cfg.KeyPrefix = prefix
	}

	// Cache config
	if cacheEnabled := getEnv("GATEHOUSE_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if ttl := getEnvDuration("GATEHOUSE_TENANT_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL["tenant"] = ttl
	}
	if ttl := getEnvDuration("GATEHOUSE_PLAN_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL["plan"] = ttl
	}
	if l1CacheSize := getEnvInt("GATEHOUSE_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

func loadPlansConfig() PlansConfig {
	return PlansConfig{
		CatalogPath: getEnv("GATEHOUSE_PLANS_FILE", ""),
		Watch:       getEnvBool("GATEHOUSE_PLANS_WATCH", true),
	}
}

func loadLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		BillingPrefixes: getEnvList("GATEHOUSE_BILLING_PREFIXES", lifecycle.DefaultBillingPrefixes),
		SupportPrefix:   getEnv("GATEHOUSE_SUPPORT_PREFIX", ""),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		QueueSize:        getEnvInt("GATEHOUSE_AUDIT_QUEUE_SIZE", 1024),
		Workers:          getEnvInt("GATEHOUSE_AUDIT_WORKERS", 2),
		PersistDecisions: getEnvBool("GATEHOUSE_AUDIT_PERSIST", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEHOUSE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEHOUSE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEHOUSE_OTEL_SERVICE_NAME", "gatehouse"),
		OTelServiceVersion: getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelEnvironment:    getEnv("GATEHOUSE_ENVIRONMENT", ""),
		OTelInsecure:       getEnvBool("GATEHOUSE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("GATEHOUSE_OTEL_SAMPLE_RATIO", 1),
	}

	return cfg
}

// OTel converts the observability settings for observability.InitOTel
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Environment:    c.OTelEnvironment,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Auth.Issuer == "" {
		return fmt.Errorf("JWT issuer is required")
	}
	if c.Auth.MaxEscalationTTL <= 0 || c.Auth.MaxEscalationTTL > auth.MaxEscalationTTL {
		return fmt.Errorf("max escalation TTL must be between 0 and %s", auth.MaxEscalationTTL)
	}
	if c.Auth.AssumeRateLimit < 0 {
		return fmt.Errorf("assume rate limit cannot be negative")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.AssumeRateLimit > 0 && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the assume rate limit is enabled")
	}

	if c.Audit.QueueSize <= 0 || c.Audit.Workers <= 0 {
		return fmt.Errorf("audit queue size and workers must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
