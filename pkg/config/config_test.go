package config

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/lifecycle"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"returns true for 'true'", "true", false, true},
		{"returns true for 'TRUE'", "TRUE", false, true},
		{"returns true for '1'", "1", false, true},
		{"returns false for 'false'", "false", true, false},
		{"returns false for garbage", "yes please", true, false},
		{"returns default when unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"parses integer", "42", 42},
		{"parses negative", "-1", -1},
		{"invalid falls back", "forty-two", 7},
		{"unset falls back", "", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_INT", tt.envValue)
			}
			if got := getEnvInt("TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{"parses duration", "90s", 90 * time.Second},
		{"parses minutes", "30m", 30 * time.Minute},
		{"invalid falls back", "30", time.Minute},
		{"unset falls back", "", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_DURATION", tt.envValue)
			}
			if got := getEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.1")
	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.1 {
		t.Errorf("getEnvFloat() = %v, want 0.1", got)
	}
	t.Setenv("TEST_FLOAT", "a tenth")
	if got := getEnvFloat("TEST_FLOAT", 1); got != 1 {
		t.Errorf("getEnvFloat() = %v, want default", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " /billing , ,/api/billing/,")
	got := getEnvList("TEST_LIST", nil)
	want := []string{"/billing", "/api/billing/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("getEnvList() = %v, want %v", got, want)
	}

	defaults := []string{"/a"}
	got = getEnvList("TEST_LIST_NOT_SET", defaults)
	got[0] = "/changed"
	if defaults[0] != "/a" {
		t.Error("getEnvList() returned the default slice itself")
	}
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("GATEHOUSE_PORT", "8443")
	t.Setenv("GATEHOUSE_READ_TIMEOUT", "5s")

	cfg := loadServerConfig()
	if cfg.Port != "8443" {
		t.Errorf("Port = %v, want 8443", cfg.Port)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.HealthPort != "9090" {
		t.Errorf("HealthPort = %v, want 9090", cfg.HealthPort)
	}
}

func TestLoadStorageConfig(t *testing.T) {
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse")
	t.Setenv("GATEHOUSE_POSTGRES_MIGRATE", "false")
	t.Setenv("GATEHOUSE_TENANT_CACHE_TTL", "10s")
	t.Setenv("GATEHOUSE_REDIS_DB", "0")

	cfg := loadStorageConfig()
	if cfg.PostgresURL != "postgres://localhost/gatehouse" {
		t.Errorf("PostgresURL = %v", cfg.PostgresURL)
	}
	if cfg.Migrate {
		t.Error("Migrate should be false")
	}
	if cfg.CacheTTL["tenant"] != 10*time.Second {
		t.Errorf("tenant TTL = %v, want 10s", cfg.CacheTTL["tenant"])
	}
	if cfg.CacheTTL["plan"] != 5*time.Minute {
		t.Errorf("plan TTL = %v, want 5m", cfg.CacheTTL["plan"])
	}
	if cfg.PostgresMaxConns != storage.DefaultConfig().PostgresMaxConns {
		t.Errorf("PostgresMaxConns = %v", cfg.PostgresMaxConns)
	}
}

func TestLoadLifecycleConfig(t *testing.T) {
	cfg := loadLifecycleConfig()
	if !reflect.DeepEqual(cfg.BillingPrefixes, lifecycle.DefaultBillingPrefixes) {
		t.Errorf("BillingPrefixes = %v", cfg.BillingPrefixes)
	}

	t.Setenv("GATEHOUSE_BILLING_PREFIXES", "/subscription")
	t.Setenv("GATEHOUSE_SUPPORT_PREFIX", "/support")
	cfg = loadLifecycleConfig()
	if !reflect.DeepEqual(cfg.BillingPrefixes, []string{"/subscription"}) {
		t.Errorf("BillingPrefixes = %v", cfg.BillingPrefixes)
	}
	if cfg.SupportPrefix != "/support" {
		t.Errorf("SupportPrefix = %v", cfg.SupportPrefix)
	}
}

func TestLoadObservabilityConfig(t *testing.T) {
	t.Setenv("GATEHOUSE_LOG_LEVEL", "debug")
	t.Setenv("GATEHOUSE_OTEL_ENABLED", "true")
	t.Setenv("GATEHOUSE_OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("GATEHOUSE_ENVIRONMENT", "staging")

	cfg := loadObservabilityConfig()
	if cfg.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	otel := cfg.OTel()
	if !otel.Enabled || otel.ServiceName != "gatehouse" {
		t.Errorf("OTel() = %+v", otel)
	}
	if otel.SampleRatio != 0.25 || otel.Environment != "staging" {
		t.Errorf("OTel() sampling = %v, environment = %q", otel.SampleRatio, otel.Environment)
	}
}

func validConfig() *Config {
	st := storage.DefaultConfig()
	st.PostgresURL = "postgres://localhost/gatehouse"
	st.RedisURL = "redis://localhost:6379"
	return &Config{
		Server: ServerConfig{Port: "8080", HealthPort: "9090"},
		Auth: AuthConfig{
			JWTSecret:        testSecret,
			Issuer:           "gatehouse",
			MaxEscalationTTL: 30 * time.Minute,
			AssumeRateLimit:  10,
		},
		Storage: st,
		Audit:   AuditConfig{QueueSize: 16, Workers: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, true},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"missing issuer", func(c *Config) { c.Auth.Issuer = "" }, true},
		{"escalation ttl too long", func(c *Config) { c.Auth.MaxEscalationTTL = time.Hour }, true},
		{"escalation ttl shorter is fine", func(c *Config) { c.Auth.MaxEscalationTTL = 10 * time.Minute }, false},
		{"missing postgres", func(c *Config) { c.Storage.PostgresURL = "" }, true},
		{"rate limit needs redis", func(c *Config) { c.Storage.RedisURL = "" }, true},
		{"no redis without rate limit", func(c *Config) {
			c.Storage.RedisURL = ""
			c.Auth.AssumeRateLimit = 0
		}, false},
		{"empty audit queue", func(c *Config) { c.Audit.QueueSize = 0 }, true},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "gatehouse"
		}, true},
		{"otel sample ratio above one", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = "collector:4317"
			c.Observability.OTelServiceName = "gatehouse"
			c.Observability.OTelSampleRatio = 1.5
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	for _, key := range []string{"GATEHOUSE_JWT_SECRET", "GATEHOUSE_POSTGRES_URL"} {
		os.Unsetenv(key)
	}
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should fail without a secret")
	}

	t.Setenv("GATEHOUSE_JWT_SECRET", testSecret)
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://localhost:6379")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Reconcile.Schedule != "*/15 * * * *" {
		t.Errorf("Reconcile.Schedule = %v", cfg.Reconcile.Schedule)
	}
	if cfg.Auth.AssumeRateLimit != 10 {
		t.Errorf("AssumeRateLimit = %v, want 10", cfg.Auth.AssumeRateLimit)
	}
	if !cfg.Audit.PersistDecisions {
		t.Error("PersistDecisions should default to true")
	}
}
