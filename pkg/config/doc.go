// Package config loads gatehouse configuration from environment variables.
//
// Every setting has a default except the JWT secret and the Postgres URL.
// LoadConfig validates the result and fails fast on anything unusable.
//
// Server settings:
//
//	GATEHOUSE_HOST="0.0.0.0"
//	GATEHOUSE_PORT="8080"
//	GATEHOUSE_HEALTH_PORT="9090"
//	GATEHOUSE_READ_TIMEOUT="15s"
//	GATEHOUSE_SHUTDOWN_TIMEOUT="30s"
//
// Credentials and escalation:
//
//	GATEHOUSE_JWT_SECRET="<at least 32 bytes>"
//	GATEHOUSE_JWT_ISSUER="gatehouse"
//	GATEHOUSE_ACCESS_TTL="15m"
//	GATEHOUSE_MAX_ESCALATION_TTL="30m"  # never above 30m
//	GATEHOUSE_ASSUME_RATE_LIMIT="10"    # per admin per hour, 0 disables
//
// Storage and cache:
//
//	GATEHOUSE_POSTGRES_URL="postgres://localhost/gatehouse"
//	GATEHOUSE_POSTGRES_REPLICA_URLS="postgres://replica1/gatehouse"
//	GATEHOUSE_POSTGRES_MIGRATE="true"
//	GATEHOUSE_REDIS_URL="redis://localhost:6379"
//	GATEHOUSE_REDIS_TIMEOUT="3s"
//	GATEHOUSE_TENANT_CACHE_TTL="30s"
//	GATEHOUSE_PLAN_CACHE_TTL="5m"
//	GATEHOUSE_L1_CACHE_SIZE="10000"
//
// Plans, lifecycle and audit:
//
//	GATEHOUSE_PLANS_FILE="/etc/gatehouse/plans.yaml"  # unset reads the plans table
//	GATEHOUSE_PLANS_WATCH="true"
//	GATEHOUSE_BILLING_PREFIXES="/billing,/api/billing"
//	GATEHOUSE_SUPPORT_PREFIX="/api/support"
//	GATEHOUSE_AUDIT_QUEUE_SIZE="1024"
//	GATEHOUSE_AUDIT_PERSIST="true"
//	GATEHOUSE_RECONCILE_SCHEDULE="*/15 * * * *"
//
// Observability:
//
//	GATEHOUSE_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEHOUSE_METRICS_ENABLED="true"
//	GATEHOUSE_OTEL_ENABLED="true"
//	GATEHOUSE_OTEL_ENDPOINT="otel-collector:4317"
//	GATEHOUSE_OTEL_SAMPLE_RATIO="0.1"
//	GATEHOUSE_ENVIRONMENT="production"
package config
