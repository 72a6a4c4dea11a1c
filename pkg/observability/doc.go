// Package observability carries the engine's logging, Prometheus and
// OpenTelemetry instrumentation, health probes and graceful shutdown.
//
// # Logging
//
// Loggers write JSON through slog. Middleware records the request scope on
// the context as it learns it:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithCaller(ctx, identity.UserID, identity.EscalationID)
//	ctx = observability.WithTenantID(ctx, tenantID)
//
// and FromContext(ctx, logger) stamps request_id, user_id, escalation_id,
// tenant_id and the active trace ids on every line.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveDecision("feature", observability.VerdictDeny, "FEATURE_NOT_AVAILABLE", elapsed)
//
// # OpenTelemetry
//
// InitOTel installs global trace and meter providers exporting over OTLP/gRPC
// with a parent-based ratio sampler. Each enforcement stage opens one span.
//
// # Health
//
//	health := observability.NewHealthChecker(version)
//	health.Require("database", conns.HealthCheck)
//	health.Prefer("redis", pingRedis)
//
// /readyz fails when a required probe fails and reports degraded when only
// preferred ones do.
package observability
