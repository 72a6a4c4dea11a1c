package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/lifecycle"
	"github.com/platinummonkey/gatehouse/pkg/limits"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
	"github.com/platinummonkey/gatehouse/pkg/tenancy"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

var version = "dev"

func main() {
	reconcileOnce := flag.Bool("reconcile-once", false, "Recount tenant usage counters once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger, *reconcileOnce); err != nil {
		logger.WithError(err).Error("gatehouse exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, reconcileOnce bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	if providers != nil {
		shutdown.Register("otel", providers.Shutdown)
	}
	var otelMetrics *observability.OTelMetrics
	if cfg.Observability.OTelEnabled {
		if otelMetrics, err = observability.NewOTelMetrics(); err != nil {
			return fmt.Errorf("failed to create OTel instruments: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Storage
	conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return conns.Close() })
	registry.MustRegister(conns.Collectors()...)
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	if cfg.Storage.Migrate {
		if _, err := postgres.RunMigrations(ctx, conns.Primary(), logger); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		if redisClient, err = postgres.NewRedisClient(ctx, cfg.Storage); err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	// Tenants and plans
	tenantDB := tenants.NewPostgresStoreWithReplica(conns.Primary(), conns.Replica())
	var tenantStore tenants.Store = tenantDB
	var invalidator tenants.Invalidator
	if cfg.Storage.CacheEnabled {
		cached := tenants.NewCachedStore(tenantDB, cfg.Storage.CacheConfig("tenant", redisClient), metrics, logger)
		tenantStore, invalidator = cached, cached
	}

	planSource, catalog, err := buildPlanSource(ctx, cfg, conns, redisClient, metrics, logger)
	if err != nil {
		return err
	}

	counter := limits.NewPostgresCounter(conns.Primary())
	reconciler := tenants.NewReconciler(tenantDB, tenantDB, counter, invalidator, metrics, logger)
	if reconcileOnce {
		updated, err := reconciler.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Infof("Reconciled counters for %d tenants", updated)
		return nil
	}
	if cfg.Reconcile.Schedule != "" {
		if err := reconciler.Start(cfg.Reconcile.Schedule); err != nil {
			return err
		}
		shutdown.Register("reconciler", reconciler.Stop)
	}

	// Audit trail. Only consequential decisions are persisted.
	var sink audit.Sink = audit.NewLogSink(logger)
	if cfg.Audit.PersistDecisions {
		pgSink, err := audit.NewPostgresSink(conns.Primary())
		if err != nil {
			return err
		}
		asyncCfg := audit.DefaultAsyncConfig("access_decisions")
		asyncCfg.QueueSize = cfg.Audit.QueueSize
		asyncCfg.Workers = cfg.Audit.Workers
		async := audit.NewAsyncSink(audit.NewFilterSink(pgSink, audit.Decision.Consequential), asyncCfg, metrics, logger)
		shutdown.Register("audit", async.Close)
		sink = audit.NewMultiSink(sink, async)
	}

	// Credentials
	var revocations *auth.RedisRevocations
	if redisClient != nil {
		revocations = auth.NewRedisRevocations(redisClient, cfg.Storage.KeyPrefix)
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:           []byte(cfg.Auth.JWTSecret),
		Issuer:           cfg.Auth.Issuer,
		AccessTTL:        cfg.Auth.AccessTTL,
		MaxEscalationTTL: cfg.Auth.MaxEscalationTTL,
	}, revocationsOrNil(revocations))
	if err != nil {
		return err
	}

	escalationStore := audit.NewPostgresEscalationStore(conns.Primary(), conns.Replica())
	escalatorOpts := []auth.EscalatorOption{
		auth.WithEscalationMetrics(metrics, otelMetrics),
		auth.WithEscalationLogger(logger),
	}
	if revocations != nil {
		escalatorOpts = append(escalatorOpts, auth.WithRevocationList(revocations))
	}
	escalator := auth.NewEscalator(tokens, tenantStore, escalationStore, escalatorOpts...)

	// Guard
	guard, err := middleware.NewGuard(middleware.Config{
		Identities: tokens,
		Tenants: tenancy.NewResolver(tenantStore,
			tenancy.WithAuditSink(sink),
			tenancy.WithDeduper(audit.NewDeduper(10000, time.Minute)),
			tenancy.WithLogger(logger),
		),
		Plans:    planSource,
		Enforcer: limits.NewEnforcer(counter),
		Lifecycle: lifecycle.NewGate(
			lifecycle.WithBillingPrefixes(cfg.Lifecycle.BillingPrefixes...),
			lifecycle.WithSupportPrefix(cfg.Lifecycle.SupportPrefix),
		),
		Sink:    sink,
		Metrics: metrics,
		OTel:    otelMetrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var limiter *middleware.WindowLimiter
	if cfg.Auth.AssumeRateLimit > 0 {
		limiter = middleware.NewWindowLimiter(redisClient, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Auth.AssumeRateLimit,
			WindowDuration:    time.Hour,
		}, cfg.Storage.KeyPrefix+":assume")
	}

	server := api.NewServer(logger,
		api.NewAdminHandlers(guard, escalator, escalationStore, limiter, sink, logger),
		api.NewEntitlementsHandlers(guard),
	)
	if cfg.Observability.MetricsEnabled {
		server.Router().Use(observability.HTTPMetricsMiddleware(metrics, routeTemplate))
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(server, "gatehouse"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.Register("http", httpServer.Shutdown)

	// Health and metrics on their own port
	health := observability.NewHealthChecker(version)
	health.Require("database", conns.HealthCheck)
	if redisClient != nil {
		probe := func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		if cfg.Auth.AssumeRateLimit > 0 {
			health.Require("redis", probe)
		} else {
			health.Prefer("redis", probe)
		}
	}
	if catalog != nil {
		health.Require("plan_catalog", func(context.Context) error {
			if len(catalog.List()) == 0 {
				return fmt.Errorf("plan catalog is empty")
			}
			return nil
		})
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdown.Register("health", healthServer.Shutdown)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("Starting gatehouse on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Infof("Starting health server on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		logger.WithError(err).Error("server failed, shutting down")
	}

	cancel()
	return shutdown.Shutdown()
}

// buildPlanSource reads plans from the catalog file when one is configured,
// otherwise from the plans table through the read-through cache.
func buildPlanSource(ctx context.Context, cfg *config.Config, conns *postgres.ConnectionManager,
	redisClient *redis.Client, metrics *observability.Metrics, logger *observability.Logger) (plans.Source, *plans.Catalog, error) {
	if cfg.Plans.CatalogPath == "" {
		var source plans.Source = plans.NewPostgresSource(conns.Replica())
		if cfg.Storage.CacheEnabled {
			source = plans.NewCachedSource(source, cfg.Storage.CacheConfig("plan", redisClient), metrics, logger)
		}
		return source, nil, nil
	}

	catalog, err := plans.NewCatalog(cfg.Plans.CatalogPath, metrics, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Plans.Watch {
		if err := catalog.Watch(ctx); err != nil {
			return nil, nil, err
		}
	}
	return catalog, catalog, nil
}

// revocationsOrNil keeps a nil *RedisRevocations from becoming a non-nil
// interface
func revocationsOrNil(r *auth.RedisRevocations) auth.Revocations {
	if r == nil {
		return nil
	}
	return r
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
