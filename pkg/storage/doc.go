// Package storage holds the persistence settings shared by every
// Postgres- and Redis-backed component.
//
// # Configuration
//
// Config carries the primary and replica Postgres URLs, pool sizing, the
// Redis connection used for the L2 cache, the rate limiter and the
// escalation revocation list, and per-entity cache TTLs:
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://localhost/gatehouse"
//	cfg.PostgresReplicaURLs = "postgres://replica1/gatehouse,postgres://replica2/gatehouse"
//	cfg.RedisURL = "redis://localhost:6379"
//	cfg.CacheTTL["tenant"] = 15 * time.Second
//
// CacheConfig derives a cache.Config for one entity kind. Tenant entries
// default to 30s so a suspension takes effect quickly; plan entries default
// to 5m.
//
// # Backends
//
// The postgres subpackage opens and health-checks the primary and replica
// pools, builds the Redis client, and applies schema migrations:
//
//	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfigFrom(cfg), logger)
//	if err != nil {
//		return err
//	}
//	defer cm.Close()
//
//	if _, err := postgres.RunMigrations(ctx, cm.Primary(), logger); err != nil {
//		return err
//	}
//
// Writes go to cm.Primary(). Reads that tolerate replication lag (tenant
// and plan lookups, escalation history) use cm.Replica(). Limit counts read
// the primary so a just-created entity is always counted.
//
// # Testing
//
// Unit tests use sqlmock and miniredis. Tests tagged integration start a
// real PostgreSQL with testcontainers:
//
//	go test -tags integration ./pkg/storage/postgres/...
package storage
