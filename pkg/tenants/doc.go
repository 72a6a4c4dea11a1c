// Package tenants holds the tenant, user and membership records the access
// engine resolves requests against.
//
// Stores are read-mostly. PostgresStore reads through a replica when one is
// configured, and CachedStore adds a short-lived tenant cache (L1 LRU with an
// optional Redis L2). Memberships are never cached.
//
// The cached usage counters on a tenant are for display only. A Reconciler
// rewrites them on a cron schedule from live counts.
package tenants
