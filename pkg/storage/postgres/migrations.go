package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all gatehouse migrations in order. Business tables
// counted by limits (venues, bookings, spaces) belong to the host application.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create plans table",
			SQL: `
				CREATE TABLE IF NOT EXISTS plans (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					features JSONB NOT NULL DEFAULT '{}',
					limits JSONB NOT NULL DEFAULT '{}',
					pricing JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(63) NOT NULL UNIQUE,
					plan_id VARCHAR(64) REFERENCES plans(id) ON DELETE SET NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'trial',
					trial_ends_at TIMESTAMPTZ,
					current_users BIGINT NOT NULL DEFAULT 0,
					current_venues BIGINT NOT NULL DEFAULT 0,
					monthly_bookings BIGINT NOT NULL DEFAULT 0,
					counters_updated_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
			`,
		},
		{
			Version:     3,
			Description: "Create users and memberships tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(64) PRIMARY KEY,
					email VARCHAR(320) NOT NULL UNIQUE,
					is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS memberships (
					id VARCHAR(64) PRIMARY KEY,
					tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL,
					staff_type VARCHAR(32),
					venue_ids TEXT[] NOT NULL DEFAULT '{}',
					overrides JSONB,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_user_active ON memberships(user_id) WHERE active;
			`,
		},
		{
			Version:     4,
			Description: "Create tenant_escalations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_escalations (
					id VARCHAR(64) PRIMARY KEY,
					admin_user_id VARCHAR(64) NOT NULL,
					tenant_id VARCHAR(64) NOT NULL,
					role VARCHAR(32) NOT NULL,
					justification TEXT NOT NULL CHECK (char_length(btrim(justification)) >= 10),
					issued_at TIMESTAMPTZ NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL CHECK (expires_at > issued_at),
					request_id VARCHAR(64),
					source_ip VARCHAR(64)
				);

				CREATE INDEX IF NOT EXISTS idx_tenant_escalations_tenant ON tenant_escalations(tenant_id, issued_at DESC);
				CREATE INDEX IF NOT EXISTS idx_tenant_escalations_admin ON tenant_escalations(admin_user_id, issued_at DESC);
			`,
		},
		{
			Version:     5,
			Description: "Create access_decisions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_decisions (
					id VARCHAR(64) PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL,
					request_id VARCHAR(64),
					subject_id VARCHAR(64),
					tenant_id VARCHAR(64),
					escalation_id VARCHAR(64),
					stage VARCHAR(32) NOT NULL,
					resource VARCHAR(255),
					action VARCHAR(64),
					method VARCHAR(16),
					verdict VARCHAR(16) NOT NULL,
					code VARCHAR(64),
					reason VARCHAR(128),
					context JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_access_decisions_tenant ON access_decisions(tenant_id, occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_access_decisions_escalation ON access_decisions(escalation_id) WHERE escalation_id IS NOT NULL;
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction,
// and returns how many ran
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) (int, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gatehouse_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM gatehouse_migrations ORDER BY version")
	if err != nil {
		return 0, fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	ran := 0
	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}
		if err := apply(ctx, db, migration); err != nil {
			return ran, err
		}
		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("migration applied")
		ran++
	}
	return ran, nil
}

func apply(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO gatehouse_migrations (version, description) VALUES ($1, $2)",
		migration.Version, migration.Description,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}
	return nil
}
