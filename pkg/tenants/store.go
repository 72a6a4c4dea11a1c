package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Store reads tenants, users and memberships
type Store interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// ListActiveMemberships returns the user's active memberships.
	ListActiveMemberships(ctx context.Context, userID string) ([]*Membership, error)
	// GetMembership returns the active membership of userID in tenantID, or ErrNotFound.
	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
}

// CounterStore persists the cached usage counters
type CounterStore interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
	UpdateCounters(ctx context.Context, tenantID string, counters Counters) error
}

// PostgresStore implements Store and CounterStore using PostgreSQL.
// Reads go to reader, writes to db.
type PostgresStore struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresStore creates a store that reads and writes through db
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, reader: db}
}

// NewPostgresStoreWithReplica creates a store that reads from a replica
func NewPostgresStoreWithReplica(primary, replica *sql.DB) *PostgresStore {
	if replica == nil {
		replica = primary
	}
	return &PostgresStore{db: primary, reader: replica}
}

const tenantColumns = `id, name, slug, plan_id, status, trial_ends_at,
		       current_users, current_venues, monthly_bookings, counters_updated_at,
		       created_at, updated_at`

// GetTenant retrieves a tenant by ID
func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return s.scanTenant(s.reader.QueryRowContext(ctx, query, id))
}

// GetTenantBySlug retrieves a tenant by slug
func (s *PostgresStore) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	return s.scanTenant(s.reader.QueryRowContext(ctx, query, strings.ToLower(slug)))
}

func (s *PostgresStore) scanTenant(row *sql.Row) (*Tenant, error) {
	t := &Tenant{}
	var (
		planID     sql.NullString
		status     string
		trialEnds  sql.NullTime
		countersAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &planID, &status, &trialEnds,
		&t.Counters.Users, &t.Counters.Venues, &t.Counters.MonthlyBookings, &countersAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	t.PlanID = planID.String
	if parsed, err := ParseStatus(status); err == nil {
		t.Status = parsed
	} else {
		// Left as-is; the status gate rejects unknown values.
		t.Status = Status(status)
	}
	if trialEnds.Valid {
		ends := trialEnds.Time
		t.TrialEndsAt = &ends
	}
	if countersAt.Valid {
		t.Counters.UpdatedAt = countersAt.Time
	}
	return t, nil
}

// GetUser retrieves a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, is_super_admin, active, created_at
		FROM users
		WHERE id = $1
	`
	u := &User{}
	err := s.reader.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.IsSuperAdmin, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

const membershipColumns = `id, tenant_id, user_id, role, staff_type, venue_ids, overrides, active, created_at, updated_at`

// ListActiveMemberships lists a user's active memberships
func (s *PostgresStore) ListActiveMemberships(ctx context.Context, userID string) ([]*Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE user_id = $1 AND active = true
		ORDER BY created_at ASC
	`
	rows, err := s.reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return memberships, nil
}

// GetMembership retrieves the active membership of a user in a tenant
func (s *PostgresStore) GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE tenant_id = $1 AND user_id = $2 AND active = true
	`
	m, err := scanMembership(s.reader.QueryRowContext(ctx, query, tenantID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var (
		role      string
		staffType sql.NullString
		venueIDs  pq.StringArray
		overrides []byte
	)
	err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &role, &staffType, &venueIDs, &overrides,
		&m.Active, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}

	parsed, ok := rbac.ParseRole(role)
	if !ok || !parsed.IsTenantRole() {
		return nil, fmt.Errorf("membership %s has invalid role %q", m.ID, role)
	}
	m.Role = parsed
	m.StaffType = rbac.ParseStaffType(staffType.String)
	m.VenueIDs = []string(venueIDs)

	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &m.Overrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal overrides for membership %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// ListTenantIDs lists every tenant that is not canceled
func (s *PostgresStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.reader.QueryContext(ctx, `SELECT id FROM tenants WHERE status <> 'canceled' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateCounters overwrites the cached counters of a tenant
func (s *PostgresStore) UpdateCounters(ctx context.Context, tenantID string, counters Counters) error {
	if counters.UpdatedAt.IsZero() {
		counters.UpdatedAt = time.Now().UTC()
	}
	query := `
		UPDATE tenants
		SET current_users = $1, current_venues = $2, monthly_bookings = $3, counters_updated_at = $4
		WHERE id = $5
	`
	res, err := s.db.ExecContext(ctx, query, counters.Users, counters.Venues, counters.MonthlyBookings,
		counters.UpdatedAt, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update counters: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
