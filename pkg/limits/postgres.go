package limits

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

// countQueries maps each limit to the live count of the entity it governs.
// $1 is the tenant id; $2 is the venue id or the start of the month.
var countQueries = map[plans.LimitName]string{
	plans.LimitMaxUsers: `
		SELECT COUNT(*) FROM memberships
		WHERE tenant_id = $1 AND active = true
	`,
	plans.LimitMaxVenues: `
		SELECT COUNT(*) FROM venues
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`,
	plans.LimitMaxBookingsPerMonth: `
		SELECT COUNT(*) FROM bookings
		WHERE tenant_id = $1 AND created_at >= $2
	`,
	plans.LimitMaxSpacesPerVenue: `
		SELECT COUNT(*) FROM spaces
		WHERE tenant_id = $1 AND venue_id = $2 AND deleted_at IS NULL
	`,
}

// PostgresCounter counts governed entities in the business tables.
// It reads from the primary so a just-created entity is always counted.
type PostgresCounter struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresCounter creates a live counter
func NewPostgresCounter(db *sql.DB) *PostgresCounter {
	return &PostgresCounter{db: db, now: time.Now}
}

// Count returns the live count for limit
func (c *PostgresCounter) Count(ctx context.Context, tenantID string, limit plans.LimitName, venueID string) (int64, error) {
	query, ok := countQueries[limit]
	if !ok {
		return 0, fmt.Errorf("no counter for limit %q", limit)
	}

	args := []interface{}{tenantID}
	switch limit {
	case plans.LimitMaxBookingsPerMonth:
		args = append(args, monthStart(c.now()))
	case plans.LimitMaxSpacesPerVenue:
		args = append(args, venueID)
	}

	var count int64
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", limit, err)
	}
	return count, nil
}

// Recount computes the display counters for a tenant
func (c *PostgresCounter) Recount(ctx context.Context, tenantID string) (tenants.Counters, error) {
	var counters tenants.Counters
	var err error
	if counters.Users, err = c.Count(ctx, tenantID, plans.LimitMaxUsers, ""); err != nil {
		return counters, err
	}
	if counters.Venues, err = c.Count(ctx, tenantID, plans.LimitMaxVenues, ""); err != nil {
		return counters, err
	}
	if counters.MonthlyBookings, err = c.Count(ctx, tenantID, plans.LimitMaxBookingsPerMonth, ""); err != nil {
		return counters, err
	}
	return counters, nil
}

func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
