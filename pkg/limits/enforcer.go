package limits

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

// Counter returns the live count of the entity governed by a limit.
// venueID is set only for per-venue limits.
type Counter interface {
	Count(ctx context.Context, tenantID string, limit plans.LimitName, venueID string) (int64, error)
}

// Scope narrows a per-venue limit to one venue
type Scope struct {
	VenueID string
}

// Usage is the outcome of one limit check
type Usage struct {
	Limit       plans.LimitName `json:"limitType"`
	Current     int64           `json:"current"`
	Max         int64           `json:"max"`
	WithinLimit bool            `json:"withinLimit"`
	Unlimited   bool            `json:"unlimited"`
}

// Enforcer compares live counts against plan ceilings.
//
// Checks run before the governed entity is created and are not linearizable
// against concurrent creations: two requests can both observe current = max-1
// and both proceed. The overshoot is bounded by request concurrency. Callers
// that need a hard ceiling must count and insert in one transaction.
type Enforcer struct {
	counter Counter
}

// NewEnforcer creates an enforcer
func NewEnforcer(counter Counter) *Enforcer {
	return &Enforcer{counter: counter}
}

// Check evaluates limit for the tenant. plan may be nil, in which case the
// default limits apply.
func (e *Enforcer) Check(ctx context.Context, tenant *tenants.Tenant, plan *plans.Plan, limit plans.LimitName, scope Scope) (Usage, error) {
	if !limit.Known() {
		return Usage{}, access.Internal(fmt.Sprintf("unknown limit %q", limit), nil)
	}

	max := plans.EffectiveLimits(plan).Max(limit)
	usage := Usage{Limit: limit, Max: max}

	if max == plans.Unlimited {
		usage.Unlimited = true
		usage.WithinLimit = true
		usage.Current = cachedCount(tenant, limit)
		return usage, nil
	}

	if limit.PerVenue() && scope.VenueID == "" {
		return Usage{}, access.Internal(fmt.Sprintf("limit %s requires a venue", limit), nil)
	}

	current, err := e.counter.Count(ctx, tenant.ID, limit, scope.VenueID)
	if err != nil {
		return Usage{}, access.Internal("failed to count usage", err)
	}
	usage.Current = current
	usage.WithinLimit = current < max
	return usage, nil
}

// Enforce is Check returning LimitExceeded when the tenant is at its ceiling.
func (e *Enforcer) Enforce(ctx context.Context, tenant *tenants.Tenant, plan *plans.Plan, limit plans.LimitName, scope Scope) (Usage, error) {
	usage, err := e.Check(ctx, tenant, plan, limit, scope)
	if err != nil {
		return usage, err
	}
	if !usage.WithinLimit {
		return usage, access.LimitExceeded(string(limit), usage.Current, usage.Max)
	}
	return usage, nil
}

// Snapshot checks every tenant-wide limit concurrently. Per-venue limits are
// reported with their ceiling only.
func (e *Enforcer) Snapshot(ctx context.Context, tenant *tenants.Tenant, plan *plans.Plan) (map[plans.LimitName]Usage, error) {
	var mu sync.Mutex
	out := make(map[plans.LimitName]Usage, len(plans.AllLimits))

	g, ctx := errgroup.WithContext(ctx)
	for _, limit := range plans.AllLimits {
		limit := limit
		if limit.PerVenue() {
			max := plans.EffectiveLimits(plan).Max(limit)
			mu.Lock()
			out[limit] = Usage{Limit: limit, Max: max, Unlimited: max == plans.Unlimited, WithinLimit: true}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			usage, err := e.Check(ctx, tenant, plan, limit, Scope{})
			if err != nil {
				return err
			}
			mu.Lock()
			out[limit] = usage
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// cachedCount is the display-only counter for unlimited checks
func cachedCount(tenant *tenants.Tenant, limit plans.LimitName) int64 {
	switch limit {
	case plans.LimitMaxUsers:
		return tenant.Counters.Users
	case plans.LimitMaxVenues:
		return tenant.Counters.Venues
	case plans.LimitMaxBookingsPerMonth:
		return tenant.Counters.MonthlyBookings
	default:
		return 0
	}
}

// CounterFunc adapts a function to Counter
type CounterFunc func(ctx context.Context, tenantID string, limit plans.LimitName, venueID string) (int64, error)

// Count calls f
func (f CounterFunc) Count(ctx context.Context, tenantID string, limit plans.LimitName, venueID string) (int64, error) {
	return f(ctx, tenantID, limit, venueID)
}
