package tenancy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

// ReasonAssumedTenant marks assumption events in the audit trail
const ReasonAssumedTenant = "assumed_tenant"

// Route describes the addressed tenant of a request
type Route struct {
	// TenantSlug is the tenant named by the path or subdomain, if any
	TenantSlug string
	// TenantScoped routes always need a concrete tenant
	TenantScoped bool
}

// Resolver maps an identity to exactly one tenant
type Resolver struct {
	store  tenants.Store
	sink   audit.Sink
	dedupe *audit.Deduper
	now    func() time.Time
	logger *observability.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithAuditSink records assumption events to sink
func WithAuditSink(sink audit.Sink) Option {
	return func(r *Resolver) { r.sink = sink }
}

// WithDeduper replaces the assumption-event deduper
func WithDeduper(d *audit.Deduper) Option {
	return func(r *Resolver) { r.dedupe = d }
}

// WithClock sets the clock
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a tenant resolver over store
func NewResolver(store tenants.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		sink:   audit.NopSink{},
		dedupe: audit.NewDeduper(10000, time.Minute),
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the tenant context for identity on route
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity, route Route) (TenantContext, error) {
	if identity == nil {
		return TenantContext{}, access.MissingCredential()
	}
	if identity.IsSuperAdmin {
		return r.resolveSuperAdmin(ctx, identity, route)
	}
	return r.resolveMember(ctx, identity, route)
}

func (r *Resolver) resolveSuperAdmin(ctx context.Context, identity *auth.Identity, route Route) (TenantContext, error) {
	if !identity.IsEscalated() {
		if route.TenantScoped {
			return TenantContext{}, access.TenantRequired(access.ReasonSuperAdmin)
		}
		return TenantContext{userID: identity.UserID, role: rbac.RoleSuperAdmin, superAdmin: true}, nil
	}

	now := r.now()
	if identity.ExpiresAt.IsZero() || !now.Before(identity.ExpiresAt) {
		return TenantContext{}, access.ExpiredCredential()
	}

	t, err := r.loadTenant(ctx, identity.AssumedTenantID)
	if err != nil {
		return TenantContext{}, err
	}
	if route.TenantSlug != "" && !strings.EqualFold(route.TenantSlug, t.Slug) {
		return TenantContext{}, access.TenantMismatch(route.TenantSlug)
	}

	r.recordAssumption(ctx, identity, now)

	return TenantContext{
		tenantID:     t.ID,
		userID:       identity.UserID,
		role:         rbac.RoleSuperAdmin,
		superAdmin:   true,
		assumed:      true,
		escalationID: identity.EscalationID,
		tenant:       t.Clone(),
	}, nil
}

func (r *Resolver) resolveMember(ctx context.Context, identity *auth.Identity, route Route) (TenantContext, error) {
	memberships, err := r.store.ListActiveMemberships(ctx, identity.UserID)
	if err != nil {
		return TenantContext{}, access.Internal("failed to list memberships", err)
	}
	active := memberships[:0:0]
	for _, m := range memberships {
		if m.Active {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return TenantContext{}, access.NoTenantForUser(identity.UserID)
	}

	m, err := r.selectMembership(ctx, identity, route, active)
	if err != nil {
		return TenantContext{}, err
	}

	t, err := r.loadTenant(ctx, m.TenantID)
	if err != nil {
		return TenantContext{}, err
	}
	if route.TenantSlug != "" && !strings.EqualFold(route.TenantSlug, t.Slug) {
		return TenantContext{}, access.TenantMismatch(route.TenantSlug)
	}
	if !m.Role.IsTenantRole() {
		return TenantContext{}, access.Internal("membership carries a non-tenant role", nil)
	}

	return newMemberContext(identity.UserID, m, t), nil
}

// selectMembership picks by token claim, then by addressed slug, then the
// only membership.
func (r *Resolver) selectMembership(ctx context.Context, identity *auth.Identity, route Route, active []*tenants.Membership) (*tenants.Membership, error) {
	if identity.TenantClaim != "" {
		for _, m := range active {
			if m.TenantID == identity.TenantClaim {
				return m, nil
			}
		}
		return nil, access.NoTenantForUser(identity.UserID)
	}

	if route.TenantSlug != "" {
		t, err := r.store.GetTenantBySlug(ctx, route.TenantSlug)
		if errors.Is(err, tenants.ErrNotFound) {
			return nil, access.TenantMismatch(route.TenantSlug)
		}
		if err != nil {
			return nil, access.Internal("failed to load tenant by slug", err)
		}
		for _, m := range active {
			if m.TenantID == t.ID {
				return m, nil
			}
		}
		return nil, access.TenantMismatch(route.TenantSlug)
	}

	if len(active) > 1 {
		return nil, access.TenantRequired(access.ReasonAmbiguous)
	}
	return active[0], nil
}

func (r *Resolver) loadTenant(ctx context.Context, id string) (*tenants.Tenant, error) {
	t, err := r.store.GetTenant(ctx, id)
	if errors.Is(err, tenants.ErrNotFound) {
		return nil, access.TenantNotFound(id)
	}
	if err != nil {
		return nil, access.Internal("failed to load tenant", err)
	}
	if t.Status == tenants.StatusSuspended {
		return nil, access.TenantSuspended(t.ID)
	}
	return t, nil
}

// recordAssumption writes at most one event per admin and tenant per minute
func (r *Resolver) recordAssumption(ctx context.Context, identity *auth.Identity, now time.Time) {
	if !r.dedupe.First(identity.UserID+"|"+identity.AssumedTenantID, now) {
		return
	}
	err := r.sink.Record(ctx, audit.Decision{
		Timestamp:    now.UTC(),
		RequestID:    observability.GetRequestID(ctx),
		SubjectID:    identity.UserID,
		TenantID:     identity.AssumedTenantID,
		EscalationID: identity.EscalationID,
		Stage:        audit.StageEscalation,
		Action:       "assume",
		Verdict:      audit.VerdictAllow,
		Reason:       ReasonAssumedTenant,
	})
	if err != nil {
		r.logger.WithError(err).WithField("escalation_id", identity.EscalationID).Warn("failed to record tenant assumption")
	}
}
