package middleware

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/tenancy"
)

// ResolveTenant pins the request to one tenant and loads its plan. scoped
// routes refuse callers without a concrete tenant. Must run after
// Authenticate.
func (g *Guard) ResolveTenant(scoped bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := g.begin(r, audit.StageTenant)

			identity := IdentityFrom(r.Context())
			if identity == nil {
				s.done(w, access.Internal("tenant resolution ran before authentication", nil))
				return
			}

			route := tenancy.RouteFromRequest(r, g.baseDomain, scoped)
			tc, err := g.tenants.Resolve(s.ctx, identity, route)
			if err != nil {
				s.done(w, err)
				return
			}
			s.d.TenantID = tc.TenantID()
			s.d.Resource = route.TenantSlug

			var plan *plans.Plan
			if tc.HasTenant() {
				plan, err = plans.Resolve(s.ctx, g.plans, tc.Tenant().PlanID)
			}
			if !s.done(w, err) {
				return
			}

			features := plans.EffectiveFeatures(plan)
			if tc.IsSuperAdmin() {
				features = plans.Everything()
			}

			ctx := contextkeys.WithTenantContext(r.Context(), tc)
			ctx = contextkeys.WithPlan(ctx, plan)
			ctx = contextkeys.WithFeatures(ctx, features)
			ctx = observability.WithTenantID(ctx, tc.TenantID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusGate applies the tenant lifecycle: past-due tenants are read-only,
// canceled tenants reach billing routes only, suspended tenants nothing.
// Billing routes are matched on the path below any {tenant_slug} segment.
// Requests without a tenant (a bare super admin) pass.
func (g *Guard) StatusGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := TenantContextFrom(r.Context())
		if ok && !tc.HasTenant() {
			next.ServeHTTP(w, r)
			return
		}

		s := g.begin(r, audit.StageStatus)
		if !ok {
			s.done(w, access.Internal("status gate ran before tenant resolution", nil))
			return
		}
		s.d.Action = r.Method
		s.d.Resource = r.URL.Path

		mode, err := g.lifecycle.Check(tc.Tenant(), g.now(), r.Method, tenancy.RelativePath(r))
		s.d.Context = map[string]interface{}{"mode": string(mode)}
		if !s.done(w, err) {
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithMode(r.Context(), mode)))
	})
}
