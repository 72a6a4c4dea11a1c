package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/limits"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// ScopeFunc describes the resource a request acts on. It returns nil when the
// resource is not venue owned.
type ScopeFunc func(r *http.Request) (*rbac.ScopeContext, error)

// VenueFunc returns the venue a per-venue limit applies to
type VenueFunc func(r *http.Request) string

// VenueVar reads the venue id from a mux path variable
func VenueVar(name string) VenueFunc {
	return func(r *http.Request) string {
		return mux.Vars(r)[name]
	}
}

// VenueScope scopes a request to the venue named by a mux path variable
func VenueScope(name string) ScopeFunc {
	return func(r *http.Request) (*rbac.ScopeContext, error) {
		venueID := mux.Vars(r)[name]
		if venueID == "" {
			return nil, nil
		}
		return &rbac.ScopeContext{VenueIDs: []string{venueID}}, nil
	}
}

// RequireFeature rejects tenants whose plan lacks id. Super admins pass.
func (g *Guard) RequireFeature(id plans.FeatureID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := g.begin(r, audit.StageFeature)
			s.d.Resource = string(id)

			tc, ok := TenantContextFrom(r.Context())
			plan, planOK := PlanFrom(r.Context())
			if !ok || !planOK {
				s.done(w, access.Internal("feature gate ran before tenant resolution", nil))
				return
			}

			if !s.done(w, g.features.Check(plan, id, tc.IsSuperAdmin())) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects callers whose role cannot perform perm on the
// resource described by scope. scope may be nil.
func (g *Guard) RequirePermission(perm rbac.Permission, scope ScopeFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := g.begin(r, audit.StagePermission)
			s.d.Resource = string(perm.Resource)
			s.d.Action = string(perm.Action)

			tc, ok := TenantContextFrom(r.Context())
			if !ok {
				s.done(w, access.Internal("permission check ran before tenant resolution", nil))
				return
			}

			var sc *rbac.ScopeContext
			if scope != nil {
				var err error
				if sc, err = scope(r); err != nil {
					s.done(w, err)
					return
				}
			}
			if sc != nil {
				s.d.Context = map[string]interface{}{"venueIds": sc.VenueIDs}
			}

			decision := g.evaluator.Evaluate(tc.PermissionRequest(perm, sc))
			if !s.done(w, decision.Err()) {
				return
			}
			next.ServeHTTP(w, r.WithContext(withPermission(r.Context(), perm)))
		})
	}
}

// RequireLimit rejects the request when the tenant has reached limit. Run it
// in front of handlers that create the governed entity. venue is required for
// per-venue limits.
func (g *Guard) RequireLimit(limit plans.LimitName, venue VenueFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := g.begin(r, audit.StageLimit)
			s.d.Resource = string(limit)

			tc, ok := TenantContextFrom(r.Context())
			plan, planOK := PlanFrom(r.Context())
			if !ok || !planOK {
				s.done(w, access.Internal("limit check ran before tenant resolution", nil))
				return
			}
			if !tc.HasTenant() {
				s.done(w, access.TenantRequired(access.ReasonSuperAdmin))
				return
			}

			scope := limits.Scope{}
			if venue != nil {
				scope.VenueID = venue(r)
			}

			usage, err := g.enforcer.Enforce(s.ctx, tc.Tenant(), plan, limit, scope)
			s.d.Context = map[string]interface{}{"current": usage.Current, "max": usage.Max}
			if !s.done(w, err) {
				return
			}
			next.ServeHTTP(w, r.WithContext(withUsage(r.Context(), usage)))
		})
	}
}
