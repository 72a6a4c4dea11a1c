package api

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/lifecycle"
	"github.com/platinummonkey/gatehouse/pkg/limits"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

// EntitlementsHandlers reports what the caller may do in their tenant
type EntitlementsHandlers struct {
	guard    *middleware.Guard
	features *plans.Gate
}

// NewEntitlementsHandlers creates entitlement handlers
func NewEntitlementsHandlers(guard *middleware.Guard) *EntitlementsHandlers {
	return &EntitlementsHandlers{guard: guard, features: plans.NewGate()}
}

// RegisterRoutes registers entitlement routes
func (h *EntitlementsHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/entitlements", h.guard.Tenant(false)(http.HandlerFunc(h.getEntitlements))).Methods("GET")
}

// PlanSummary names the tenant's plan
type PlanSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// TenantSummary describes the resolved tenant
type TenantSummary struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Slug   string         `json:"slug"`
	Status tenants.Status `json:"status"`
}

// Entitlements is the caller's effective access in the resolved tenant
type Entitlements struct {
	UserID       string                           `json:"userId"`
	Role         string                           `json:"role"`
	IsSuperAdmin bool                             `json:"isSuperAdmin"`
	Assumed      bool                             `json:"assumed"`
	EscalationID string                           `json:"escalationId,omitempty"`
	Tenant       *TenantSummary                   `json:"tenant,omitempty"`
	Mode         lifecycle.Mode                   `json:"mode,omitempty"`
	Plan         *PlanSummary                     `json:"plan,omitempty"`
	Features     map[plans.FeatureID]bool         `json:"features"`
	Permissions  []string                         `json:"permissions"`
	VenueIDs     []string                         `json:"venueIds,omitempty"`
	Limits       map[plans.LimitName]limits.Usage `json:"limits,omitempty"`
}

// getEntitlements handles GET /api/entitlements
func (h *EntitlementsHandlers) getEntitlements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := middleware.TenantContextFrom(ctx)
	plan, planOK := middleware.PlanFrom(ctx)
	if !ok || !planOK {
		httputil.WriteAccessError(w, access.Internal("entitlements requested without tenant resolution", nil))
		return
	}

	perms := h.guard.Evaluator().EffectivePermissions(tc.Role(), tc.StaffType(), tc.Overrides())
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.String())
	}
	sort.Strings(names)

	out := Entitlements{
		UserID:       tc.UserID(),
		Role:         string(tc.Role()),
		IsSuperAdmin: tc.IsSuperAdmin(),
		Assumed:      tc.IsAssumed(),
		EscalationID: tc.EscalationID(),
		Features:     h.features.Features(plan, tc.IsSuperAdmin()),
		Permissions:  names,
		VenueIDs:     tc.VenueIDs(),
	}
	if mode, ok := middleware.ModeFrom(ctx); ok {
		out.Mode = mode
	}
	if plan != nil {
		out.Plan = &PlanSummary{ID: plan.ID, Name: plan.Name, DisplayName: plan.DisplayName}
	}

	if tc.HasTenant() {
		t := tc.Tenant()
		out.Tenant = &TenantSummary{ID: t.ID, Name: t.Name, Slug: t.Slug, Status: t.Status}

		snapshot, err := h.guard.Enforcer().Snapshot(ctx, t, plan)
		if err != nil {
			httputil.WriteAccessError(w, err)
			return
		}
		out.Limits = snapshot
	}

	httputil.WriteSuccess(w, out)
}
