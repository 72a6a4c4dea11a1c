package middleware

import (
	"context"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/lifecycle"
	"github.com/platinummonkey/gatehouse/pkg/limits"
	"github.com/platinummonkey/gatehouse/pkg/plans"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/tenancy"
)

// IdentityFrom returns the authenticated identity, or nil
func IdentityFrom(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}

// TenantContextFrom returns the resolved tenant context
func TenantContextFrom(ctx context.Context) (tenancy.TenantContext, bool) {
	tc, ok := ctx.Value(contextkeys.TenantContextKey).(tenancy.TenantContext)
	return tc, ok
}

// PlanFrom returns the tenant's plan. The plan is nil when the tenant has no
// active plan; ok is false when ResolveTenant has not run.
func PlanFrom(ctx context.Context) (plan *plans.Plan, ok bool) {
	plan, ok = ctx.Value(contextkeys.PlanKey).(*plans.Plan)
	return plan, ok
}

// FeaturesFrom returns the tenant's effective feature set
func FeaturesFrom(ctx context.Context) plans.FeatureSet {
	fs, _ := ctx.Value(contextkeys.FeaturesKey).(plans.FeatureSet)
	return fs
}

// PermissionsFrom returns the permissions granted so far on this request
func PermissionsFrom(ctx context.Context) []rbac.Permission {
	perms, _ := ctx.Value(contextkeys.PermissionsKey).([]rbac.Permission)
	return append([]rbac.Permission(nil), perms...)
}

// LimitsFrom returns the usage checks performed on this request
func LimitsFrom(ctx context.Context) map[plans.LimitName]limits.Usage {
	usage, _ := ctx.Value(contextkeys.LimitsKey).(map[plans.LimitName]limits.Usage)
	out := make(map[plans.LimitName]limits.Usage, len(usage))
	for k, v := range usage {
		out[k] = v
	}
	return out
}

// ModeFrom returns the tenant's lifecycle access mode
func ModeFrom(ctx context.Context) (lifecycle.Mode, bool) {
	mode, ok := ctx.Value(contextkeys.ModeKey).(lifecycle.Mode)
	return mode, ok
}

func withPermission(ctx context.Context, perm rbac.Permission) context.Context {
	return contextkeys.WithPermissions(ctx, append(PermissionsFrom(ctx), perm))
}

func withUsage(ctx context.Context, usage limits.Usage) context.Context {
	all := LimitsFrom(ctx)
	all[usage.Limit] = usage
	return contextkeys.WithLimits(ctx, all)
}
