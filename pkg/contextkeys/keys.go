// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All request-scoped values attached by the access chain are keyed
// here. This prevents typos, documents which middleware sets what, and keeps
// the packages that only read values free of import cycles.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/gatehouse/pkg/contextkeys"
//	ctx = contextkeys.WithTenantContext(ctx, tc)
//	tc, ok := ctx.Value(contextkeys.TenantContextKey).(tenancy.TenantContext)
//
// Typed accessors live next to the types (middleware.TenantContextFrom etc.).
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains the verified caller identity
	// Set by: middleware.Authenticate (pkg/middleware/authenticate.go)
	// Required by: middleware.ResolveTenant, escalation handlers
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// TenantContextKey contains the resolved, immutable tenant context
	// Set by: middleware.ResolveTenant (pkg/middleware/tenant.go)
	// Required by: status gate, feature gate, permission and limit middleware, handlers
	// Type: tenancy.TenantContext
	TenantContextKey Key = "tenant_context"

	// PermissionsKey contains the permissions granted so far on this request
	// Set by: middleware.RequirePermission
	// Used by: handlers rendering capability hints
	// Type: []rbac.Permission
	PermissionsKey Key = "permissions"

	// LimitsKey contains usage checks performed on this request
	// Set by: middleware.RequireLimit
	// Used by: handlers that display remaining quota
	// Type: map[plans.LimitName]limits.Usage
	LimitsKey Key = "limits"

	// FeaturesKey contains the tenant's effective feature set
	// Set by: middleware.ResolveTenant
	// Used by: handlers that toggle optional behaviour
	// Type: plans.FeatureSet
	FeaturesKey Key = "features"

	// PlanKey contains the tenant's plan, nil when defaults apply
	// Set by: middleware.ResolveTenant
	// Required by: middleware.RequireFeature, middleware.RequireLimit
	// Type: *plans.Plan
	PlanKey Key = "plan"

	// ModeKey contains the lifecycle access mode of the tenant
	// Set by: middleware.StatusGate
	// Used by: handlers that render read-only banners
	// Type: lifecycle.Mode
	ModeKey Key = "access_mode"
)

// WithIdentity adds the verified identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithTenantContext adds the resolved tenant context to the context
func WithTenantContext(ctx context.Context, tc interface{}) context.Context {
	return context.WithValue(ctx, TenantContextKey, tc)
}

// WithPermissions adds granted permissions to the context
func WithPermissions(ctx context.Context, perms interface{}) context.Context {
	return context.WithValue(ctx, PermissionsKey, perms)
}

// WithLimits adds usage checks to the context
func WithLimits(ctx context.Context, limits interface{}) context.Context {
	return context.WithValue(ctx, LimitsKey, limits)
}

// WithFeatures adds the effective feature set to the context
func WithFeatures(ctx context.Context, features interface{}) context.Context {
	return context.WithValue(ctx, FeaturesKey, features)
}

// WithPlan adds the tenant's plan to the context
func WithPlan(ctx context.Context, plan interface{}) context.Context {
	return context.WithValue(ctx, PlanKey, plan)
}

// WithMode adds the lifecycle access mode to the context
func WithMode(ctx context.Context, mode interface{}) context.Context {
	return context.WithValue(ctx, ModeKey, mode)
}
