// Package middleware is the access guard chain in front of business handlers.
//
// # Ordering
//
// Stages must run in this order (outer to inner):
//
//  1. Authenticate - sets the identity
//  2. ResolveTenant - sets the tenant context, plan and features
//  3. StatusGate - applies the tenant lifecycle
//  4. RequireFeature / RequirePermission / RequireLimit - any order
//
// A stage that finds its inputs missing fails with INTERNAL_ERROR rather than
// letting the request through.
//
//	guard, _ := middleware.NewGuard(middleware.Config{...})
//	r := router.PathPrefix("/api").Subrouter()
//	r.Use(guard.Tenant(true))
//	createVenue = guard.RequireLimit(plans.LimitMaxVenues, nil)(createVenue)
//	createVenue = guard.RequirePermission(rbac.P(rbac.ResourceVenues, rbac.ActionCreate), nil)(createVenue)
//	r.Handle("/venues", createVenue).Methods("POST")
//
// Handlers read results with TenantContextFrom, PermissionsFrom, LimitsFrom
// and FeaturesFrom.
//
// # Observability
//
// Every stage opens a span, counts its verdict in
// gatehouse_access_decisions_total and hands a decision to the audit sink.
//
// # Rate limiting
//
// RateLimitByUser is a Redis fixed-window limiter used on the escalation
// endpoints. It fails closed.
package middleware
