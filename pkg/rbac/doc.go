// Package rbac provides role-based permission evaluation for tenant members.
//
// # Roles
//
// Tenant memberships hold one of five roles, from least to most privileged:
//
//	viewer < staff < manager < admin < owner
//
// super_admin is a platform role held outside of any membership.
//
// # Permissions
//
// A permission is a resource:action pair drawn from closed enums, for example
// "bookings:edit" or "billing:manage". Presets are defined once in presets.go
// and built cumulatively, so every permission a viewer has is also held by
// staff, manager, admin and owner.
//
// # Evaluation order
//
//  1. super_admin and owner are allowed outright.
//  2. A membership override for the exact resource:action replaces the preset
//     verdict (grant or revoke).
//  3. Denied -> INSUFFICIENT_PERMISSIONS.
//  4. Managers acting on a venue-owned resource must share a venue with it.
//  5. Staff may only mutate resources compatible with their staff type, unless
//     an override granted the permission.
//
// Staff type compatibility:
//
//	sales      -> customers, proposals, bookings
//	event      -> bookings, tasks, venues
//	operations -> venues, services, packages
//
// Staff without a known staff type are read-only.
//
// Usage:
//
//	eval := rbac.NewEvaluator()
//	err := eval.Check(rbac.Request{
//		Role:       rbac.RoleManager,
//		Permission: rbac.P(rbac.ResourceBookings, rbac.ActionEdit),
//		VenueIDs:   []string{"v1"},
//		Scope:      &rbac.ScopeContext{VenueIDs: []string{"v2"}},
//	})
//	// errors.Is(err, access.ErrOutOfScope) == true
package rbac
