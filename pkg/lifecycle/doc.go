// Package lifecycle maps a tenant's billing status to what its members may do.
//
//	active, trial      full access
//	trial (expired)    treated as past_due
//	past_due           reads only; writes need payment, except billing routes
//	canceled           billing routes only
//	suspended          nothing, except an optional support read route
//
// Billing routes are path prefixes matched on segment boundaries.
package lifecycle
