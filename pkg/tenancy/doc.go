// Package tenancy resolves the tenant a request acts in.
//
// Resolution order:
//
//  1. A super admin with an unexpired escalation acts in the assumed tenant.
//  2. A bare super admin gets no tenant and is refused on tenant-scoped routes.
//  3. Everyone else acts through an active membership, picked by the token's
//     tenant claim, then by the addressed slug, then as the only membership.
//
// The result is an immutable TenantContext. Suspended tenants are refused
// here, before any other stage runs.
package tenancy
