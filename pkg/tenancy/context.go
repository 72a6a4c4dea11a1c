package tenancy

import (
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/tenants"
)

// TenantContext is the resolved tenant of one request. It is immutable:
// accessors return copies.
type TenantContext struct {
	tenantID     string
	userID       string
	role         rbac.Role
	superAdmin   bool
	assumed      bool
	escalationID string
	staffType    rbac.StaffType
	venueIDs     []string
	overrides    map[string]bool
	tenant       *tenants.Tenant
}

func newMemberContext(userID string, m *tenants.Membership, t *tenants.Tenant) TenantContext {
	tc := TenantContext{
		tenantID:  t.ID,
		userID:    userID,
		role:      m.Role,
		staffType: m.StaffType,
		tenant:    t.Clone(),
	}
	if len(m.VenueIDs) > 0 {
		tc.venueIDs = append([]string(nil), m.VenueIDs...)
	}
	if len(m.Overrides) > 0 {
		tc.overrides = make(map[string]bool, len(m.Overrides))
		for k, v := range m.Overrides {
			tc.overrides[k] = v
		}
	}
	return tc
}

// TenantID is the effective tenant. Empty only for a super admin on a route
// that is not tenant scoped.
func (tc TenantContext) TenantID() string { return tc.tenantID }

// HasTenant reports whether a tenant was resolved
func (tc TenantContext) HasTenant() bool { return tc.tenantID != "" }

// UserID is the caller
func (tc TenantContext) UserID() string { return tc.userID }

// Role is the effective role inside the tenant
func (tc TenantContext) Role() rbac.Role { return tc.role }

// IsSuperAdmin reports a platform super admin
func (tc TenantContext) IsSuperAdmin() bool { return tc.superAdmin }

// IsAssumed reports that a super admin is acting through an escalation
func (tc TenantContext) IsAssumed() bool { return tc.assumed }

// EscalationID is set when IsAssumed
func (tc TenantContext) EscalationID() string { return tc.escalationID }

// StaffType of the membership
func (tc TenantContext) StaffType() rbac.StaffType { return tc.staffType }

// VenueIDs returns the membership's venue scope
func (tc TenantContext) VenueIDs() []string {
	return append([]string(nil), tc.venueIDs...)
}

// Overrides returns the membership's permission overrides
func (tc TenantContext) Overrides() map[string]bool {
	if tc.overrides == nil {
		return nil
	}
	out := make(map[string]bool, len(tc.overrides))
	for k, v := range tc.overrides {
		out[k] = v
	}
	return out
}

// Tenant returns a snapshot of the tenant record, or nil
func (tc TenantContext) Tenant() *tenants.Tenant {
	if tc.tenant == nil {
		return nil
	}
	return tc.tenant.Clone()
}

// PermissionRequest builds the evaluator request for perm
func (tc TenantContext) PermissionRequest(perm rbac.Permission, scope *rbac.ScopeContext) rbac.Request {
	return rbac.Request{
		Role:       tc.role,
		Permission: perm,
		StaffType:  tc.staffType,
		VenueIDs:   tc.venueIDs,
		Overrides:  tc.overrides,
		Scope:      scope,
	}
}
