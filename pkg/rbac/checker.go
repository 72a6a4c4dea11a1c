package rbac

import (
	"github.com/platinummonkey/gatehouse/pkg/access"
)

// Decision sources
const (
	SourceRole     = "role"
	SourcePreset   = "preset"
	SourceOverride = "override"
)

// ScopeContext describes the resource being acted upon, when it is known.
type ScopeContext struct {
	// VenueIDs are the venues that own the resource. Empty means the resource
	// is not venue-owned and venue scoping does not apply.
	VenueIDs []string
}

// Request is one permission check.
type Request struct {
	Role       Role
	Permission Permission

	// Membership attributes
	StaffType StaffType
	VenueIDs  []string
	Overrides map[string]bool

	Scope *ScopeContext
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed    bool
	Permission Permission
	Source     string
	Reason     string
}

// Err converts a denial into its access error. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case access.ReasonOutOfScope, access.ReasonStaffType:
		return access.OutOfScope(d.Permission.String(), d.Reason)
	default:
		return access.PermissionDenied(d.Permission.String(), d.Reason)
	}
}

// Evaluator decides permissions from the preset table, membership overrides
// and contextual scoping. It holds no state and is safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates a permission evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs one permission check.
func (e *Evaluator) Evaluate(req Request) Decision {
	d := Decision{Permission: req.Permission}

	if req.Role == RoleSuperAdmin || req.Role == RoleOwner {
		d.Allowed = true
		d.Source = SourceRole
		return d
	}

	allowed, source := e.base(req)
	d.Source = source
	if !allowed {
		d.Reason = access.ReasonNotPermitted
		if source == SourceOverride {
			d.Reason = access.ReasonOverrideRevoked
		}
		return d
	}

	switch req.Role {
	case RoleManager:
		if req.Scope != nil && len(req.Scope.VenueIDs) > 0 && !intersects(req.VenueIDs, req.Scope.VenueIDs) {
			d.Reason = access.ReasonOutOfScope
			return d
		}
	case RoleStaff:
		if source != SourceOverride && req.Permission.Action.IsMutation() && !StaffTypeAllows(req.StaffType, req.Permission.Resource) {
			d.Reason = access.ReasonStaffType
			return d
		}
	}

	d.Allowed = true
	return d
}

// Check is Evaluate returning the access error for denials.
func (e *Evaluator) Check(req Request) error {
	return e.Evaluate(req).Err()
}

// base is the preset verdict, replaced by an explicit override when one exists.
func (e *Evaluator) base(req Request) (bool, string) {
	if v, ok := req.Overrides[req.Permission.String()]; ok {
		return v, SourceOverride
	}
	return presets[req.Role][req.Permission], SourcePreset
}

// EffectivePermissions lists every permission the membership holds before
// resource scoping (venue intersection) is applied.
func (e *Evaluator) EffectivePermissions(role Role, staffType StaffType, overrides map[string]bool) []Permission {
	var perms []Permission
	for _, r := range AllResources {
		for _, a := range AllActions {
			req := Request{Role: role, Permission: P(r, a), StaffType: staffType, Overrides: overrides}
			if e.Evaluate(req).Allowed {
				perms = append(perms, req.Permission)
			}
		}
	}
	return perms
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
