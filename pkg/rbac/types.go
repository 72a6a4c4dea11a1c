package rbac

import (
	"fmt"
	"strings"
)

// Role is a tenant membership role, or the platform-level super admin.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleStaff      Role = "staff"
	RoleViewer     Role = "viewer"
	RoleSuperAdmin Role = "super_admin"
)

// TenantRoles lists membership roles from least to most privileged.
var TenantRoles = []Role{RoleViewer, RoleStaff, RoleManager, RoleAdmin, RoleOwner}

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAdmin, RoleManager, RoleStaff, RoleViewer, RoleSuperAdmin:
		return r, true
	default:
		return "", false
	}
}

// IsTenantRole reports whether r can be held through a tenant membership.
func (r Role) IsTenantRole() bool {
	return r != RoleSuperAdmin && r.Rank() > 0
}

// Rank orders roles by privilege; unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleStaff:
		return 2
	case RoleManager:
		return 3
	case RoleAdmin:
		return 4
	case RoleOwner:
		return 5
	case RoleSuperAdmin:
		return 6
	default:
		return 0
	}
}

// StaffType narrows what a staff member may mutate.
type StaffType string

const (
	StaffSales      StaffType = "sales"
	StaffEvent      StaffType = "event"
	StaffOperations StaffType = "operations"
)

// ParseStaffType validates a staff type. An empty or unknown value yields "".
func ParseStaffType(s string) StaffType {
	switch t := StaffType(strings.ToLower(strings.TrimSpace(s))); t {
	case StaffSales, StaffEvent, StaffOperations:
		return t
	default:
		return ""
	}
}

// Resource represents a resource type in the system
type Resource string

const (
	ResourceBookings  Resource = "bookings"
	ResourceEvents    Resource = "events"
	ResourceCustomers Resource = "customers"
	ResourceProposals Resource = "proposals"
	ResourceVenues    Resource = "venues"
	ResourceSpaces    Resource = "spaces"
	ResourceServices  Resource = "services"
	ResourcePackages  Resource = "packages"
	ResourceTasks     Resource = "tasks"
	ResourcePayments  Resource = "payments"
	ResourceReports   Resource = "reports"
	ResourceUsers     Resource = "users"
	ResourceSettings  Resource = "settings"
	ResourceBilling   Resource = "billing"
)

// AllResources is the closed set of resources.
var AllResources = []Resource{
	ResourceBookings, ResourceEvents, ResourceCustomers, ResourceProposals,
	ResourceVenues, ResourceSpaces, ResourceServices, ResourcePackages,
	ResourceTasks, ResourcePayments, ResourceReports, ResourceUsers,
	ResourceSettings, ResourceBilling,
}

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// AllActions is the closed set of actions.
var AllActions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage}

// IsMutation reports whether the action changes state.
func (a Action) IsMutation() bool {
	return a != ActionView
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// P is shorthand for building a permission.
func P(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action}
}

// ParsePermission parses "resource:action" against the closed enums.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Permission{}, fmt.Errorf("invalid permission %q: expected resource:action", s)
	}
	p := Permission{Resource: Resource(resource), Action: Action(action)}
	if !p.Known() {
		return Permission{}, fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// Known reports whether both halves belong to the closed enums.
func (p Permission) Known() bool {
	resourceOK, actionOK := false, false
	for _, r := range AllResources {
		if r == p.Resource {
			resourceOK = true
			break
		}
	}
	for _, a := range AllActions {
		if a == p.Action {
			actionOK = true
			break
		}
	}
	return resourceOK && actionOK
}
