package rbac

// presets is the single role -> permission table. Each role is built on top of
// the previous one, so owner ⊇ admin ⊇ manager ⊇ staff ⊇ viewer holds by construction.
var presets = buildPresets()

// staffScopes lists the resources each staff type may mutate.
var staffScopes = map[StaffType]map[Resource]bool{
	StaffSales:      {ResourceCustomers: true, ResourceProposals: true, ResourceBookings: true},
	StaffEvent:      {ResourceBookings: true, ResourceTasks: true, ResourceVenues: true},
	StaffOperations: {ResourceVenues: true, ResourceServices: true, ResourcePackages: true},
}

type permissionSet map[Permission]bool

func (s permissionSet) with(actions []Action, resources ...Resource) permissionSet {
	next := make(permissionSet, len(s)+len(actions)*len(resources))
	for p := range s {
		next[p] = true
	}
	for _, r := range resources {
		for _, a := range actions {
			next[P(r, a)] = true
		}
	}
	return next
}

func (s permissionSet) merge(other permissionSet) permissionSet {
	next := make(permissionSet, len(s)+len(other))
	for p := range s {
		next[p] = true
	}
	for p := range other {
		next[p] = true
	}
	return next
}

func buildPresets() map[Role]permissionSet {
	view := []Action{ActionView}
	write := []Action{ActionCreate, ActionEdit}
	full := []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

	viewer := permissionSet{}.with(view,
		ResourceBookings, ResourceEvents, ResourceCustomers, ResourceProposals,
		ResourceVenues, ResourceSpaces, ResourceServices, ResourcePackages, ResourceTasks)

	staff := viewer.
		with(write, ResourceBookings, ResourceEvents, ResourceCustomers, ResourceProposals, ResourceTasks).
		with([]Action{ActionEdit}, ResourceVenues, ResourceServices, ResourcePackages).
		with(view, ResourcePayments)

	manager := staff.
		with(full, ResourceBookings, ResourceEvents, ResourceCustomers, ResourceProposals, ResourceTasks,
			ResourceSpaces, ResourceServices, ResourcePackages).
		with([]Action{ActionCreate}, ResourcePayments).
		with(view, ResourceReports, ResourceUsers)

	admin := manager.
		with(full, ResourceVenues, ResourcePayments, ResourceUsers).
		with([]Action{ActionManage}, ResourceBookings, ResourceEvents, ResourceCustomers, ResourceProposals,
			ResourceVenues, ResourceSpaces, ResourceServices, ResourcePackages, ResourceTasks,
			ResourceReports, ResourceUsers).
		with([]Action{ActionView, ActionEdit}, ResourceSettings).
		with([]Action{ActionView}, ResourceBilling)

	owner := admin.merge(permissionSet{}.with(AllActions, AllResources...))

	return map[Role]permissionSet{
		RoleViewer:  viewer,
		RoleStaff:   staff,
		RoleManager: manager,
		RoleAdmin:   admin,
		RoleOwner:   owner,
	}
}

// PresetAllows reports whether the default preset for role grants p, ignoring
// overrides and scoping.
func PresetAllows(role Role, p Permission) bool {
	if role == RoleSuperAdmin {
		return true
	}
	return presets[role][p]
}

// PresetPermissions returns the default preset of role in a stable order.
func PresetPermissions(role Role) []Permission {
	var perms []Permission
	for _, r := range AllResources {
		for _, a := range AllActions {
			if PresetAllows(role, P(r, a)) {
				perms = append(perms, P(r, a))
			}
		}
	}
	return perms
}

// StaffTypeAllows reports whether a staff member of type t may mutate resource.
func StaffTypeAllows(t StaffType, resource Resource) bool {
	return staffScopes[t][resource]
}
