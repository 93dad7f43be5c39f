package access

// Role names within an organization. The hierarchy is closed and totally
// ordered, least privileged first.
const (
	RoleStaff      = "staff"
	RoleDispatcher = "dispatcher"
	RoleAgent      = "agent"
	RoleAdmin      = "admin"
	RoleOwner      = "owner"
)

// Wildcard grants every permission when present in a permission set.
const Wildcard = "*"

// roleRank encodes the privilege ordering. The role strings alone do not
// carry the ordering, so it is spelled out here.
var roleRank = map[string]int{
	RoleStaff:      0,
	RoleDispatcher: 1,
	RoleAgent:      2,
	RoleAdmin:      3,
	RoleOwner:      4,
}

// IsValidRole reports whether role is one of the known role names.
func IsValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// RoleRank returns the privilege rank of a role, or -1 for unknown roles.
func RoleRank(role string) int {
	if r, ok := roleRank[role]; ok {
		return r
	}
	return -1
}

// defaultPermissions maps each role to the permissions granted when a
// membership carries no explicit grant list. The owner role holds the
// wildcard; everything else is enumerated.
var defaultPermissions = map[string][]string{
	RoleStaff: {
		"view_loads",
		"view_schedules",
		"view_documents",
	},
	RoleDispatcher: {
		"view_loads",
		"create_loads",
		"assign_drivers",
		"view_schedules",
		"manage_dispatch",
		"view_documents",
	},
	RoleAgent: {
		"view_loads",
		"create_loads",
		"create_quotes",
		"view_customers",
		"manage_customers",
		"view_schedules",
		"view_documents",
	},
	RoleAdmin: {
		"view_loads",
		"create_loads",
		"assign_drivers",
		"create_quotes",
		"view_customers",
		"manage_customers",
		"view_schedules",
		"manage_dispatch",
		"view_documents",
		"view_financials",
		"manage_users",
		"manage_settings",
	},
	RoleOwner: {Wildcard},
}

// DefaultPermissions returns a copy of the default grant list for a role.
// Unknown roles get no permissions.
func DefaultPermissions(role string) []string {
	perms, ok := defaultPermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
