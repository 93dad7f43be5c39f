// Package access holds the pure role and permission evaluation rules shared
// by the session core and the HTTP API. Nothing here has side effects; every
// function operates on a snapshot of {role, permissions} and returns a bool.
package access

// HasPermission reports whether perm is granted by the permission set.
// A set containing the wildcard grants everything.
func HasPermission(permissions []string, perm string) bool {
	for _, p := range permissions {
		if p == Wildcard || p == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of perms is granted.
func HasAnyPermission(permissions []string, perms []string) bool {
	for _, p := range perms {
		if HasPermission(permissions, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of perms is granted.
// An empty perms list is vacuously true.
func HasAllPermissions(permissions []string, perms []string) bool {
	for _, p := range perms {
		if !HasPermission(permissions, p) {
			return false
		}
	}
	return true
}

// RoleSatisfies reports whether role meets a required-role set. The owner
// role satisfies every role requirement, including an empty one. The bypass
// is role-based only: it does not extend to permission checks, which go
// through the wildcard instead.
func RoleSatisfies(role string, requiredRoles []string) bool {
	if role == RoleOwner {
		return true
	}
	for _, r := range requiredRoles {
		if role == r {
			return true
		}
	}
	return false
}
