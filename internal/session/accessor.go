package session

import "org-service/internal/access"

// Accessor is the read-only permission and role view consumers hold instead
// of the store itself. It is a value over one snapshot; take a fresh one
// after any session change.
type Accessor struct {
	role        string
	permissions []string
}

// Access returns an Accessor over the store's current snapshot.
func (s *Store) Access() Accessor {
	snap := s.Snapshot()
	return Accessor{role: snap.Role, permissions: snap.Permissions}
}

// AccessorFor builds an Accessor from an existing snapshot.
func AccessorFor(snap Snapshot) Accessor {
	return Accessor{role: snap.Role, permissions: snap.Permissions}
}

func (a Accessor) Role() string { return a.role }

func (a Accessor) HasPermission(perm string) bool {
	return access.HasPermission(a.permissions, perm)
}

func (a Accessor) HasAnyPermission(perms ...string) bool {
	return access.HasAnyPermission(a.permissions, perms)
}

func (a Accessor) HasAllPermissions(perms ...string) bool {
	return access.HasAllPermissions(a.permissions, perms)
}

func (a Accessor) IsOwner() bool      { return a.role == access.RoleOwner }
func (a Accessor) IsAdmin() bool      { return a.role == access.RoleAdmin }
func (a Accessor) IsAgent() bool      { return a.role == access.RoleAgent }
func (a Accessor) IsDispatcher() bool { return a.role == access.RoleDispatcher }
func (a Accessor) IsStaff() bool      { return a.role == access.RoleStaff }
