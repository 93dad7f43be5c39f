package access

import "strings"

// RequirementKind distinguishes the two permission-matching modes.
type RequirementKind int

const (
	// KindAnyOf passes when at least one listed permission is granted.
	KindAnyOf RequirementKind = iota
	// KindAllOf passes only when every listed permission is granted.
	KindAllOf
)

// Requirement is a tagged permission requirement: either any-of or all-of a
// list of permission strings. It replaces the older comma-separated string
// plus require-all flag, which left matching semantics ambiguous.
type Requirement struct {
	Kind        RequirementKind
	Permissions []string
}

// AnyOf builds a requirement satisfied by any listed permission.
func AnyOf(perms ...string) Requirement {
	return Requirement{Kind: KindAnyOf, Permissions: perms}
}

// AllOf builds a requirement satisfied only by all listed permissions.
// AllOf() with no permissions is vacuously satisfied.
func AllOf(perms ...string) Requirement {
	return Requirement{Kind: KindAllOf, Permissions: perms}
}

// ParseRequirement converts the legacy comma-separated permission string into
// a Requirement. requireAll selects all-of matching, otherwise any-of.
// Empty elements are dropped.
func ParseRequirement(csv string, requireAll bool) Requirement {
	var perms []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	if requireAll {
		return AllOf(perms...)
	}
	return AnyOf(perms...)
}

// SatisfiedBy reports whether the permission set meets the requirement.
func (r Requirement) SatisfiedBy(permissions []string) bool {
	if r.Kind == KindAllOf {
		return HasAllPermissions(permissions, r.Permissions)
	}
	return HasAnyPermission(permissions, r.Permissions)
}
