package auth

import (
	"slices"
	"strings"
)

// RouteConstraint is attached to a protected view at composition time.
// The zero value is unconstrained. When AllowedRoles is non-empty it wins and
// RequiredRole is ignored.
type RouteConstraint struct {
	RequiredRole Role
	AllowedRoles []Role
}

// Unconstrained returns a constraint satisfied by any authenticated user.
func Unconstrained() RouteConstraint { return RouteConstraint{} }

// RequireRole returns a single required-role constraint.
func RequireRole(r Role) RouteConstraint { return RouteConstraint{RequiredRole: r} }

// AllowRoles returns an allowed-roles constraint.
func AllowRoles(roles ...Role) RouteConstraint {
	return RouteConstraint{AllowedRoles: slices.Clone(roles)}
}

// IsUnconstrained reports whether neither form of constraint is set.
func (c RouteConstraint) IsUnconstrained() bool {
	return len(c.AllowedRoles) == 0 && c.RequiredRole == RoleNone
}

func (c RouteConstraint) String() string {
	switch {
	case len(c.AllowedRoles) > 0:
		names := make([]string, len(c.AllowedRoles))
		for i, r := range c.AllowedRoles {
			names[i] = string(r)
		}
		return "allowed:" + strings.Join(names, ",")
	case c.RequiredRole != RoleNone:
		return "required:" + string(c.RequiredRole)
	default:
		return "none"
	}
}

// IsAuthorized decides whether role satisfies c.
//
//   - unconstrained: always true
//   - allowed roles: role present and listed (required role ignored)
//   - required admin: admin or superadmin
//   - required superadmin: superadmin only
//   - any other required role: exact match
//
// An absent role never satisfies a constraint.
func IsAuthorized(role Role, c RouteConstraint) bool {
	if len(c.AllowedRoles) > 0 {
		return role != RoleNone && slices.Contains(c.AllowedRoles, role)
	}

	if c.RequiredRole == RoleNone {
		return true
	}
	if role == RoleNone {
		return false
	}

	switch c.RequiredRole {
	case RoleAdmin:
		return role == RoleAdmin || role == RoleSuperAdmin
	case RoleSuperAdmin:
		return role == RoleSuperAdmin
	default:
		return role == c.RequiredRole
	}
}
