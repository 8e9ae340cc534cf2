package auth

import "time"

// RawRole is the role string as persisted by the role storage backend.
// The empty value means no role row exists.
type RawRole string

// Raw values written by the backend.
const (
	RawRoleNone           RawRole = ""
	RawRoleAdmin          RawRole = "admin"
	RawRoleAdministration RawRole = "administration"
	RawRoleCitoyen        RawRole = "citoyen"
)

// Role is the canonical role used by all authorization and UI logic.
// Keep string form for easy JSON and template use.
type Role string

const (
	// RoleNone marks an absent role (anonymous or still loading).
	RoleNone       Role = ""
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
	RoleCitoyen    Role = "citoyen"
)

// AllRoles lists the canonical roles in selector order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleSuperAdmin, RoleCitoyen}
}

// ResolveRole maps a stored role onto the canonical vocabulary.
// "administration" is the stored alias of superadmin; canonical values map to
// themselves so the function is idempotent; anything else is citoyen.
// This is the only place the alias rule lives.
func ResolveRole(raw RawRole) Role {
	switch raw {
	case RawRoleAdministration, RawRole(RoleSuperAdmin):
		return RoleSuperAdmin
	case RawRoleAdmin:
		return RoleAdmin
	default:
		return RoleCitoyen
	}
}

// RawRoleFor returns the value to persist for a canonical role so that
// ResolveRole(RawRoleFor(r)) == r.
func RawRoleFor(r Role) RawRole {
	switch r {
	case RoleSuperAdmin:
		return RawRoleAdministration
	case RoleAdmin:
		return RawRoleAdmin
	default:
		return RawRoleCitoyen
	}
}

// ParseRole accepts a canonical role name or a stored alias.
func ParseRole(s string) (Role, bool) {
	switch RawRole(s) {
	case RawRole(RoleAdmin), RawRole(RoleSuperAdmin), RawRole(RoleCitoyen), RawRoleAdministration:
		return ResolveRole(RawRole(s)), true
	default:
		return RoleNone, false
	}
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleCitoyen:
		return true
	default:
		return false
	}
}

// Label is the French display label used by the role badge and selector.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrateur"
	case RoleSuperAdmin:
		return "Super Admin"
	case RoleCitoyen:
		return "Citoyen"
	default:
		return "Inconnu"
	}
}

// CanAssign reports whether an actor holding r may grant target to someone else.
// Only superadmins can hand out superadmin.
func (r Role) CanAssign(target Role) bool {
	if !target.Valid() {
		return false
	}
	switch r {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return target != RoleSuperAdmin
	default:
		return false
	}
}

// CanManage reports whether an actor holding r may change a user whose role
// is current to target. Superadmins can only be changed by superadmins.
func (r Role) CanManage(current, target Role) bool {
	if current == RoleSuperAdmin && r != RoleSuperAdmin {
		return false
	}
	return r.CanAssign(target)
}

// UserRole is the stored role record of a user.
type UserRole struct {
	UserID    string    `db:"user_id"    json:"user_id"`
	Role      RawRole   `db:"role"       json:"raw_role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Canonical resolves the stored value.
func (u UserRole) Canonical() Role { return ResolveRole(u.Role) }

// Known reports whether raw is one of the values the role store accepts.
func (raw RawRole) Known() bool {
	switch raw {
	case RawRoleAdmin, RawRoleAdministration, RawRoleCitoyen:
		return true
	default:
		return false
	}
}
