package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRole(t *testing.T) {
	tests := []struct {
		raw  RawRole
		want Role
	}{
		{RawRoleAdministration, RoleSuperAdmin},
		{RawRoleAdmin, RoleAdmin},
		{RawRoleCitoyen, RoleCitoyen},
		{RawRoleNone, RoleCitoyen},
		{"guest", RoleCitoyen},
		{"Admin", RoleCitoyen},
		{" admin", RoleCitoyen},
		{"superadmin", RoleSuperAdmin},
	}

	for _, tt := range tests {
		t.Run(string(tt.raw), func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRole(tt.raw))
		})
	}
}

func TestResolveRole_IdempotentOnCanonicalValues(t *testing.T) {
	inputs := []RawRole{"", "admin", "administration", "citoyen", "superadmin", "root", "ADMINISTRATION"}
	for _, raw := range inputs {
		once := ResolveRole(raw)
		twice := ResolveRole(RawRole(once))
		assert.Equal(t, once, twice, "raw=%q", raw)
		assert.True(t, once.Valid(), "raw=%q", raw)
	}
}

func TestRawRoleFor_RoundTrips(t *testing.T) {
	for _, r := range AllRoles() {
		assert.Equal(t, r, ResolveRole(RawRoleFor(r)))
	}
	assert.Equal(t, RawRoleAdministration, RawRoleFor(RoleSuperAdmin))
	assert.Equal(t, RawRoleCitoyen, RawRoleFor(RoleNone))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("administration")
	assert.True(t, ok)
	assert.Equal(t, RoleSuperAdmin, r)

	r, ok = ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("guest")
	assert.False(t, ok)
}

func TestRole_Label(t *testing.T) {
	assert.Equal(t, "Administrateur", RoleAdmin.Label())
	assert.Equal(t, "Super Admin", RoleSuperAdmin.Label())
	assert.Equal(t, "Citoyen", RoleCitoyen.Label())
	assert.Equal(t, "Inconnu", Role("other").Label())
}

func TestRole_CanAssign(t *testing.T) {
	assert.True(t, RoleSuperAdmin.CanAssign(RoleSuperAdmin))
	assert.True(t, RoleAdmin.CanAssign(RoleAdmin))
	assert.True(t, RoleAdmin.CanAssign(RoleCitoyen))
	assert.False(t, RoleAdmin.CanAssign(RoleSuperAdmin))
	assert.False(t, RoleCitoyen.CanAssign(RoleCitoyen))
	assert.False(t, RoleSuperAdmin.CanAssign("bogus"))
}

func TestRole_CanManage(t *testing.T) {
	tests := []struct {
		name    string
		actor   Role
		current Role
		target  Role
		want    bool
	}{
		{name: "admin promotes citoyen", actor: RoleAdmin, current: RoleCitoyen, target: RoleAdmin, want: true},
		{name: "admin demotes admin", actor: RoleAdmin, current: RoleAdmin, target: RoleCitoyen, want: true},
		{name: "admin demotes superadmin", actor: RoleAdmin, current: RoleSuperAdmin, target: RoleCitoyen, want: false},
		{name: "admin keeps superadmin", actor: RoleAdmin, current: RoleSuperAdmin, target: RoleSuperAdmin, want: false},
		{name: "admin grants superadmin", actor: RoleAdmin, current: RoleCitoyen, target: RoleSuperAdmin, want: false},
		{name: "superadmin demotes superadmin", actor: RoleSuperAdmin, current: RoleSuperAdmin, target: RoleAdmin, want: true},
		{name: "citoyen changes nobody", actor: RoleCitoyen, current: RoleCitoyen, target: RoleCitoyen, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.CanManage(tt.current, tt.target))
		})
	}
}
