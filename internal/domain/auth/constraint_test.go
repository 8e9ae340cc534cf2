package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthorized(t *testing.T) {
	everyRole := []Role{RoleNone, RoleCitoyen, RoleAdmin, RoleSuperAdmin}

	tests := []struct {
		name       string
		constraint RouteConstraint
		granted    []Role
	}{
		{
			name:       "unconstrained",
			constraint: Unconstrained(),
			granted:    everyRole,
		},
		{
			name:       "required admin includes superadmin",
			constraint: RequireRole(RoleAdmin),
			granted:    []Role{RoleAdmin, RoleSuperAdmin},
		},
		{
			name:       "required superadmin",
			constraint: RequireRole(RoleSuperAdmin),
			granted:    []Role{RoleSuperAdmin},
		},
		{
			name:       "required citoyen is exact",
			constraint: RequireRole(RoleCitoyen),
			granted:    []Role{RoleCitoyen},
		},
		{
			name:       "allowed admin and superadmin",
			constraint: AllowRoles(RoleAdmin, RoleSuperAdmin),
			granted:    []Role{RoleAdmin, RoleSuperAdmin},
		},
		{
			name:       "allowed citoyen only",
			constraint: AllowRoles(RoleCitoyen),
			granted:    []Role{RoleCitoyen},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, role := range everyRole {
				want := false
				for _, g := range tt.granted {
					if g == role {
						want = true
					}
				}
				assert.Equal(t, want, IsAuthorized(role, tt.constraint), "role=%q", role)
			}
		})
	}
}

func TestIsAuthorized_AllowedRolesWinOverRequiredRole(t *testing.T) {
	c := RouteConstraint{
		RequiredRole: RoleSuperAdmin,
		AllowedRoles: []Role{RoleCitoyen},
	}

	assert.True(t, IsAuthorized(RoleCitoyen, c))
	assert.False(t, IsAuthorized(RoleSuperAdmin, c))

	c = RouteConstraint{
		RequiredRole: RoleCitoyen,
		AllowedRoles: []Role{RoleAdmin, RoleSuperAdmin},
	}
	assert.True(t, IsAuthorized(RoleAdmin, c))
	assert.False(t, IsAuthorized(RoleCitoyen, c))
}

func TestRouteConstraint_String(t *testing.T) {
	assert.Equal(t, "none", Unconstrained().String())
	assert.Equal(t, "required:admin", RequireRole(RoleAdmin).String())
	assert.Equal(t, "allowed:admin,superadmin", AllowRoles(RoleAdmin, RoleSuperAdmin).String())
	assert.True(t, Unconstrained().IsUnconstrained())
	assert.False(t, RequireRole(RoleAdmin).IsUnconstrained())
}
