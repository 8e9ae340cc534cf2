package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestAuthState_Phase(t *testing.T) {
	u := User{ID: "u-1", Email: "jean@example.sn"}

	assert.Equal(t, PhaseInitializing, InitialState().Phase())
	assert.Equal(t, PhaseAnonymous, AnonymousState().Phase())
	assert.Equal(t, PhaseAuthenticated, AuthenticatedState(u, RoleAdmin).Phase())

	// A user without a role is not a settled authenticated state.
	assert.Equal(t, PhaseAnonymous, AuthState{User: &u}.Phase())
	// Loading dominates whatever else is set.
	assert.Equal(t, PhaseInitializing, AuthState{User: &u, Role: RoleAdmin, Loading: true}.Phase())
}

func TestAuthenticatedState_DefaultsAbsentRoleToCitoyen(t *testing.T) {
	st := AuthenticatedState(User{ID: "u-1"}, RoleNone)
	assert.Equal(t, RoleCitoyen, st.Role)
	assert.True(t, st.Authenticated())
}

func TestAuthenticatedState_CopiesMetadata(t *testing.T) {
	u := User{ID: "u-1", Metadata: map[string]any{MetadataFullName: "Awa Diop"}}
	st := AuthenticatedState(u, RoleCitoyen)

	u.Metadata[MetadataFullName] = "changed"
	assert.Equal(t, "Awa Diop", st.User.FullName())
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "awa", User{Email: "awa@tracker.sn"}.DisplayName())
	assert.Equal(t, "Mon compte", User{}.DisplayName())
	assert.Equal(t, "no-at-sign", User{Email: "no-at-sign"}.DisplayName())
}

func TestSession_Valid(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}
	assert.True(t, Session{Token: tok, User: User{ID: "u"}}.Valid())
	assert.False(t, Session{Token: tok}.Valid())
	assert.False(t, Session{User: User{ID: "u"}}.Valid())

	expired := &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(-time.Minute)}
	assert.False(t, Session{Token: expired, User: User{ID: "u"}}.Valid())
}
