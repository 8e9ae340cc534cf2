package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	mockauth "github.com/tracenation/tracenation-api/internal/mocks/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

type decisionLog struct {
	mu  sync.Mutex
	got []domainauth.Decision
}

func (l *decisionLog) add(d domainauth.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, d)
}

func (l *decisionLog) states() []domainauth.GuardState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domainauth.GuardState, len(l.got))
	for i, d := range l.got {
		out[i] = d.State
	}
	return out
}

func TestViewGuard_PendingUntilInitialized(t *testing.T) {
	id := mockauth.NewFakeIdentityService(mockauth.NewSession("u-1", "a@b.c"))
	s := newTestStore(t, id, mockauth.NewMemoryRoleStore(map[string]domainauth.RawRole{"u-1": domainauth.RawRoleAdmin}))
	log := &decisionLog{}

	g := NewViewGuard(ViewGuardOptions{
		Store:    s,
		Guard:    domainauth.NewRouteGuard(domainauth.RequireRole(domainauth.RoleAdmin)),
		Path:     "/audit",
		OnChange: log.add,
	})
	defer g.Close()

	assert.Equal(t, domainauth.GuardPending, g.Decision().State)
	require.NoError(t, s.Initialize(context.Background()))

	assert.Equal(t, domainauth.GuardGranted, g.Decision().State)
	assert.Equal(t, []domainauth.GuardState{domainauth.GuardGranted}, log.states())
}

func TestViewGuard_SignOutLeavesGrantedForEveryRole(t *testing.T) {
	for _, raw := range []domainauth.RawRole{domainauth.RawRoleAdmin, domainauth.RawRoleAdministration, domainauth.RawRoleCitoyen} {
		t.Run(string(raw), func(t *testing.T) {
			id := mockauth.NewFakeIdentityService(mockauth.NewSession("u-1", "a@b.c"))
			s := newTestStore(t, id, mockauth.NewMemoryRoleStore(map[string]domainauth.RawRole{"u-1": raw}))
			require.NoError(t, s.Initialize(context.Background()))

			g := NewViewGuard(ViewGuardOptions{
				Store: s,
				Guard: domainauth.NewRouteGuard(domainauth.Unconstrained()),
				Path:  "/profile",
			})
			defer g.Close()
			require.Equal(t, domainauth.GuardGranted, g.Decision().State)

			require.NoError(t, s.SignOut(context.Background()))

			d := g.Decision()
			assert.Equal(t, domainauth.GuardDeniedUnauthenticated, d.State)
			assert.Equal(t, domainauth.DefaultSignInPath, d.Redirect)
			assert.Equal(t, "/profile", d.From)
		})
	}
}

func TestViewGuard_RoleResolvingIsPending(t *testing.T) {
	id := mockauth.NewFakeIdentityService(nil)
	s := newTestStore(t, id, mockauth.NewMemoryRoleStore(map[string]domainauth.RawRole{"u-2": domainauth.RawRoleAdministration}))
	require.NoError(t, s.Initialize(context.Background()))
	log := &decisionLog{}

	g := NewViewGuard(ViewGuardOptions{
		Store:    s,
		Guard:    domainauth.NewRouteGuard(domainauth.AllowRoles(domainauth.RoleAdmin, domainauth.RoleSuperAdmin)),
		Path:     "/admin/users",
		OnChange: log.add,
	})
	defer g.Close()

	id.Emit(ports.AuthEvent{Kind: ports.EventSignedIn, Session: mockauth.NewSession("u-2", "x@y.z")})
	require.NoError(t, s.Sync(context.Background()))

	assert.Equal(t, []domainauth.GuardState{domainauth.GuardPending, domainauth.GuardGranted}, log.states())
}

func TestViewGuard_CloseStopsNotifications(t *testing.T) {
	id := mockauth.NewFakeIdentityService(nil)
	s := newTestStore(t, id, mockauth.NewMemoryRoleStore(nil))
	require.NoError(t, s.Initialize(context.Background()))
	log := &decisionLog{}

	g := NewViewGuard(ViewGuardOptions{Store: s, Guard: domainauth.NewRouteGuard(domainauth.Unconstrained()), Path: "/", OnChange: log.add})
	g.Close()
	g.Close()

	id.Emit(ports.AuthEvent{Kind: ports.EventSignedIn, Session: mockauth.NewSession("u-1", "a@b.c")})
	require.NoError(t, s.Sync(context.Background()))

	assert.Empty(t, log.states())
}
