package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	mockauth "github.com/tracenation/tracenation-api/internal/mocks/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

type fakeFactory struct {
	mu       sync.Mutex
	sessions map[string]*domainauth.Session
	built    map[string]*mockauth.FakeIdentityService
}

func (f *fakeFactory) ForSession(sid string) ports.IdentityService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.built == nil {
		f.built = make(map[string]*mockauth.FakeIdentityService)
	}
	id := mockauth.NewFakeIdentityService(f.sessions[sid])
	f.built[sid] = id
	return id
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func waitReady(t *testing.T, s *SessionStore) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("store never became ready")
	}
}

func TestSessionRegistry_AcquireCreatesAndReuses(t *testing.T) {
	factory := &fakeFactory{sessions: map[string]*domainauth.Session{"sid-1": mockauth.NewSession("u-1", "a@b.c")}}
	r := NewSessionRegistry(SessionRegistryOptions{
		Identities: factory,
		Roles:      mockauth.NewMemoryRoleStore(map[string]domainauth.RawRole{"u-1": domainauth.RawRoleAdmin}),
	})
	defer r.Close()

	s1, err := r.Acquire("sid-1")
	require.NoError(t, err)
	waitReady(t, s1)

	s2, err := r.Acquire("sid-1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, factory.count())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, domainauth.RoleAdmin, s1.Snapshot().Role)

	got, ok := r.Get("sid-1")
	assert.True(t, ok)
	assert.Same(t, s1, got)
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestSessionRegistry_SizeBoundDisposesOldest(t *testing.T) {
	r := NewSessionRegistry(SessionRegistryOptions{
		Identities: &fakeFactory{},
		Roles:      mockauth.NewMemoryRoleStore(nil),
		Size:       1,
	})
	defer r.Close()

	first, err := r.Acquire("sid-1")
	require.NoError(t, err)
	_, err = r.Acquire("sid-2")
	require.NoError(t, err)

	assert.True(t, first.Disposed())
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("sid-1")
	assert.False(t, ok)
}

func TestSessionRegistry_IdleTTLExpires(t *testing.T) {
	r := NewSessionRegistry(SessionRegistryOptions{
		Identities: &fakeFactory{},
		Roles:      mockauth.NewMemoryRoleStore(nil),
		IdleTTL:    20 * time.Millisecond,
	})
	defer r.Close()

	first, err := r.Acquire("sid-1")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	second, err := r.Acquire("sid-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, first.Disposed())
	assert.False(t, second.Disposed())
}

func TestSessionRegistry_RemoveAndClose(t *testing.T) {
	r := NewSessionRegistry(SessionRegistryOptions{Identities: &fakeFactory{}, Roles: mockauth.NewMemoryRoleStore(nil)})

	s, err := r.Acquire("sid-1")
	require.NoError(t, err)
	r.Remove("sid-1")
	assert.True(t, s.Disposed())
	assert.Equal(t, 0, r.Len())

	other, err := r.Acquire("sid-2")
	require.NoError(t, err)
	r.Close()
	r.Close()
	assert.True(t, other.Disposed())

	_, err = r.Acquire("sid-3")
	assert.ErrorIs(t, err, ErrStoreDisposed)
}

func TestSessionRegistry_StoresAreIndependent(t *testing.T) {
	factory := &fakeFactory{sessions: map[string]*domainauth.Session{"sid-a": mockauth.NewSession("u-a", "a@b.c")}}
	r := NewSessionRegistry(SessionRegistryOptions{Identities: factory, Roles: mockauth.NewMemoryRoleStore(nil)})
	defer r.Close()

	a, err := r.Acquire("sid-a")
	require.NoError(t, err)
	b, err := r.Acquire("sid-b")
	require.NoError(t, err)
	waitReady(t, a)
	waitReady(t, b)

	assert.Equal(t, "u-a", a.Snapshot().UserID())
	assert.Equal(t, domainauth.PhaseAnonymous, b.Snapshot().Phase())

	_, err = b.WaitFor(context.Background(), func(st domainauth.AuthState) bool { return !st.Loading })
	assert.NoError(t, err)
}

func TestSessionIDs(t *testing.T) {
	sid := NewSessionID()
	assert.True(t, ValidSessionID(sid))
	assert.NotEqual(t, sid, NewSessionID())
	assert.False(t, ValidSessionID("not-a-uuid"))
	assert.False(t, ValidSessionID(""))
}
