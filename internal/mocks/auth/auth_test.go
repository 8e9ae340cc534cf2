package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

func TestFakeIdentityService_EmitsInSubscriptionOrder(t *testing.T) {
	f := NewFakeIdentityService(nil)
	var got []string
	unsubA := f.OnAuthStateChange(func(ev ports.AuthEvent) { got = append(got, "a:"+string(ev.Kind)) })
	f.OnAuthStateChange(func(ev ports.AuthEvent) { got = append(got, "b:"+string(ev.Kind)) })

	require.NoError(t, f.SignInWithPassword(context.Background(), "awa@tracker.sn", "pw"))
	unsubA()
	require.NoError(t, f.SignOut(context.Background()))

	assert.Equal(t, []string{"a:SIGNED_IN", "b:SIGNED_IN", "b:SIGNED_OUT"}, got)
	assert.Equal(t, 1, f.SubscriberCount())
}

func TestFakeIdentityService_GetSessionTracksEvents(t *testing.T) {
	f := NewFakeIdentityService(nil)
	ctx := context.Background()

	sess, err := f.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.NoError(t, f.SignInWithPassword(ctx, "a@b.c", "pw"))
	sess, err = f.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "a@b.c", sess.User.Email)

	f.GetSessionErr = domainauth.ErrNetworkFailure
	_, err = f.GetSession(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNetworkFailure)
}

func TestFakeIdentityService_UpdateUserNeedsSession(t *testing.T) {
	f := NewFakeIdentityService(nil)
	_, err := f.UpdateUser(context.Background(), ports.UserAttributes{Password: "x"})
	assert.ErrorIs(t, err, domainauth.ErrNoActiveSession)

	f = NewFakeIdentityService(NewSession("u-1", "old@tracker.sn"))
	u, err := f.UpdateUser(context.Background(), ports.UserAttributes{
		Email: "new@tracker.sn",
		Data:  map[string]any{domainauth.MetadataFullName: "Awa Diop"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new@tracker.sn", u.Email)
	assert.Equal(t, "Awa Diop", u.FullName())
}

func TestMemoryTokenStore(t *testing.T) {
	s := NewMemoryTokenStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "sid")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	require.NoError(t, s.Save(ctx, "sid", *NewSession("u", "u@x.y")))
	got, err := s.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "u", got.User.ID)

	require.NoError(t, s.Delete(ctx, "sid"))
	_, err = s.Get(ctx, "sid")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	assert.Error(t, s.Save(ctx, "", domainauth.Session{}))
}

func TestMemoryRoleStore(t *testing.T) {
	s := NewMemoryRoleStore(map[string]domainauth.RawRole{"u-1": domainauth.RawRoleAdministration})
	ctx := context.Background()

	raw, err := s.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdministration, raw)

	_, err = s.GetRole(ctx, "u-2")
	assert.ErrorIs(t, err, ports.ErrRoleNotFound)

	require.NoError(t, s.UpsertRole(ctx, "u-2", domainauth.RawRoleAdmin))
	raw, err = s.GetRole(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdmin, raw)

	s.UpsertErr = errors.New("db down")
	assert.Error(t, s.UpsertRole(ctx, "u-2", domainauth.RawRoleCitoyen))
}
