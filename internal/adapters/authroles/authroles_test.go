package authroles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/mocks"
	"github.com/tracenation/tracenation-api/internal/ports"
	"go.uber.org/mock/gomock"
)

func TestStaticRoleStore(t *testing.T) {
	seed := map[string]domainauth.RawRole{"u-1": domainauth.RawRoleAdmin}
	s := NewStaticRoleStore(seed)
	ctx := context.Background()

	role, err := s.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdmin, role)

	_, err = s.GetRole(ctx, "u-2")
	assert.ErrorIs(t, err, ports.ErrRoleNotFound)

	require.NoError(t, s.UpsertRole(ctx, "u-2", domainauth.RawRoleAdministration))
	role, err = s.GetRole(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdministration, role)

	err = s.UpsertRole(ctx, "u-2", domainauth.RawRole("superadmin"))
	assert.ErrorIs(t, err, domainauth.ErrRoleUpsertFailure)

	seed["u-3"] = domainauth.RawRoleAdmin
	_, err = s.GetRole(ctx, "u-3")
	assert.ErrorIs(t, err, ports.ErrRoleNotFound, "seed map must be copied")
}

func TestStaticRoleStore_List(t *testing.T) {
	s := NewStaticRoleStore(nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()

	require.NoError(t, s.UpsertRole(ctx, "u-a", domainauth.RawRoleCitoyen))
	require.NoError(t, s.UpsertRole(ctx, "u-b", domainauth.RawRoleAdmin))
	require.NoError(t, s.UpsertRole(ctx, "u-c", domainauth.RawRoleCitoyen))

	all, err := s.List(ctx, domainauth.RawRoleNone, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"u-c", "u-b", "u-a"}, []string{all[0].UserID, all[1].UserID, all[2].UserID})

	citizens, err := s.List(ctx, domainauth.RawRoleCitoyen, 1, 1)
	require.NoError(t, err)
	require.Len(t, citizens, 1)
	assert.Equal(t, "u-a", citizens[0].UserID)

	none, err := s.List(ctx, domainauth.RawRoleNone, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.UpsertRole(ctx, "u-a", domainauth.RawRoleAdministration))
	all, err = s.List(ctx, domainauth.RawRoleNone, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "u-a", all[0].UserID)
	assert.True(t, all[0].CreatedAt.Before(all[0].UpdatedAt))
}

func TestCachedRoleStore_CachesHitsAndMisses(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockRoleStore(ctrl)
	ctx := context.Background()

	next.EXPECT().GetRole(gomock.Any(), "u-1").Return(domainauth.RawRoleAdmin, nil).Times(1)
	next.EXPECT().GetRole(gomock.Any(), "u-2").Return(domainauth.RawRoleNone, ports.ErrRoleNotFound).Times(1)

	c := NewCachedRoleStore(next, 0, time.Minute)
	for range 3 {
		role, err := c.GetRole(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, domainauth.RawRoleAdmin, role)

		_, err = c.GetRole(ctx, "u-2")
		assert.ErrorIs(t, err, ports.ErrRoleNotFound)
	}
}

func TestCachedRoleStore_FailuresAreNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockRoleStore(ctrl)
	boom := errors.New("db down")

	gomock.InOrder(
		next.EXPECT().GetRole(gomock.Any(), "u-1").Return(domainauth.RawRoleNone, boom),
		next.EXPECT().GetRole(gomock.Any(), "u-1").Return(domainauth.RawRoleCitoyen, nil),
	)

	c := NewCachedRoleStore(next, 8, time.Minute)
	_, err := c.GetRole(context.Background(), "u-1")
	assert.ErrorIs(t, err, boom)
	role, err := c.GetRole(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleCitoyen, role)
}

func TestCachedRoleStore_UpsertUpdatesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockRoleStore(ctrl)
	ctx := context.Background()

	next.EXPECT().GetRole(gomock.Any(), "u-1").Return(domainauth.RawRoleCitoyen, nil).Times(1)
	next.EXPECT().UpsertRole(gomock.Any(), "u-1", domainauth.RawRoleAdmin).Return(nil)
	next.EXPECT().UpsertRole(gomock.Any(), "u-1", domainauth.RawRoleAdministration).Return(errors.New("write failed"))
	next.EXPECT().GetRole(gomock.Any(), "u-1").Return(domainauth.RawRoleAdmin, nil).Times(1)

	c := NewCachedRoleStore(next, 8, time.Minute)
	_, err := c.GetRole(ctx, "u-1")
	require.NoError(t, err)

	require.NoError(t, c.UpsertRole(ctx, "u-1", domainauth.RawRoleAdmin))
	role, err := c.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdmin, role)

	assert.Error(t, c.UpsertRole(ctx, "u-1", domainauth.RawRoleAdministration))
	role, err = c.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdmin, role)

	c.Invalidate("u-1")
}
