package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	apperrors "github.com/tracenation/tracenation-api/internal/errors"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/testutil"
)

func TestUserRoleRepo_GetMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUserRoleRepo(db)

	_, err := repo.GetRole(context.Background(), "nobody")
	assert.ErrorIs(t, err, ports.ErrRoleNotFound)
}

func TestUserRoleRepo_UpsertThenGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tp := NewFixedTimeProvider(created)
	repo := NewUserRoleRepoWithTimeProvider(db, tp)
	ctx := context.Background()

	rec, err := repo.Upsert(ctx, "u-1", domainauth.RawRoleCitoyen)
	require.NoError(t, err)
	assert.Equal(t, "u-1", rec.UserID)
	assert.True(t, rec.CreatedAt.Equal(created))

	tp.AddTime(time.Hour)
	require.NoError(t, repo.UpsertRole(ctx, "u-1", domainauth.RawRoleAdministration))

	got, err := repo.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdministration, got.Role)
	assert.Equal(t, domainauth.RoleSuperAdmin, got.Canonical())
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(created.Add(time.Hour)))

	raw, err := repo.GetRole(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RawRoleAdministration, raw)
}

func TestUserRoleRepo_UpsertRejectsInvalidInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewUserRoleRepo(db)
	ctx := context.Background()

	err := repo.UpsertRole(ctx, "u-1", domainauth.RawRole("superadmin"))
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "role", apperrors.GetField(err))

	err = repo.UpsertRole(ctx, "  ", domainauth.RawRoleAdmin)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUserRoleRepo_CheckConstraintMapsToValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)

	_, err := db.ExecContext(context.Background(), `INSERT INTO user_roles (user_id, role) VALUES ('u-x', 'owner')`)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(apperrors.MapDBError(err)))
}

func TestUserRoleRepo_ListAndDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tp := NewFixedTimeProvider(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := NewUserRoleRepoWithTimeProvider(db, tp)
	ctx := context.Background()

	for _, seed := range []struct {
		id   string
		role domainauth.RawRole
	}{
		{"u-1", domainauth.RawRoleCitoyen},
		{"u-2", domainauth.RawRoleAdmin},
		{"u-3", domainauth.RawRoleAdmin},
	} {
		tp.AddTime(time.Minute)
		require.NoError(t, repo.UpsertRole(ctx, seed.id, seed.role))
	}

	all, err := repo.List(ctx, domainauth.RawRoleNone, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "u-3", all[0].UserID)

	admins, err := repo.List(ctx, domainauth.RawRoleAdmin, 1, 1)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "u-2", admins[0].UserID)

	deleted, err := repo.Delete(ctx, "u-2")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "u-2")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.GetRole(ctx, "u-2")
	assert.ErrorIs(t, err, ports.ErrRoleNotFound)
}
