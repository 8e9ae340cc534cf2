package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracenation/tracenation-api/config"
	"github.com/tracenation/tracenation-api/internal/adapters/authroles"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

func testApp(t *testing.T, store *authroles.StaticRoleStore) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a := newApp()
	a.out = out
	a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	a.openRoles = func(context.Context) (roleAdmin, func(), error) {
		return store, func() {}, nil
	}
	return a, out
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestRoleGet(t *testing.T) {
	store := authroles.NewStaticRoleStore(map[string]domainauth.RawRole{"u-1": "administration"})

	t.Run("stored role", func(t *testing.T) {
		a, out := testApp(t, store)
		require.NoError(t, execute(t, a, "role", "get", "u-1"))
		assert.Contains(t, out.String(), "u-1: superadmin")
		assert.Contains(t, out.String(), `"administration"`)
	})

	t.Run("missing role resolves to citoyen", func(t *testing.T) {
		a, out := testApp(t, store)
		require.NoError(t, execute(t, a, "role", "get", "u-2"))
		assert.Contains(t, out.String(), "no stored role")
		assert.Contains(t, out.String(), "citoyen")
	})
}

func TestRoleSet(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    domainauth.RawRole
		wantErr bool
	}{
		{name: "canonical superadmin", input: "superadmin", want: "administration"},
		{name: "stored value", input: "administration", want: "administration"},
		{name: "admin", input: "admin", want: "admin"},
		{name: "unknown", input: "root", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := authroles.NewStaticRoleStore(nil)
			a, _ := testApp(t, store)
			err := execute(t, a, "role", "set", "u-1", tt.input)
			if tt.wantErr {
				require.Error(t, err)
				_, getErr := store.GetRole(context.Background(), "u-1")
				require.Error(t, getErr)
				return
			}
			require.NoError(t, err)
			got, err := store.GetRole(context.Background(), "u-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleUnset(t *testing.T) {
	store := authroles.NewStaticRoleStore(map[string]domainauth.RawRole{"u-1": "admin"})
	a, out := testApp(t, store)

	require.NoError(t, execute(t, a, "role", "unset", "u-1"))
	assert.Contains(t, out.String(), "role removed")

	out.Reset()
	require.NoError(t, execute(t, a, "role", "unset", "u-1"))
	assert.Contains(t, out.String(), "no stored role")
}

func TestRoleList(t *testing.T) {
	store := authroles.NewStaticRoleStore(map[string]domainauth.RawRole{
		"u-1": "admin",
		"u-2": "citoyen",
		"u-3": "administration",
	})

	t.Run("all", func(t *testing.T) {
		a, out := testApp(t, store)
		require.NoError(t, execute(t, a, "role", "list"))
		for _, id := range []string{"USER ID", "u-1", "u-2", "u-3"} {
			assert.Contains(t, out.String(), id)
		}
	})

	t.Run("filtered by canonical role", func(t *testing.T) {
		a, out := testApp(t, store)
		require.NoError(t, execute(t, a, "role", "list", "--role", "superadmin"))
		assert.Contains(t, out.String(), "u-3")
		assert.NotContains(t, out.String(), "u-1")
		assert.NotContains(t, out.String(), "u-2")
	})

	t.Run("unknown filter", func(t *testing.T) {
		a, _ := testApp(t, store)
		require.Error(t, execute(t, a, "role", "list", "--role", "root"))
	})
}

func TestRoleResolve(t *testing.T) {
	a, out := testApp(t, authroles.NewStaticRoleStore(nil))
	require.NoError(t, execute(t, a, "role", "resolve", "administration"))
	assert.Contains(t, out.String(), "administration -> superadmin")

	out.Reset()
	require.NoError(t, execute(t, a, "role", "resolve", "unknown"))
	assert.Contains(t, out.String(), "unknown -> citoyen")
}

func TestRoleOpenFailure(t *testing.T) {
	a, _ := testApp(t, nil)
	a.openRoles = func(context.Context) (roleAdmin, func(), error) {
		return nil, nil, errors.New("db down")
	}
	err := execute(t, a, "role", "get", "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	a, _ := testApp(t, nil)
	a.loadConfig = func() (config.AppConfig, error) {
		return config.AppConfig{}, nil
	}
	err := execute(t, a, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_ENABLED=false")
}
