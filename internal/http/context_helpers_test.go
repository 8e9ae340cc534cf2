package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

func TestSessionContext(t *testing.T) {
	_, ok := StoreFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, SessionIDFromContext(context.Background()))

	// A nil store is never bound.
	ctx := SetSessionInContext(context.Background(), "sid", nil)
	_, ok = StoreFromContext(ctx)
	assert.False(t, ok)

	store, _ := newReadyStore(t, nil, nil)
	ctx = SetSessionInContext(context.Background(), "sid-1", store)
	got, ok := StoreFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, store, got)
	assert.Equal(t, "sid-1", SessionIDFromContext(ctx))
}

func TestGrantedStateFromContext(t *testing.T) {
	_, ok := GrantedStateFromContext(context.Background())
	assert.False(t, ok)

	st := domainauth.AuthenticatedState(domainauth.User{ID: "u-1", Email: "a@tracenation.test"}, domainauth.RoleAdmin)
	got, ok := GrantedStateFromContext(setStateInContext(context.Background(), st))
	assert.True(t, ok)
	assert.Equal(t, "u-1", got.UserID())
	assert.Equal(t, domainauth.RoleAdmin, got.Role)
}
