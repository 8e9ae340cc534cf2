package httpx

import (
	"context"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/service"
)

// Unexported context key types to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same keys.
type (
	sessionKey struct{}
	stateKey   struct{}
)

type browserSession struct {
	id    string
	store *service.SessionStore
}

// SetSessionInContext returns a child context that carries the browser
// session id and its store.
func SetSessionInContext(ctx context.Context, sid string, store *service.SessionStore) context.Context {
	if store == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, browserSession{id: sid, store: store})
}

// StoreFromContext returns the session store of the request, if any.
func StoreFromContext(ctx context.Context) (*service.SessionStore, bool) {
	bs, ok := ctx.Value(sessionKey{}).(browserSession)
	if !ok || bs.store == nil {
		return nil, false
	}
	return bs.store, true
}

// SessionIDFromContext returns the browser session id of the request, if any.
func SessionIDFromContext(ctx context.Context) string {
	bs, _ := ctx.Value(sessionKey{}).(browserSession)
	return bs.id
}

// setStateInContext records the state a guard granted access with.
func setStateInContext(ctx context.Context, st domainauth.AuthState) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// GrantedStateFromContext returns the AuthState the route guard granted the
// request with. Handlers behind a guard read the user and role from here so
// they act on the same state the decision was made on.
func GrantedStateFromContext(ctx context.Context) (domainauth.AuthState, bool) {
	st, ok := ctx.Value(stateKey{}).(domainauth.AuthState)
	return st, ok
}
