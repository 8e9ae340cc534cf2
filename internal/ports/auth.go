// Package ports defines interfaces (hexagonal ports) for identity, role storage and token persistence.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.
package ports

import (
	"context"
	"errors"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

// AuthEventKind names a session change pushed by the identity service.
type AuthEventKind string

const (
	EventInitialSession AuthEventKind = "INITIAL_SESSION"
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is one session change. Session is nil for EventSignedOut.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *domainauth.Session
}

// AuthStateCallback receives identity events in the order they happened.
// Implementations must return quickly; they run on the emitting goroutine.
type AuthStateCallback func(AuthEvent)

// SignUpOptions carries the confirmation redirect and initial user metadata.
type SignUpOptions struct {
	RedirectTo string
	Metadata   map[string]any
}

// UserAttributes is a partial identity update. Empty fields are left unchanged.
type UserAttributes struct {
	Email    string
	Password string
	Data     map[string]any
}

// IsZero reports whether the update carries no field at all.
func (a UserAttributes) IsZero() bool {
	return a.Email == "" && a.Password == "" && len(a.Data) == 0
}

// IdentityService authenticates credentials and owns the session of one client.
// Errors are classified as *domainauth.Error kinds where the cause is known.
type IdentityService interface {
	// GetSession returns the current persisted session, or nil when there is none.
	GetSession(ctx context.Context) (*domainauth.Session, error)

	// OnAuthStateChange registers cb and returns a function that removes it.
	OnAuthStateChange(cb AuthStateCallback) (unsubscribe func())

	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) error
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, attrs UserAttributes) (*domainauth.User, error)
}

// ErrRoleNotFound is returned by RoleStore.GetRole when the user has no role row.
var ErrRoleNotFound = errors.New("role not found")

// RoleStore reads and writes the stored role of a user.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (domainauth.RawRole, error)
	UpsertRole(ctx context.Context, userID string, role domainauth.RawRole) error
}

// RoleDirectory lists stored roles for administration screens.
type RoleDirectory interface {
	List(ctx context.Context, role domainauth.RawRole, limit, offset int) ([]domainauth.UserRole, error)
}

// ErrSessionNotFound is returned by TokenStore.Get for unknown or expired entries.
var ErrSessionNotFound = errors.New("session not found")

// TokenStore persists the session of a browser between process restarts and registry evictions.
type TokenStore interface {
	Save(ctx context.Context, sid string, sess domainauth.Session) error
	Get(ctx context.Context, sid string) (domainauth.Session, error)
	Delete(ctx context.Context, sid string) error
}

// IdentityFactory builds an IdentityService bound to one browser session id.
type IdentityFactory interface {
	ForSession(sid string) IdentityService
}

// IdentityFactoryFunc adapts a function to IdentityFactory.
type IdentityFactoryFunc func(sid string) IdentityService

// ForSession calls f(sid).
func (f IdentityFactoryFunc) ForSession(sid string) IdentityService { return f(sid) }
