// Package auth contains domain-level types for authentication, roles and route gating.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"maps"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// User is the identity record returned by the identity service.
// Values handed out in an AuthState are never mutated; updates produce a new User.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataFullName is the metadata key holding the user's display name.
const MetadataFullName = "full_name"

// Clone returns a deep-enough copy so callers can't alias the metadata map.
func (u User) Clone() User {
	u.Metadata = maps.Clone(u.Metadata)
	return u
}

// FullName returns the full_name metadata value, if any.
func (u User) FullName() string {
	if v, ok := u.Metadata[MetadataFullName].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// DisplayName is the short label shown in the account menu: the email local part,
// falling back to "Mon compte".
func (u User) DisplayName() string {
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	if u.Email != "" {
		return u.Email
	}
	return "Mon compte"
}

// Session is the server-issued proof of authentication held by the session store.
type Session struct {
	Token *oauth2.Token `json:"token"`
	User  User          `json:"user"`
}

// ExpiresAt returns the token expiry, zero when unknown.
func (s Session) ExpiresAt() time.Time {
	if s.Token == nil {
		return time.Time{}
	}
	return s.Token.Expiry
}

// Valid reports whether the session carries a usable, unexpired access token.
func (s Session) Valid() bool {
	return s.Token != nil && s.Token.Valid() && s.User.ID != ""
}

// Phase is the lifecycle phase of an AuthState.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// AuthState is the snapshot consumed by guards, navigation and handlers.
// Exactly one phase holds: initializing (Loading), authenticated (User and Role set)
// or anonymous (neither set).
type AuthState struct {
	User    *User `json:"user"`
	Role    Role  `json:"role,omitempty"`
	Loading bool  `json:"loading"`
}

// InitialState is the state every session store starts in.
func InitialState() AuthState { return AuthState{Loading: true} }

// AnonymousState is the settled state without a user.
func AnonymousState() AuthState { return AuthState{} }

// AuthenticatedState builds a settled state for u with the given role.
// An absent role is replaced by the least privileged one.
func AuthenticatedState(u User, role Role) AuthState {
	if role == RoleNone {
		role = RoleCitoyen
	}
	cp := u.Clone()
	return AuthState{User: &cp, Role: role}
}

// Phase derives the lifecycle phase.
func (s AuthState) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseInitializing
	case s.User != nil && s.Role != RoleNone:
		return PhaseAuthenticated
	default:
		return PhaseAnonymous
	}
}

// Authenticated reports whether a user is present and the state is settled.
func (s AuthState) Authenticated() bool {
	return s.Phase() == PhaseAuthenticated
}

// UserID returns the current user id or "".
func (s AuthState) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}
