package auth

import "fmt"

// Fixed redirect targets for denied views.
const (
	DefaultSignInPath       = "/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// GuardState is the state of a guarded view.
type GuardState int

const (
	GuardPending GuardState = iota
	GuardDeniedUnauthenticated
	GuardDeniedUnauthorized
	GuardGranted
)

func (s GuardState) String() string {
	switch s {
	case GuardPending:
		return "pending"
	case GuardDeniedUnauthenticated:
		return "denied_unauthenticated"
	case GuardDeniedUnauthorized:
		return "denied_unauthorized"
	case GuardGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s GuardState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *GuardState) UnmarshalText(text []byte) error {
	for _, st := range []GuardState{GuardPending, GuardDeniedUnauthenticated, GuardDeniedUnauthorized, GuardGranted} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown guard state %q", text)
}

// Decision is the outcome of evaluating a guard against an AuthState.
// Redirect is empty for Pending and Granted. From carries the originally
// requested path for sign-in redirects.
type Decision struct {
	State    GuardState `json:"state"`
	Redirect string     `json:"redirect,omitempty"`
	From     string     `json:"from,omitempty"`
}

// Renders reports whether protected content may be shown.
func (d Decision) Renders() bool { return d.State == GuardGranted }

// RouteGuard gates one view. Zero-valued paths fall back to the defaults.
type RouteGuard struct {
	Constraint       RouteConstraint
	SignInPath       string
	UnauthorizedPath string
}

// NewRouteGuard builds a guard for c with the default redirect targets.
func NewRouteGuard(c RouteConstraint) RouteGuard {
	return RouteGuard{
		Constraint:       c,
		SignInPath:       DefaultSignInPath,
		UnauthorizedPath: DefaultUnauthorizedPath,
	}
}

// Evaluate maps st to a decision for a request of requestedPath.
// While loading it never grants and never redirects.
func (g RouteGuard) Evaluate(st AuthState, requestedPath string) Decision {
	if st.Loading {
		return Decision{State: GuardPending}
	}

	if st.User == nil {
		return Decision{
			State:    GuardDeniedUnauthenticated,
			Redirect: g.signInPath(),
			From:     requestedPath,
		}
	}

	if !IsAuthorized(st.Role, g.Constraint) {
		return Decision{
			State:    GuardDeniedUnauthorized,
			Redirect: g.unauthorizedPath(),
		}
	}

	return Decision{State: GuardGranted}
}

func (g RouteGuard) signInPath() string {
	if g.SignInPath == "" {
		return DefaultSignInPath
	}
	return g.SignInPath
}

func (g RouteGuard) unauthorizedPath() string {
	if g.UnauthorizedPath == "" {
		return DefaultUnauthorizedPath
	}
	return g.UnauthorizedPath
}
