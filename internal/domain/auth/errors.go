package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing the auth core boundary.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindNetworkFailure     ErrorKind = "network_failure"
	KindUnverifiedAccount  ErrorKind = "unverified_account"
	KindNoActiveSession    ErrorKind = "no_active_session"
	KindRoleFetchFailure   ErrorKind = "role_fetch_failure"
	KindRoleUpsertFailure  ErrorKind = "role_upsert_failure"
	KindUnknown            ErrorKind = "unknown"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrNetworkFailure     = &Error{Kind: KindNetworkFailure, Message: "identity service unreachable"}
	ErrUnverifiedAccount  = &Error{Kind: KindUnverifiedAccount, Message: "account email not confirmed"}
	ErrNoActiveSession    = &Error{Kind: KindNoActiveSession, Message: "no active session"}
	ErrRoleFetchFailure   = &Error{Kind: KindRoleFetchFailure, Message: "role fetch failed"}
	ErrRoleUpsertFailure  = &Error{Kind: KindRoleUpsertFailure, Message: "role update failed"}
)

// Error is a classified auth failure with an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same kind so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError wraps cause under kind with a message.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
