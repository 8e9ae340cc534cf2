package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Classified auth errors report their kind; anything else is named after the
// innermost concrete type in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var authErr *domainauth.Error
	if goerrors.As(err, &authErr) {
		return string(authErr.Kind)
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
