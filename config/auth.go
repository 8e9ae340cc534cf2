package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the identity service backing sign-in.
type AuthMode string

const (
	// AuthModeGoTrue talks to a GoTrue-compatible auth server.
	AuthModeGoTrue AuthMode = "gotrue"
	// AuthModeMock uses the in-memory dev identity service (for development only).
	AuthModeMock AuthMode = "mock"
)

const maxRoleFetchRetries = 5

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "gotrue", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: gotrue, mock)", v)
	}
}

// GoTrueConfig contains the auth server connection settings.
type GoTrueConfig struct {
	URL     string `env:"URL"`
	AnonKey string `env:"ANON_KEY"`
	// JWTSecret enables HS256 verification of issued access tokens.
	JWTSecret string `env:"JWT_SECRET"`
	// JWKSURL enables asymmetric verification; it wins over JWTSecret.
	JWKSURL string        `env:"JWKS_URL"`
	Issuer  string        `env:"ISSUER"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

// DevAuthConfig controls the in-memory identity service.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	// Users is "email:password:role;..." with an optional role.
	Users               string `env:"USERS"`
	RequireConfirmation bool   `env:"REQUIRE_CONFIRMATION" envDefault:"false"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity service to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"gotrue"`

	GoTrue  GoTrueConfig  `envPrefix:"GOTRUE_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SignUpRedirectURL is where confirmation emails send new users.
	SignUpRedirectURL string `env:"AUTH_SIGNUP_REDIRECT_URL"`

	// RoleFetchRetries is the number of retries after a failed role lookup.
	// Zero means a single attempt.
	RoleFetchRetries int           `env:"ROLE_FETCH_RETRIES" envDefault:"0"`
	RoleFetchBackoff time.Duration `env:"ROLE_FETCH_BACKOFF" envDefault:"200ms"`
	RoleFetchTimeout time.Duration `env:"ROLE_FETCH_TIMEOUT" envDefault:"5s"`

	// RoleCacheTTL caches role lookups in process. Zero disables the cache.
	RoleCacheTTL time.Duration `env:"ROLE_CACHE_TTL" envDefault:"0s"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.GoTrue.URL = strings.TrimSuffix(strings.TrimSpace(a.GoTrue.URL), "/")
	a.GoTrue.JWKSURL = strings.TrimSpace(a.GoTrue.JWKSURL)
	if a.GoTrue.Timeout <= 0 {
		a.GoTrue.Timeout = 10 * time.Second
	}
	if a.RoleFetchRetries < 0 {
		a.RoleFetchRetries = 0
	}
	if a.RoleFetchRetries > maxRoleFetchRetries {
		a.RoleFetchRetries = maxRoleFetchRetries
	}
	if a.RoleFetchBackoff <= 0 {
		a.RoleFetchBackoff = 200 * time.Millisecond
	}
	if a.RoleFetchTimeout <= 0 {
		a.RoleFetchTimeout = 5 * time.Second
	}
	if a.RoleCacheTTL < 0 {
		a.RoleCacheTTL = 0
	}
}

// Validate checks the settings required by the selected mode.
func (a *AuthConfig) Validate() error {
	if a.Mode != AuthModeGoTrue {
		return nil
	}
	var errs []error
	if a.GoTrue.URL == "" {
		errs = append(errs, errors.New("GOTRUE_URL is required when AUTH_MODE=gotrue"))
	}
	if a.GoTrue.AnonKey == "" {
		errs = append(errs, errors.New("GOTRUE_ANON_KEY is required when AUTH_MODE=gotrue"))
	}
	return errors.Join(errs...)
}

// VerifiesTokens reports whether issued access tokens are checked locally.
func (a *AuthConfig) VerifiesTokens() bool {
	return a.GoTrue.JWKSURL != "" || a.GoTrue.JWTSecret != ""
}
