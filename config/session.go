package config

import (
	"strings"
	"time"
)

const (
	defaultSessionCookieName = "tn_session"
	maxRegistrySize          = 1_000_000
)

// SessionConfig controls the per-browser session registry, the session
// cookie and how long guards wait for a pending decision.
type SessionConfig struct {
	RegistrySize int           `env:"SESSION_REGISTRY_SIZE" envDefault:"10000"`
	IdleTTL      time.Duration `env:"SESSION_IDLE_TTL"      envDefault:"30m"`
	InitTimeout  time.Duration `env:"SESSION_INIT_TIMEOUT"  envDefault:"10s"`

	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"tn_session"`
	// CookieSecure defaults to true outside dev mode.
	CookieSecure *bool `env:"SESSION_COOKIE_SECURE"`

	// TokenTTL bounds how long persisted tokens are kept in Redis.
	TokenTTL time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"720h"`

	// PendingWait is how long the HTTP guard waits for a pending decision to
	// settle before answering with the loading response.
	PendingWait time.Duration `env:"GUARD_PENDING_WAIT" envDefault:"2s"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize(isDev bool) {
	if s.RegistrySize <= 0 {
		s.RegistrySize = 10000
	}
	if s.RegistrySize > maxRegistrySize {
		s.RegistrySize = maxRegistrySize
	}
	if s.IdleTTL <= 0 {
		s.IdleTTL = 30 * time.Minute
	}
	if s.InitTimeout <= 0 {
		s.InitTimeout = 10 * time.Second
	}
	if s.CookieName = strings.TrimSpace(s.CookieName); s.CookieName == "" {
		s.CookieName = defaultSessionCookieName
	}
	if s.CookieSecure == nil {
		secure := !isDev
		s.CookieSecure = &secure
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = 720 * time.Hour
	}
	if s.PendingWait < 0 {
		s.PendingWait = 0
	}
	if s.PendingWait > 30*time.Second {
		s.PendingWait = 30 * time.Second
	}
}

// SecureCookie reports the effective Secure attribute of the session cookie.
func (s *SessionConfig) SecureCookie() bool {
	return s.CookieSecure != nil && *s.CookieSecure
}
