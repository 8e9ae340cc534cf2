// Package devauth provides an in-memory IdentityService for local development.
// Accounts are seeded from configuration and passwords are checked with bcrypt.
package devauth

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const (
	defaultTokenTTL   = time.Hour
	minPasswordLength = 6
)

// userNamespace derives stable user ids from emails so persisted sessions
// survive a restart of the dev server.
var userNamespace = uuid.MustParse("6f1f0b5e-8e0c-4a53-9d39-2d1c7f6ad0f1")

var (
	// ErrUserExists is returned when signing up with a registered email.
	ErrUserExists = domainauth.NewError(domainauth.KindUnknown, "user already registered", nil)
	// ErrWeakPassword is returned for passwords shorter than the minimum length.
	ErrWeakPassword = domainauth.NewError(domainauth.KindUnknown,
		fmt.Sprintf("password should be at least %d characters", minPasswordLength), nil)
)

// SeedUser is one account declared in DEV_AUTH_USERS.
type SeedUser struct {
	Email    string
	Password string
	Role     domainauth.RawRole
}

// ID returns the stable user id of the seed account.
func (s SeedUser) ID() string { return UserID(s.Email) }

// UserID returns the id the directory assigns to email.
func UserID(email string) string {
	return uuid.NewSHA1(userNamespace, []byte(normalizeEmail(email))).String()
}

// ParseUsers parses "email:password:role;..." entries. The role part is
// optional and defaults to citoyen; it accepts canonical or stored values.
func ParseUsers(list string) ([]SeedUser, error) {
	var out []SeedUser
	for i, entry := range strings.Split(list, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
			return nil, fmt.Errorf("dev auth user %d: expected email:password[:role]", i+1)
		}
		u := SeedUser{
			Email:    normalizeEmail(parts[0]),
			Password: parts[1],
			Role:     domainauth.RawRoleCitoyen,
		}
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			role, ok := domainauth.ParseRole(strings.TrimSpace(parts[2]))
			if !ok {
				return nil, fmt.Errorf("dev auth user %s: unknown role %q", u.Email, parts[2])
			}
			u.Role = domainauth.RawRoleFor(role)
		}
		out = append(out, u)
	}
	return out, nil
}

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	Users []SeedUser
	// RequireConfirmation keeps new sign-ups unverified until Confirm is called.
	RequireConfirmation bool
	TokenTTL            time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

type account struct {
	user      domainauth.User
	hash      []byte
	confirmed bool
}

// Directory is the account database shared by every browser session.
type Directory struct {
	requireConfirmation bool
	tokenTTL            time.Duration
	cost                int
	now                 func() time.Time

	mu       sync.RWMutex
	accounts map[string]*account // by normalized email
	refresh  map[string]string   // refresh token -> user id
}

// NewDirectory constructs a Directory and hashes the seed passwords.
func NewDirectory(opts DirectoryOptions) (*Directory, error) {
	d := &Directory{
		requireConfirmation: opts.RequireConfirmation,
		tokenTTL:            opts.TokenTTL,
		cost:                opts.BcryptCost,
		now:                 opts.Now,
		accounts:            make(map[string]*account),
		refresh:             make(map[string]string),
	}
	if d.tokenTTL <= 0 {
		d.tokenTTL = defaultTokenTTL
	}
	if d.cost == 0 {
		d.cost = bcrypt.DefaultCost
	}
	if d.now == nil {
		d.now = time.Now
	}
	for _, u := range opts.Users {
		if _, err := d.create(u.Email, u.Password, nil, true); err != nil {
			return nil, fmt.Errorf("seed %s: %w", u.Email, err)
		}
	}
	return d, nil
}

// Confirm marks the account of email as verified.
func (d *Directory) Confirm(email string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.accounts[normalizeEmail(email)]
	if ok {
		acc.confirmed = true
	}
	return ok
}

// Len reports the number of accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}

func (d *Directory) create(email, password string, metadata map[string]any, confirmed bool) (domainauth.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domainauth.User{}, domainauth.ErrInvalidCredentials
	}
	if len(password) < minPasswordLength {
		return domainauth.User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := UserID(email)
	if _, exists := d.accounts[email]; exists {
		return domainauth.User{}, ErrUserExists
	}
	// an account that moved away from this email keeps the derived id
	if _, exists := d.lookup(id); exists {
		return domainauth.User{}, ErrUserExists
	}
	u := domainauth.User{ID: id, Email: email, Metadata: maps.Clone(metadata)}
	d.accounts[email] = &account{user: u, hash: hash, confirmed: confirmed}
	return u.Clone(), nil
}

func (d *Directory) register(email, password string, metadata map[string]any) (domainauth.User, bool, error) {
	u, err := d.create(email, password, metadata, !d.requireConfirmation)
	return u, !d.requireConfirmation, err
}

func (d *Directory) authenticate(email, password string) (domainauth.User, error) {
	d.mu.RLock()
	acc, ok := d.accounts[normalizeEmail(email)]
	var (
		hash      []byte
		confirmed bool
		u         domainauth.User
	)
	if ok {
		hash, confirmed, u = acc.hash, acc.confirmed, acc.user.Clone()
	}
	d.mu.RUnlock()

	if !ok {
		return domainauth.User{}, domainauth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return domainauth.User{}, domainauth.ErrInvalidCredentials
	}
	if !confirmed {
		return domainauth.User{}, domainauth.ErrUnverifiedAccount
	}
	return u, nil
}

func (d *Directory) lookup(userID string) (*account, bool) {
	for _, acc := range d.accounts {
		if acc.user.ID == userID {
			return acc, true
		}
	}
	return nil, false
}

// userByID returns the current record of userID.
func (d *Directory) userByID(userID string) (domainauth.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.lookup(userID)
	if !ok {
		return domainauth.User{}, false
	}
	return acc.user.Clone(), true
}

func (d *Directory) update(userID string, attrs ports.UserAttributes) (domainauth.User, error) {
	var hash []byte
	if attrs.Password != "" {
		if len(attrs.Password) < minPasswordLength {
			return domainauth.User{}, ErrWeakPassword
		}
		h, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), d.cost)
		if err != nil {
			return domainauth.User{}, fmt.Errorf("hash password: %w", err)
		}
		hash = h
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.lookup(userID)
	if !ok {
		return domainauth.User{}, domainauth.ErrNoActiveSession
	}

	next := acc.user.Clone()
	if email := normalizeEmail(attrs.Email); email != "" && email != next.Email {
		if _, taken := d.accounts[email]; taken {
			return domainauth.User{}, ErrUserExists
		}
		delete(d.accounts, next.Email)
		next.Email = email
		d.accounts[email] = acc
	}
	if len(attrs.Data) > 0 {
		if next.Metadata == nil {
			next.Metadata = make(map[string]any, len(attrs.Data))
		}
		maps.Copy(next.Metadata, attrs.Data)
	}
	acc.user = next
	if hash != nil {
		acc.hash = hash
	}
	return next.Clone(), nil
}

func (d *Directory) issue(userID string) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  "dev." + uuid.NewString(),
		TokenType:    "bearer",
		RefreshToken: uuid.NewString(),
		Expiry:       d.now().Add(d.tokenTTL),
	}
	d.mu.Lock()
	d.refresh[tok.RefreshToken] = userID
	d.mu.Unlock()
	return tok
}

// redeem consumes a refresh token. Refresh tokens are single use.
func (d *Directory) redeem(refreshToken string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	userID, ok := d.refresh[refreshToken]
	if !ok {
		return "", errors.New("invalid refresh token")
	}
	delete(d.refresh, refreshToken)
	return userID, nil
}

func (d *Directory) revoke(refreshToken string) {
	d.mu.Lock()
	delete(d.refresh, refreshToken)
	d.mu.Unlock()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
