package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
	"golang.org/x/oauth2"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityService = (*FakeIdentityService)(nil)
	_ ports.TokenStore      = (*MemoryTokenStore)(nil)
	_ ports.RoleStore       = (*MemoryRoleStore)(nil)
)

// FakeIdentityService is a scriptable identity service. Without overrides it
// behaves like a permissive backend: sign-in succeeds for any credentials and
// emits SIGNED_IN, sign-out emits SIGNED_OUT, updates emit USER_UPDATED.
type FakeIdentityService struct {
	SignInFunc     func(ctx context.Context, email, password string) error
	SignUpFunc     func(ctx context.Context, email, password string, opts ports.SignUpOptions) error
	SignOutFunc    func(ctx context.Context) error
	UpdateUserFunc func(ctx context.Context, attrs ports.UserAttributes) (*domainauth.User, error)

	// GetSessionErr is returned by GetSession when set.
	GetSessionErr error

	mu      sync.Mutex
	session *domainauth.Session
	subs    map[int]ports.AuthStateCallback
	nextSub int
	calls   []string

	emitMu sync.Mutex
}

// NewFakeIdentityService returns a fake with an optional persisted session.
func NewFakeIdentityService(sess *domainauth.Session) *FakeIdentityService {
	return &FakeIdentityService{session: sess, subs: make(map[int]ports.AuthStateCallback)}
}

// NewSession builds a valid one-hour session for a user.
func NewSession(id, email string) *domainauth.Session {
	return &domainauth.Session{
		Token: &oauth2.Token{
			AccessToken:  "access-" + id,
			RefreshToken: "refresh-" + id,
			TokenType:    "bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
		User: domainauth.User{ID: id, Email: email},
	}
}

func (f *FakeIdentityService) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls lists the names of the methods invoked so far.
func (f *FakeIdentityService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// SubscriberCount reports the number of registered callbacks.
func (f *FakeIdentityService) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *FakeIdentityService) GetSession(_ context.Context) (*domainauth.Session, error) {
	f.record("GetSession")
	if f.GetSessionErr != nil {
		return nil, f.GetSessionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	cp := *f.session
	return &cp, nil
}

func (f *FakeIdentityService) OnAuthStateChange(cb ports.AuthStateCallback) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]ports.AuthStateCallback)
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = cb
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Emit delivers ev to every subscriber in registration order and records the
// session it carries as the current one.
func (f *FakeIdentityService) Emit(ev ports.AuthEvent) {
	f.emitMu.Lock()
	defer f.emitMu.Unlock()

	f.mu.Lock()
	if ev.Kind == ports.EventSignedOut {
		f.session = nil
	} else if ev.Session != nil {
		cp := *ev.Session
		f.session = &cp
	}
	cbs := make([]ports.AuthStateCallback, 0, len(f.subs))
	for i := 0; i < f.nextSub; i++ {
		if cb, ok := f.subs[i]; ok {
			cbs = append(cbs, cb)
		}
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

func (f *FakeIdentityService) SignInWithPassword(ctx context.Context, email, password string) error {
	f.record("SignInWithPassword")
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	f.Emit(ports.AuthEvent{Kind: ports.EventSignedIn, Session: NewSession("user-"+email, email)})
	return nil
}

func (f *FakeIdentityService) SignUp(ctx context.Context, email, password string, opts ports.SignUpOptions) error {
	f.record("SignUp")
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, email, password, opts)
	}
	return nil
}

func (f *FakeIdentityService) SignOut(ctx context.Context) error {
	f.record("SignOut")
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	f.Emit(ports.AuthEvent{Kind: ports.EventSignedOut})
	return nil
}

func (f *FakeIdentityService) UpdateUser(ctx context.Context, attrs ports.UserAttributes) (*domainauth.User, error) {
	f.record("UpdateUser")
	if f.UpdateUserFunc != nil {
		return f.UpdateUserFunc(ctx, attrs)
	}

	f.mu.Lock()
	if f.session == nil {
		f.mu.Unlock()
		return nil, domainauth.ErrNoActiveSession
	}
	sess := *f.session
	f.mu.Unlock()

	sess.User = sess.User.Clone()
	if attrs.Email != "" {
		sess.User.Email = attrs.Email
	}
	if len(attrs.Data) > 0 {
		if sess.User.Metadata == nil {
			sess.User.Metadata = make(map[string]any, len(attrs.Data))
		}
		maps.Copy(sess.User.Metadata, attrs.Data)
	}
	f.Emit(ports.AuthEvent{Kind: ports.EventUserUpdated, Session: &sess})
	u := sess.User.Clone()
	return &u, nil
}

// MemoryTokenStore is an in-memory TokenStore for unit tests.
type MemoryTokenStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemoryTokenStore) Save(_ context.Context, sid string, sess domainauth.Session) error {
	if sid == "" {
		return errors.New("session id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = sess
	return nil
}

func (m *MemoryTokenStore) Get(_ context.Context, sid string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sid]
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

// MemoryRoleStore keeps raw roles in a map. Err, when set, fails every call.
type MemoryRoleStore struct {
	Err       error
	UpsertErr error

	mu    sync.Mutex
	roles map[string]domainauth.RawRole
}

// NewMemoryRoleStore seeds a role store with raw roles keyed by user id.
func NewMemoryRoleStore(seed map[string]domainauth.RawRole) *MemoryRoleStore {
	roles := make(map[string]domainauth.RawRole, len(seed))
	maps.Copy(roles, seed)
	return &MemoryRoleStore{roles: roles}
}

func (m *MemoryRoleStore) GetRole(_ context.Context, userID string) (domainauth.RawRole, error) {
	if m.Err != nil {
		return domainauth.RawRoleNone, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.roles[userID]
	if !ok {
		return domainauth.RawRoleNone, ports.ErrRoleNotFound
	}
	return raw, nil
}

func (m *MemoryRoleStore) UpsertRole(_ context.Context, userID string, role domainauth.RawRole) error {
	if m.Err != nil {
		return m.Err
	}
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles == nil {
		m.roles = make(map[string]domainauth.RawRole)
	}
	m.roles[userID] = role
	return nil
}
