package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
	"github.com/tracenation/tracenation-api/internal/ports"
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("session store already initialized")
	// ErrStoreDisposed is returned once Dispose has been called.
	ErrStoreDisposed = errors.New("session store disposed")
)

const (
	defaultRoleFetchBackoff = 200 * time.Millisecond
	defaultRoleFetchTimeout = 5 * time.Second
)

// SessionStoreOptions groups dependencies for SessionStore.
type SessionStoreOptions struct {
	Identity ports.IdentityService
	Roles    ports.RoleStore

	// SignUpRedirectTo is the confirmation link target passed on sign-up.
	SignUpRedirectTo string

	// RoleFetchRetries bounds extra role fetch attempts. Zero means a single attempt.
	RoleFetchRetries int
	RoleFetchBackoff time.Duration
	RoleFetchTimeout time.Duration

	Metrics *metrics.AuthMetrics
	Logger  *slog.Logger
}

// ChangeReason tells listeners what caused a state change.
type ChangeReason string

const (
	ReasonInitialSession ChangeReason = ChangeReason(ports.EventInitialSession)
	ReasonSignedIn       ChangeReason = ChangeReason(ports.EventSignedIn)
	ReasonSignedOut      ChangeReason = ChangeReason(ports.EventSignedOut)
	ReasonTokenRefreshed ChangeReason = ChangeReason(ports.EventTokenRefreshed)
	ReasonUserUpdated    ChangeReason = ChangeReason(ports.EventUserUpdated)
	ReasonRoleResolving  ChangeReason = "ROLE_RESOLVING"
	ReasonRoleUpdated    ChangeReason = "ROLE_UPDATED"
)

// Change is delivered to listeners after each applied state transition.
type Change struct {
	Reason ChangeReason
	State  domainauth.AuthState
}

// Listener observes state changes. It runs on the store's event loop and must
// not call SignOut, UpdateUser, Sync or WaitFor on the same store.
type Listener func(Change)

// ProfileData is the profile part of a user update. A RoleNone role leaves the stored role alone.
type ProfileData struct {
	FullName string
	Role     domainauth.Role
	Extra    map[string]any
}

func (p *ProfileData) metadata() map[string]any {
	if p == nil {
		return nil
	}
	out := maps.Clone(p.Extra)
	if p.FullName != "" {
		if out == nil {
			out = make(map[string]any, 1)
		}
		out[domainauth.MetadataFullName] = p.FullName
	}
	// The role lives in the role store only.
	delete(out, "role")
	return out
}

// UserUpdate is a partial update of the signed-in user. Empty fields are unchanged.
type UserUpdate struct {
	Email    string
	Password string
	Profile  *ProfileData
}

// SessionStore is the single source of truth for the AuthState of one client.
// One event-loop goroutine applies identity events and local mutations in
// arrival order; readers get snapshots.
type SessionStore struct {
	identity       ports.IdentityService
	roles          ports.RoleStore
	signUpRedirect string
	retries        int
	backoffBase    time.Duration
	fetchTimeout   time.Duration
	metrics        *metrics.AuthMetrics
	logger         *slog.Logger

	mu            sync.RWMutex
	state         domainauth.AuthState
	session       *domainauth.Session
	unsubIdentity func()

	listenersMu sync.Mutex
	listeners   []*subscription

	queue     *eventQueue
	ready     chan struct{}
	readyOnce sync.Once
	settled   bool // loop-owned
	// generation counts acquired sessions; a sign-out only clears the
	// session generation it started against.
	generation atomic.Uint64

	initialized atomic.Bool
	disposed    atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	stop        chan struct{}
	done        chan struct{}
}

type subscription struct {
	fn     Listener
	active atomic.Bool
}

// NewSessionStore constructs a SessionStore in the initializing phase and starts its event loop.
func NewSessionStore(opts SessionStoreOptions) *SessionStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoffBase := opts.RoleFetchBackoff
	if backoffBase <= 0 {
		backoffBase = defaultRoleFetchBackoff
	}
	fetchTimeout := opts.RoleFetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultRoleFetchTimeout
	}
	retries := max(opts.RoleFetchRetries, 0)

	ctx, cancel := context.WithCancel(context.Background())
	s := &SessionStore{
		identity:       opts.Identity,
		roles:          opts.Roles,
		signUpRedirect: opts.SignUpRedirectTo,
		retries:        retries,
		backoffBase:    backoffBase,
		fetchTimeout:   fetchTimeout,
		metrics:        opts.Metrics,
		logger:         logger.With("component", "session_store"),
		state:          domainauth.InitialState(),
		queue:          newEventQueue(),
		ready:          make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go s.run()
	return s
}

// Initialize subscribes to the identity service and restores the persisted
// session. It returns once the restored state has been applied. A failed
// restore leaves the store anonymous and is returned for logging.
func (s *SessionStore) Initialize(ctx context.Context) error {
	if s.disposed.Load() {
		return ErrStoreDisposed
	}
	if !s.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	unsub := s.identity.OnAuthStateChange(s.onIdentityEvent)
	s.mu.Lock()
	if s.disposed.Load() {
		s.mu.Unlock()
		unsub()
		return ErrStoreDisposed
	}
	s.unsubIdentity = unsub
	s.mu.Unlock()

	start := time.Now()
	sess, err := s.identity.GetSession(ctx)
	s.metrics.IdentityCall("get_session", time.Since(start), err)
	if err != nil {
		s.logger.WarnContext(ctx, "session restore failed", "error", err)
	}

	if werr := s.wait(ctx, s.enqueue(storeEvent{kind: evRestore, session: sess, err: err})); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// Subscribe registers l for every subsequent change and returns its release
// function. Releasing is idempotent and never cancels identity calls in flight.
func (s *SessionStore) Subscribe(l Listener) (unsubscribe func()) {
	sub := &subscription{fn: l}
	sub.active.Store(true)

	s.listenersMu.Lock()
	s.listeners = append(s.listeners, sub)
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			for i, other := range s.listeners {
				if other == sub {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Snapshot returns a copy of the current state.
func (s *SessionStore) Snapshot() domainauth.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// Ready is closed the first time the state settles out of initializing.
func (s *SessionStore) Ready() <-chan struct{} { return s.ready }

// WaitFor blocks until pred holds for the current state, ctx ends or the store is disposed.
// It returns the last observed state.
func (s *SessionStore) WaitFor(ctx context.Context, pred func(domainauth.AuthState) bool) (domainauth.AuthState, error) {
	wake := make(chan struct{}, 1)
	unsub := s.Subscribe(func(Change) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsub()

	for {
		st := s.Snapshot()
		if pred(st) {
			return st, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return st, ctx.Err()
		case <-s.done:
			return st, ErrStoreDisposed
		}
	}
}

// Sync waits until every change queued before the call has been applied.
func (s *SessionStore) Sync(ctx context.Context) error {
	return s.wait(ctx, s.enqueue(storeEvent{kind: evBarrier}))
}

// SignIn delegates to the identity service. The resulting SIGNED_IN event,
// not this call, updates the state.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) error {
	start := time.Now()
	err := s.identity.SignInWithPassword(ctx, email, password)
	s.metrics.IdentityCall("sign_in", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignUp registers a new account. It never creates a session by itself since
// the account may need email confirmation first.
func (s *SessionStore) SignUp(ctx context.Context, email, password, displayName string) error {
	opts := ports.SignUpOptions{RedirectTo: s.signUpRedirect}
	if displayName != "" {
		opts.Metadata = map[string]any{domainauth.MetadataFullName: displayName}
	}

	start := time.Now()
	err := s.identity.SignUp(ctx, email, password, opts)
	s.metrics.IdentityCall("sign_up", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	return nil
}

// SignOut signs out remotely and clears the local state only on success.
// A session acquired while the call was in flight, such as a sign-in from
// another tab, is newer than the sign-out and is kept.
func (s *SessionStore) SignOut(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		s.logger.DebugContext(ctx, "sign out started before pending changes applied", "error", err)
	}
	gen := s.generation.Load()

	start := time.Now()
	err := s.identity.SignOut(ctx)
	s.metrics.IdentityCall("sign_out", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	if werr := s.wait(ctx, s.enqueue(storeEvent{kind: evClear, generation: gen})); werr != nil {
		s.logger.DebugContext(ctx, "sign out applied after caller stopped waiting", "error", werr)
	}
	return nil
}

// UpdateUser applies a partial update to the signed-in user. A role in the
// profile is written to the role store and then applied locally. When the
// identity update succeeds but the role write fails, the updated user is
// returned with a role upsert error and nothing is rolled back.
func (s *SessionStore) UpdateUser(ctx context.Context, upd UserUpdate) (*domainauth.User, error) {
	s.mu.RLock()
	active := s.session != nil && s.state.User != nil
	var current domainauth.User
	if active {
		current = s.state.User.Clone()
	}
	s.mu.RUnlock()
	if !active {
		return nil, domainauth.ErrNoActiveSession
	}

	user := &current
	attrs := ports.UserAttributes{Email: upd.Email, Password: upd.Password, Data: upd.Profile.metadata()}
	if !attrs.IsZero() {
		start := time.Now()
		u, err := s.identity.UpdateUser(ctx, attrs)
		s.metrics.IdentityCall("update_user", time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		user = u
	}

	if upd.Profile == nil || upd.Profile.Role == domainauth.RoleNone {
		if err := s.Sync(ctx); err != nil {
			s.logger.DebugContext(ctx, "user update applied after caller stopped waiting", "error", err)
		}
		return user, nil
	}

	raw := domainauth.RawRoleFor(upd.Profile.Role)
	if err := s.upsertRole(ctx, user.ID, raw); err != nil {
		s.logger.WarnContext(ctx, "role upsert failed after identity update",
			"user_id", user.ID, "role", raw, "error", err)
		return user, domainauth.NewError(domainauth.KindRoleUpsertFailure, "role update failed", err)
	}

	ev := storeEvent{kind: evSetRole, userID: user.ID, role: domainauth.ResolveRole(raw)}
	if werr := s.wait(ctx, s.enqueue(ev)); werr != nil {
		s.logger.DebugContext(ctx, "role update applied after caller stopped waiting", "error", werr)
	}
	return user, nil
}

func (s *SessionStore) upsertRole(ctx context.Context, userID string, raw domainauth.RawRole) error {
	if s.roles == nil {
		return errors.New("no role store configured")
	}
	return s.roles.UpsertRole(ctx, userID, raw)
}

// Dispose unsubscribes from the identity service, stops the event loop and
// drops all listeners. Identity calls already in flight still complete.
func (s *SessionStore) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	unsub := s.unsubIdentity
	s.unsubIdentity = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	s.listenersMu.Lock()
	for _, sub := range s.listeners {
		sub.active.Store(false)
	}
	s.listeners = nil
	s.listenersMu.Unlock()

	s.cancel()
	close(s.stop)
}

// Disposed reports whether Dispose has been called.
func (s *SessionStore) Disposed() bool { return s.disposed.Load() }

func (s *SessionStore) onIdentityEvent(ev ports.AuthEvent) {
	s.enqueue(storeEvent{kind: evIdentity, auth: ev})
}

func (s *SessionStore) wait(ctx context.Context, applied <-chan struct{}) error {
	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStoreDisposed
	}
}

func cloneState(st domainauth.AuthState) domainauth.AuthState {
	if st.User != nil {
		u := st.User.Clone()
		st.User = &u
	}
	return st
}
