package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
	"github.com/tracenation/tracenation-api/internal/ports"
)

const (
	defaultRegistrySize    = 10000
	defaultRegistryIdleTTL = 30 * time.Minute
	defaultInitTimeout     = 10 * time.Second
)

// SessionRegistryOptions groups dependencies for SessionRegistry.
type SessionRegistryOptions struct {
	Identities ports.IdentityFactory
	Roles      ports.RoleStore

	Size        int
	IdleTTL     time.Duration
	InitTimeout time.Duration

	// Store carries the per-store settings (sign-up redirect, role fetch retry).
	// Identity, Roles, Metrics and Logger are filled in by the registry.
	Store SessionStoreOptions

	Metrics *metrics.AuthMetrics
	Logger  *slog.Logger
}

// SessionRegistry owns one SessionStore per browser session id. Stores idle
// for longer than the TTL, or pushed out by the size bound, are disposed;
// their tokens stay in the token store so the next request restores them.
type SessionRegistry struct {
	identities  ports.IdentityFactory
	storeOpts   SessionStoreOptions
	initTimeout time.Duration
	metrics     *metrics.AuthMetrics
	logger      *slog.Logger

	mu     sync.Mutex
	cache  *expirable.LRU[string, *SessionStore]
	active atomic.Int64
	closed bool
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(opts SessionRegistryOptions) *SessionRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.Size
	if size <= 0 {
		size = defaultRegistrySize
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = defaultRegistryIdleTTL
	}
	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = defaultInitTimeout
	}

	storeOpts := opts.Store
	storeOpts.Roles = opts.Roles
	storeOpts.Metrics = opts.Metrics
	storeOpts.Logger = logger

	r := &SessionRegistry{
		identities:  opts.Identities,
		storeOpts:   storeOpts,
		initTimeout: initTimeout,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "session_registry"),
	}
	r.cache = expirable.NewLRU[string, *SessionStore](size, r.onEvict, ttl)
	return r
}

// NewSessionID returns a fresh opaque browser session id.
func NewSessionID() string { return uuid.NewString() }

// ValidSessionID reports whether sid looks like an id issued by NewSessionID.
func ValidSessionID(sid string) bool {
	_, err := uuid.Parse(sid)
	return err == nil
}

// Acquire returns the store for sid, creating it when missing. A new store is
// initialized in the background and reports the initializing phase until then.
// Each call refreshes the idle timer of sid.
func (r *SessionRegistry) Acquire(sid string) (*SessionStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStoreDisposed
	}

	if store, ok := r.cache.Get(sid); ok && !store.Disposed() {
		r.cache.Add(sid, store)
		return store, nil
	}
	// Get hides expired or disposed entries that are still held; evict them first.
	r.cache.Remove(sid)

	opts := r.storeOpts
	opts.Identity = r.identities.ForSession(sid)
	store := NewSessionStore(opts)
	r.cache.Add(sid, store)
	r.active.Add(1)
	r.metrics.SetActiveSessions(int(r.active.Load()))

	go r.initialize(sid, store)
	return store, nil
}

// Get returns the store for sid without creating one.
func (r *SessionRegistry) Get(sid string) (*SessionStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.cache.Peek(sid)
	if !ok || store.Disposed() {
		return nil, false
	}
	return store, true
}

// Remove disposes the store for sid, if any.
func (r *SessionRegistry) Remove(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(sid)
}

// Len reports the number of live stores.
func (r *SessionRegistry) Len() int {
	return int(r.active.Load())
}

// Close disposes every store. Later Acquire calls fail.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cache.Purge()
}

func (r *SessionRegistry) initialize(sid string, store *SessionStore) {
	ctx, cancel := context.WithTimeout(context.Background(), r.initTimeout)
	defer cancel()

	err := store.Initialize(ctx)
	switch {
	case err == nil, errors.Is(err, ErrStoreDisposed), errors.Is(err, ErrAlreadyInitialized):
	default:
		r.logger.Warn("session store initialization failed", "sid_prefix", sidPrefix(sid), "error", err)
	}
}

// onEvict runs under the cache lock and must not call back into the cache.
func (r *SessionRegistry) onEvict(sid string, store *SessionStore) {
	store.Dispose()
	r.active.Add(-1)
	r.metrics.Eviction()
	r.metrics.SetActiveSessions(int(r.active.Load()))
	r.logger.Debug("session store evicted", "sid_prefix", sidPrefix(sid))
}

func sidPrefix(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
