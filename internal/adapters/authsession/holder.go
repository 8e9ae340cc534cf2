// Package authsession holds the current session of one browser for the
// identity adapters: it mirrors the session into a ports.TokenStore and fans
// identity events out to subscribers.
package authsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

// HolderOptions groups dependencies for Holder.
type HolderOptions struct {
	SID    string
	Tokens ports.TokenStore
	Logger *slog.Logger
}

// Holder is the session state shared by the calls of one identity client.
// Events are emitted in the order the session changed.
type Holder struct {
	sid    string
	tokens ports.TokenStore
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	current *domainauth.Session

	// emitMu serializes change-and-emit so subscribers see changes in order.
	emitMu sync.Mutex

	subMu  sync.Mutex
	nextID int
	subs   map[int]ports.AuthStateCallback
}

// NewHolder constructs a Holder for one browser session id.
func NewHolder(opts HolderOptions) *Holder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Holder{
		sid:    opts.SID,
		tokens: opts.Tokens,
		logger: logger,
		subs:   make(map[int]ports.AuthStateCallback),
	}
}

// SID returns the browser session id the holder belongs to.
func (h *Holder) SID() string { return h.sid }

// Load returns the current session, reading the token store on first use.
// A missing entry yields nil without error.
func (h *Holder) Load(ctx context.Context) (*domainauth.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return cloneSession(h.current), nil
	}
	if h.tokens == nil {
		h.loaded = true
		return nil, nil
	}

	sess, err := h.tokens.Get(ctx, h.sid)
	switch {
	case errors.Is(err, ports.ErrSessionNotFound):
		h.loaded = true
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}
	h.current = &sess
	h.loaded = true
	return cloneSession(h.current), nil
}

// Current returns the in-memory session without touching the token store.
func (h *Holder) Current() *domainauth.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneSession(h.current)
}

// Set stores sess, persists it and emits kind. A persistence failure is
// logged; the in-memory session still changes so this browser stays signed in.
func (h *Holder) Set(ctx context.Context, kind ports.AuthEventKind, sess domainauth.Session) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	cp := sess
	cp.User = sess.User.Clone()
	h.current = &cp
	h.loaded = true
	h.mu.Unlock()

	if h.tokens != nil {
		if err := h.tokens.Save(ctx, h.sid, cp); err != nil {
			h.logger.WarnContext(ctx, "persist session failed", "event", string(kind), "error", err)
		}
	}
	h.emit(ports.AuthEvent{Kind: kind, Session: cloneSession(&cp)})
}

// Clear drops the session and emits SIGNED_OUT. It is a no-op when no session is held.
func (h *Holder) Clear(ctx context.Context) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	had := h.current != nil
	h.current = nil
	h.loaded = true
	h.mu.Unlock()

	if h.tokens != nil {
		if err := h.tokens.Delete(ctx, h.sid); err != nil {
			h.logger.WarnContext(ctx, "delete persisted session failed", "error", err)
		}
	}
	if had {
		h.emit(ports.AuthEvent{Kind: ports.EventSignedOut})
	}
}

// Subscribe registers cb and returns its unsubscribe function.
func (h *Holder) Subscribe(cb ports.AuthStateCallback) func() {
	h.subMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = cb
	h.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subMu.Lock()
			delete(h.subs, id)
			h.subMu.Unlock()
		})
	}
}

// Subscribers reports the number of registered callbacks.
func (h *Holder) Subscribers() int {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	return len(h.subs)
}

func (h *Holder) emit(ev ports.AuthEvent) {
	h.subMu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cbs := make([]ports.AuthStateCallback, 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, h.subs[id])
	}
	h.subMu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

func cloneSession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.User = s.User.Clone()
	if s.Token != nil {
		tok := *s.Token
		cp.Token = &tok
	}
	return &cp
}
