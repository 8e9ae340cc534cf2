package service

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

type eventKind int

const (
	evIdentity eventKind = iota
	evRestore
	evClear
	evSetRole
	evBarrier
)

type storeEvent struct {
	kind eventKind

	auth    ports.AuthEvent     // evIdentity
	session *domainauth.Session // evRestore
	err     error               // evRestore
	userID  string              // evSetRole
	role    domainauth.Role     // evSetRole

	generation uint64 // evClear

	applied chan struct{}
}

// eventQueue is an unbounded FIFO. Pushes never block so identity callbacks
// can enqueue from any goroutine, including while the loop is busy.
type eventQueue struct {
	mu     sync.Mutex
	items  []storeEvent
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e storeEvent) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []storeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (s *SessionStore) enqueue(e storeEvent) <-chan struct{} {
	e.applied = make(chan struct{})
	if s.disposed.Load() {
		return e.applied
	}
	s.queue.push(e)
	return e.applied
}

func (s *SessionStore) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.queue.signal:
			for _, e := range s.queue.drain() {
				if s.disposed.Load() {
					return
				}
				s.apply(e)
				close(e.applied)
			}
		}
	}
}

func (s *SessionStore) apply(e storeEvent) {
	switch e.kind {
	case evRestore:
		s.applyRestore(e.session, e.err)
	case evIdentity:
		s.applyIdentity(e.auth)
	case evClear:
		if s.generation.Load() != e.generation {
			return
		}
		if s.currentSession() == nil && s.Snapshot().Phase() == domainauth.PhaseAnonymous {
			return
		}
		s.publish(ReasonSignedOut, nil, domainauth.AnonymousState())
	case evSetRole:
		st := s.Snapshot()
		if st.User == nil || st.User.ID != e.userID || st.Role == e.role {
			return
		}
		st.Role = e.role
		s.publish(ReasonRoleUpdated, s.currentSession(), st)
	case evBarrier:
	}
}

func (s *SessionStore) applyRestore(sess *domainauth.Session, err error) {
	// An identity event that arrived while GetSession was pending is newer.
	if s.settled {
		return
	}
	if err != nil || sess == nil {
		s.publish(ReasonInitialSession, nil, domainauth.AnonymousState())
		return
	}
	s.acquire(ReasonInitialSession, sess)
}

func (s *SessionStore) applyIdentity(ev ports.AuthEvent) {
	reason := ChangeReason(ev.Kind)
	if ev.Kind == ports.EventSignedOut || ev.Session == nil {
		s.publish(ReasonSignedOut, nil, domainauth.AnonymousState())
		return
	}

	switch ev.Kind {
	case ports.EventSignedIn, ports.EventInitialSession:
		s.acquire(reason, ev.Session)
	default:
		st := s.Snapshot()
		if st.User == nil || st.User.ID != ev.Session.User.ID || st.Loading {
			s.acquire(reason, ev.Session)
			return
		}
		s.publish(reason, ev.Session, domainauth.AuthenticatedState(ev.Session.User, st.Role))
	}
}

// acquire installs sess and resolves the role of its user. Guards see a
// loading state while the role is being fetched.
func (s *SessionStore) acquire(reason ChangeReason, sess *domainauth.Session) {
	s.generation.Add(1)
	if s.settled {
		u := sess.User.Clone()
		s.publish(ReasonRoleResolving, sess, domainauth.AuthState{User: &u, Loading: true})
	}
	role := s.fetchRole(sess.User.ID)
	s.publish(reason, sess, domainauth.AuthenticatedState(sess.User, role))
}

// fetchRole never fails: any error resolves to the least privileged role.
func (s *SessionStore) fetchRole(userID string) domainauth.Role {
	if s.roles == nil {
		s.metrics.RoleFetch(string(domainauth.RoleCitoyen), errors.New("no role store configured"))
		return domainauth.RoleCitoyen
	}

	var raw domainauth.RawRole
	op := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout)
		defer cancel()
		r, err := s.roles.GetRole(ctx, userID)
		if errors.Is(err, ports.ErrRoleNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		raw = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.backoffBase
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.retries)), s.ctx)

	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		role := domainauth.ResolveRole(raw)
		s.metrics.RoleFetch(string(role), nil)
		return role
	case errors.Is(err, ports.ErrRoleNotFound):
		s.logger.Debug("no stored role, using default", "user_id", userID)
		s.metrics.RoleFetch(string(domainauth.RoleCitoyen), nil)
	default:
		fetchErr := domainauth.NewError(domainauth.KindRoleFetchFailure, "role fetch failed", err)
		s.logger.Warn("role fetch failed, using default", "user_id", userID, "attempts", s.retries+1, "error", fetchErr)
		s.metrics.RoleFetch(string(domainauth.RoleCitoyen), err)
	}
	return domainauth.RoleCitoyen
}

func (s *SessionStore) currentSession() *domainauth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *SessionStore) publish(reason ChangeReason, sess *domainauth.Session, st domainauth.AuthState) {
	s.mu.Lock()
	s.state = st
	s.session = sess
	s.mu.Unlock()

	if !st.Loading {
		s.settled = true
		s.readyOnce.Do(func() { close(s.ready) })
	}
	s.notify(Change{Reason: reason, State: st})
}

func (s *SessionStore) notify(c Change) {
	s.listenersMu.Lock()
	subs := make([]*subscription, len(s.listeners))
	copy(subs, s.listeners)
	s.listenersMu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		s.deliver(sub, Change{Reason: c.Reason, State: cloneState(c.State)})
	}
}

func (s *SessionStore) deliver(sub *subscription, c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session listener panicked", "reason", c.Reason, "panic", r)
		}
	}()
	sub.fn(c)
}
