package service

import (
	"sync"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
)

// ViewGuard keeps the guard decision of one open view current. It re-evaluates
// on every store change and calls onChange when the decision differs from the
// previous one, so a sign-out while viewing leaves Granted right away.
type ViewGuard struct {
	guard   domainauth.RouteGuard
	path    string
	metrics *metrics.AuthMetrics

	mu       sync.Mutex
	decision domainauth.Decision
	onChange func(domainauth.Decision)
	unsub    func()
}

// ViewGuardOptions groups dependencies for ViewGuard.
type ViewGuardOptions struct {
	Store   *SessionStore
	Guard   domainauth.RouteGuard
	Path    string
	Metrics *metrics.AuthMetrics
	// OnChange runs on the store's event loop. It is not called for the initial decision.
	OnChange func(domainauth.Decision)
}

// NewViewGuard evaluates the current state and starts watching the store.
func NewViewGuard(opts ViewGuardOptions) *ViewGuard {
	g := &ViewGuard{
		guard:    opts.Guard,
		path:     opts.Path,
		metrics:  opts.Metrics,
		onChange: opts.OnChange,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsub = opts.Store.Subscribe(g.onStoreChange)
	g.decision = g.guard.Evaluate(opts.Store.Snapshot(), g.path)
	g.metrics.GuardDecision(g.decision.State.String())
	return g
}

// Decision returns the latest decision.
func (g *ViewGuard) Decision() domainauth.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Close stops watching the store. It is safe to call more than once.
func (g *ViewGuard) Close() {
	g.mu.Lock()
	unsub := g.unsub
	g.unsub = nil
	g.onChange = nil
	g.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (g *ViewGuard) onStoreChange(c Change) {
	next := g.guard.Evaluate(c.State, g.path)

	g.mu.Lock()
	if next == g.decision {
		g.mu.Unlock()
		return
	}
	g.decision = next
	cb := g.onChange
	g.mu.Unlock()

	g.metrics.GuardDecision(next.State.String())
	if cb != nil {
		cb(next)
	}
}
