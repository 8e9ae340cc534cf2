package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
	"github.com/tracenation/tracenation-api/internal/service"
)

// GuardOptions configures route guards.
type GuardOptions struct {
	// PendingWait is how long a request waits for a pending decision to settle.
	PendingWait time.Duration
	Renderer    *TemplateRenderer
	Metrics     *metrics.AuthMetrics
	Logger      *slog.Logger
}

// Guards builds route guard middleware sharing one configuration.
type Guards struct {
	pendingWait time.Duration
	renderer    *TemplateRenderer
	metrics     *metrics.AuthMetrics
	logger      *slog.Logger
}

// NewGuards constructs Guards.
func NewGuards(opts GuardOptions) *Guards {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guards{
		pendingWait: opts.PendingWait,
		renderer:    opts.Renderer,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// Require returns a middleware enforcing c. Browsers are redirected to the
// sign-in or unauthorized page; API clients get 401 or 403. While the
// decision is pending browsers get a self-refreshing loading page and API
// clients a 503 with Retry-After. Protected content is only served on Granted.
func (g *Guards) Require(c domainauth.RouteConstraint) func(http.Handler) http.Handler {
	guard := domainauth.NewRouteGuard(c)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, ok := StoreFromContext(r.Context())
			if !ok {
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "session_unavailable",
					Err:     errors.New("no session bound to request"),
				})
				return
			}

			st := settle(r.Context(), store, g.pendingWait)
			d := guard.Evaluate(st, r.URL.RequestURI())
			g.metrics.GuardDecision(d.State.String())

			switch d.State {
			case domainauth.GuardGranted:
				next.ServeHTTP(w, r.WithContext(setStateInContext(r.Context(), st)))
			case domainauth.GuardPending:
				g.pending(w, r, st)
			case domainauth.GuardDeniedUnauthenticated:
				if IsBrowserRequest(r) {
					redirectToLogin(w, r, d.Redirect, d.From)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
			case domainauth.GuardDeniedUnauthorized:
				if IsBrowserRequest(r) {
					http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
			}
		})
	}
}

func (g *Guards) pending(w http.ResponseWriter, r *http.Request, st domainauth.AuthState) {
	w.Header().Set("Retry-After", "1")
	if IsBrowserRequest(r) && g.renderer != nil {
		data := newPageData(PageLoading, "Chargement…", r.URL.Path, st)
		data.RedirectURI = safeRedirectPath(r.URL.RequestURI())
		g.renderer.Render(w, http.StatusAccepted, PageLoading, data)
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusServiceUnavailable,
		ErrCode: "auth_pending",
		Err:     errors.New("authentication state is still loading"),
	})
}

// settle returns the state of store, waiting up to wait for it to leave
// the loading phase. The returned state may still be loading.
func settle(ctx context.Context, store *service.SessionStore, wait time.Duration) domainauth.AuthState {
	st := store.Snapshot()
	if !st.Loading || wait <= 0 {
		return st
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	st, _ = store.WaitFor(ctx, func(s domainauth.AuthState) bool { return !s.Loading })
	return st
}

// awaitReady waits until store has finished restoring its session so that
// identity events from a mutation are observed.
func awaitReady(ctx context.Context, store *service.SessionStore, wait time.Duration) error {
	select {
	case <-store.Ready():
		return nil
	default:
	}
	if wait <= 0 {
		return errSessionLoading
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-store.Ready():
		return nil
	case <-timer.C:
		return errSessionLoading
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errSessionLoading = errors.New("session is still loading")
