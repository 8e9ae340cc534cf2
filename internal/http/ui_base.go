package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/service"
)

// uiBase holds what page handlers share: the renderer, how long to wait
// for a loading session, and the logger.
type uiBase struct {
	Renderer    *TemplateRenderer
	PendingWait time.Duration
	Logger      *slog.Logger
}

func (b uiBase) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// state returns the settled state of the request's session. Handlers behind
// a guard get the state the guard granted on.
func (b uiBase) state(r *http.Request) domainauth.AuthState {
	if st, ok := GrantedStateFromContext(r.Context()); ok {
		return st
	}
	store, ok := StoreFromContext(r.Context())
	if !ok {
		return domainauth.AnonymousState()
	}
	return settle(r.Context(), store, b.PendingWait)
}

// readyStore returns the request's store once it has finished restoring.
// It writes a 503 and returns false otherwise.
func (b uiBase) readyStore(w http.ResponseWriter, r *http.Request) (*service.SessionStore, bool) {
	store, ok := StoreFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "session_unavailable",
			Err:     errors.New("no session bound to request"),
		})
		return nil, false
	}
	if err := awaitReady(r.Context(), store, b.PendingWait); err != nil {
		w.Header().Set("Retry-After", "1")
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "auth_pending", Err: err})
		return nil, false
	}
	return store, true
}

// render writes page for browsers. Without a renderer the page data is sent as JSON.
func (b uiBase) render(w http.ResponseWriter, status int, data PageData) {
	if b.Renderer == nil || !b.Renderer.Has(data.Page) {
		WriteJSON(w, status, data)
		return
	}
	b.Renderer.Render(w, status, data.Page, data)
}

// renderError shows the error page to browsers and a JSON error to API clients.
func (b uiBase) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classifyError(err)
	if !IsBrowserRequest(r) {
		WriteServiceError(w, err)
		return
	}
	data := newPageData(PageError, "Erreur", r.URL.Path, b.state(r))
	data.Error = userMessage(err)
	b.render(w, status, data)
}
