package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/service"
)

const minPasswordLength = 6

// formError is a validation failure shown verbatim on forms.
type formError string

func (e formError) Error() string { return string(e) }

const (
	errCredentialsRequired formError = "Email et mot de passe requis."
	errEmailRequired       formError = "L'adresse email est requise."
	errPasswordTooShort    formError = "Le mot de passe doit contenir au moins 6 caractères."
	errPasswordMismatch    formError = "Les mots de passe ne correspondent pas."
	errTermsRequired       formError = "Veuillez accepter les conditions d'utilisation pour continuer."
)

// rotationWait bounds how long a sign-in waits for its fresh store when no
// pending wait is configured.
const rotationWait = 5 * time.Second

// AuthHandlers serves the sign-in, sign-up and sign-out flows on top of the
// request's session store. With a Registry, signing in moves the browser to
// a new session id.
type AuthHandlers struct {
	uiBase
	Registry *service.SessionRegistry
	// Tokens, when set, drops the persisted tokens of a replaced session id.
	Tokens ports.TokenStore
	Cookie SessionCookieConfig
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	AcceptTerms     bool   `json:"accept_terms"`
}

// fullName joins first and last name the way the sign-up form displays them.
func (r registerRequest) fullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

func (r registerRequest) validate() (field string, err error) {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return "email", errEmailRequired
	case utf8.RuneCountInString(r.Password) < minPasswordLength:
		return "password", errPasswordTooShort
	case r.PasswordConfirm != "" && r.PasswordConfirm != r.Password:
		return "password_confirm", errPasswordMismatch
	case !r.AcceptTerms:
		return "accept_terms", errTermsRequired
	}
	return "", nil
}

// LoginPage renders the sign-in form. Signed-in users are sent to the home page.
// GET /login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	if st.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := newPageData(PageLogin, "Connexion", r.URL.Path, st)
	data.RedirectURI = safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	h.render(w, http.StatusOK, data)
}

// Login signs in with email and password. The resulting SIGNED_IN event is
// awaited so the response reflects the resolved role.
// POST /login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	redirect := safeRedirectPath(req.RedirectURI)

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.loginFailed(w, r, req, http.StatusBadRequest, "missing_credentials", errCredentialsRequired)
		return
	}

	sid, store, ok := h.freshSession(w, r)
	if !ok {
		return
	}

	if err := store.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password); err != nil {
		h.discardSession(r, sid)
		h.logger().InfoContext(r.Context(), "sign in rejected",
			"session", sidPrefix(SessionIDFromContext(r.Context())), "kind", domainauth.KindOf(err))
		status, code := classifyError(err)
		h.loginFailed(w, r, req, status, code, err)
		return
	}
	if err := store.Sync(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "sign in not yet applied", "error", err)
	}
	h.adoptSession(w, r, sid)

	if IsBrowserRequest(r) {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, NewAuthStatus(store.Snapshot()))
}

// freshSession returns a ready store under a new session id so that a
// sign-in never authenticates the id the browser arrived with. Without a
// registry the request's own store is used.
func (h *AuthHandlers) freshSession(w http.ResponseWriter, r *http.Request) (string, *service.SessionStore, bool) {
	if h.Registry == nil {
		store, ok := h.readyStore(w, r)
		return SessionIDFromContext(r.Context()), store, ok
	}
	sid := service.NewSessionID()
	store, err := h.Registry.Acquire(sid)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_unavailable", Err: err})
		return "", nil, false
	}
	wait := h.PendingWait
	if wait <= 0 {
		wait = rotationWait
	}
	if err := awaitReady(r.Context(), store, wait); err != nil {
		h.Registry.Remove(sid)
		w.Header().Set("Retry-After", "1")
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "auth_pending", Err: err})
		return "", nil, false
	}
	return sid, store, true
}

// adoptSession points the browser at sid and retires its previous session.
func (h *AuthHandlers) adoptSession(w http.ResponseWriter, r *http.Request, sid string) {
	old := SessionIDFromContext(r.Context())
	if h.Registry == nil || sid == old {
		return
	}
	setSessionCookie(w, r, h.Cookie, sid)
	if old == "" {
		return
	}
	h.Registry.Remove(old)
	if h.Tokens != nil {
		// The request may be canceled once the response is out.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rotationWait)
		defer cancel()
		if err := h.Tokens.Delete(ctx, old); err != nil {
			h.logger().WarnContext(ctx, "drop replaced session tokens failed", "session", sidPrefix(old), "error", err)
		}
	}
	h.logger().DebugContext(r.Context(), "session rotated", "from", sidPrefix(old), "to", sidPrefix(sid))
}

// discardSession drops a store acquired by freshSession that was not adopted.
func (h *AuthHandlers) discardSession(r *http.Request, sid string) {
	if h.Registry == nil || sid == SessionIDFromContext(r.Context()) {
		return
	}
	h.Registry.Remove(sid)
}

func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, req credentialsRequest, status int, code string, err error) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: err})
		return
	}
	data := newPageData(PageLogin, "Connexion", r.URL.Path, h.state(r))
	data.RedirectURI = safeRedirectPath(req.RedirectURI)
	data.Form = FormData{Email: req.Email}
	data.Error = formMessage(err)
	h.render(w, status, data)
}

func (h *AuthHandlers) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if !IsBrowserRequest(r) {
		return req, DecodeJSON(w, r, &req)
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return req, false
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	req.RedirectURI = r.PostForm.Get("redirect_uri")
	return req, true
}

// RegisterPage renders the sign-up form. Signed-in users are sent to the home page.
// GET /register.
func (h *AuthHandlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	if st.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, newPageData(PageRegister, "Inscription", r.URL.Path, st))
}

// Register creates an account. When the identity service signs the new
// user in right away the browser goes home; otherwise it is told to
// confirm the email address first.
// POST /register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRegister(w, r)
	if !ok {
		return
	}

	if field, err := req.validate(); err != nil {
		h.registerFailed(w, r, req, http.StatusBadRequest, ErrorParams{ErrCode: "validation_failed", Err: err, Field: field})
		return
	}

	sid, store, ok := h.freshSession(w, r)
	if !ok {
		return
	}

	if err := store.SignUp(r.Context(), strings.TrimSpace(req.Email), req.Password, req.fullName()); err != nil {
		h.discardSession(r, sid)
		h.logger().InfoContext(r.Context(), "sign up rejected", "kind", domainauth.KindOf(err))
		status, code := classifyError(err)
		h.registerFailed(w, r, req, status, ErrorParams{ErrCode: code, Err: err})
		return
	}
	if err := store.Sync(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "sign up not yet applied", "error", err)
	}

	st := store.Snapshot()
	if st.Authenticated() {
		h.adoptSession(w, r, sid)
	} else {
		h.discardSession(r, sid)
	}
	if !IsBrowserRequest(r) {
		if st.Authenticated() {
			WriteJSON(w, http.StatusCreated, NewAuthStatus(st))
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]string{
			"status":  "confirmation_required",
			"message": "Veuillez vérifier votre email pour confirmer votre compte.",
		})
		return
	}
	if st.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := newPageData(PageLogin, "Connexion", "/login", st)
	data.RedirectURI = "/"
	data.Form = FormData{Email: req.Email}
	data.Notice = "Votre compte a été créé avec succès. Veuillez vérifier votre email pour confirmer votre compte."
	h.render(w, http.StatusOK, data)
}

func (h *AuthHandlers) registerFailed(w http.ResponseWriter, r *http.Request, req registerRequest, status int, p ErrorParams) {
	if !IsBrowserRequest(r) {
		p.Code = status
		WriteError(w, p)
		return
	}
	data := newPageData(PageRegister, "Inscription", r.URL.Path, h.state(r))
	data.Form = FormData{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		AcceptTerms: req.AcceptTerms,
	}
	data.Error = formMessage(p.Err)
	h.render(w, status, data)
}

func (h *AuthHandlers) decodeRegister(w http.ResponseWriter, r *http.Request) (registerRequest, bool) {
	var req registerRequest
	if !IsBrowserRequest(r) {
		return req, DecodeJSON(w, r, &req)
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return req, false
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	req.PasswordConfirm = r.PostForm.Get("password_confirm")
	req.FirstName = r.PostForm.Get("first_name")
	req.LastName = r.PostForm.Get("last_name")
	req.AcceptTerms = r.PostForm.Get("accept_terms") != ""
	return req, true
}

// Logout signs out. The local session is only cleared when the identity
// service accepted the sign-out.
// POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	store, ok := h.readyStore(w, r)
	if !ok {
		return
	}
	if err := store.SignOut(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "sign out failed", "error", err)
		h.renderError(w, r, err)
		return
	}
	if IsBrowserRequest(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, NewAuthStatus(store.Snapshot()))
}

// Status reports the current AuthState of the session.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, NewAuthStatus(h.state(r)))
}

// formMessage prefers the French message for classified auth failures and
// keeps validation messages as written.
func formMessage(err error) string {
	var authErr *domainauth.Error
	if errors.As(err, &authErr) {
		return userMessage(err)
	}
	return err.Error()
}

func sidPrefix(sid string) string {
	const n = 8
	if len(sid) > n {
		return sid[:n]
	}
	return sid
}
