package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/domain/nav"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/service"
)

// APIHandlers serves the JSON API for the signed-in user and role administration.
type APIHandlers struct {
	Roles     ports.RoleStore
	Directory ports.RoleDirectory
	// PendingWait bounds how long Nav waits for a loading session.
	PendingWait time.Duration
	Logger      *slog.Logger
}

func (h *APIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type meResponse struct {
	AuthStatus
	Menu nav.Menu `json:"menu"`
}

type updateMeRequest struct {
	Email           string          `json:"email,omitempty"`
	Password        string          `json:"password,omitempty"`
	PasswordConfirm string          `json:"password_confirm,omitempty"`
	FullName        *string         `json:"full_name,omitempty"`
	Role            domainauth.Role `json:"role,omitempty"`
}

type updateMeResponse struct {
	User     *UserView  `json:"user"`
	Status   AuthStatus `json:"status"`
	Warnings []string   `json:"warnings,omitempty"`
}

// userRoleView is a stored role as returned to administrators.
type userRoleView struct {
	UserID    string             `json:"user_id"`
	Role      domainauth.Role    `json:"role"`
	RawRole   domainauth.RawRole `json:"raw_role,omitempty"`
	RoleLabel string             `json:"role_label"`
	Assigned  bool               `json:"assigned"`
	UpdatedAt *time.Time         `json:"updated_at,omitempty"`
}

func newUserRoleView(ur domainauth.UserRole) userRoleView {
	role := ur.Canonical()
	updated := ur.UpdatedAt
	return userRoleView{
		UserID:    ur.UserID,
		Role:      role,
		RawRole:   ur.Role,
		RoleLabel: role.Label(),
		Assigned:  true,
		UpdatedAt: &updated,
	}
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// Me returns the signed-in user, role and menu.
// GET /api/me.
func (h *APIHandlers) Me(w http.ResponseWriter, r *http.Request) {
	st, _ := GrantedStateFromContext(r.Context())
	WriteJSON(w, http.StatusOK, meResponse{AuthStatus: NewAuthStatus(st), Menu: nav.BuildMenu(st, "")})
}

// UpdateMe applies a partial profile update. A role change is only honored
// for superadmins. When the identity update succeeds but the role write
// fails the updated user is returned with a 409.
// PATCH /api/me.
func (h *APIHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Password != "" && req.PasswordConfirm != req.Password {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: errPasswordMismatch, Field: "password_confirm"})
		return
	}
	if req.Password != "" && len([]rune(req.Password)) < minPasswordLength {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: errPasswordTooShort, Field: "password"})
		return
	}

	st, _ := GrantedStateFromContext(r.Context())
	if req.Role != domainauth.RoleNone {
		if !req.Role.Valid() {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_role", Err: errors.New("unknown role"), Field: "role"})
			return
		}
		if st.Role != domainauth.RoleSuperAdmin {
			WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "insufficient_permissions", Err: errors.New("only superadmins can change their role")})
			return
		}
	}

	upd := service.UserUpdate{Email: strings.TrimSpace(req.Email), Password: req.Password}
	if req.FullName != nil || req.Role != domainauth.RoleNone {
		upd.Profile = &service.ProfileData{Role: req.Role}
		if req.FullName != nil {
			upd.Profile.FullName = strings.TrimSpace(*req.FullName)
		}
	}

	store, ok := StoreFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "session_unavailable", Err: errors.New("no session bound to request")})
		return
	}
	user, err := store.UpdateUser(r.Context(), upd)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, updateMeResponse{User: newUserView(*user), Status: NewAuthStatus(store.Snapshot())})
	case user != nil && errors.Is(err, domainauth.ErrRoleUpsertFailure):
		h.logger().WarnContext(r.Context(), "profile updated without role", "user_id", user.ID, "error", err)
		WriteJSON(w, http.StatusConflict, updateMeResponse{
			User:     newUserView(*user),
			Status:   NewAuthStatus(store.Snapshot()),
			Warnings: []string{userMessage(err)},
		})
	default:
		WriteServiceError(w, err)
	}
}

// Nav returns the menu for the caller's state and ?path=.
// GET /api/nav.
func (h *APIHandlers) Nav(w http.ResponseWriter, r *http.Request) {
	st := domainauth.AnonymousState()
	if store, ok := StoreFromContext(r.Context()); ok {
		st = settle(r.Context(), store, h.PendingWait)
	}
	WriteJSON(w, http.StatusOK, nav.BuildMenu(st, r.URL.Query().Get("path")))
}

// ListUsers lists stored roles, optionally filtered by ?role=.
// GET /api/admin/users?role=&limit=&offset=.
func (h *APIHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	if h.Directory == nil {
		WriteError(w, ErrorParams{Code: http.StatusNotImplemented, ErrCode: "not_supported", Err: errors.New("role listing is not available")})
		return
	}
	var raw domainauth.RawRole
	if q := r.URL.Query().Get("role"); q != "" {
		role, ok := domainauth.ParseRole(q)
		if !ok {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_role", Err: errors.New("unknown role"), Field: "role"})
			return
		}
		raw = domainauth.RawRoleFor(role)
	}
	limit, offset := pageParams(r)

	list, err := h.Directory.List(r.Context(), raw, limit, offset)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list user roles failed", "error", err)
		WriteServiceError(w, err)
		return
	}
	out := make([]userRoleView, 0, len(list))
	for _, ur := range list {
		out = append(out, newUserRoleView(ur))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": out, "limit": limit, "offset": offset})
}

// GetUserRole returns the stored role of a user. A user without a role row
// is reported as citoyen with assigned=false.
// GET /api/admin/users/{id}/role.
func (h *APIHandlers) GetUserRole(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_id", Err: errors.New("user id is required")})
		return
	}
	raw, err := h.Roles.GetRole(r.Context(), id)
	switch {
	case errors.Is(err, ports.ErrRoleNotFound):
		WriteJSON(w, http.StatusOK, userRoleView{
			UserID:    id,
			Role:      domainauth.RoleCitoyen,
			RoleLabel: domainauth.RoleCitoyen.Label(),
		})
	case err != nil:
		h.logger().ErrorContext(r.Context(), "get user role failed", "user_id", id, "error", err)
		WriteServiceError(w, err)
	default:
		role := domainauth.ResolveRole(raw)
		WriteJSON(w, http.StatusOK, userRoleView{UserID: id, Role: role, RawRole: raw, RoleLabel: role.Label(), Assigned: true})
	}
}

// SetUserRole assigns a role. The body accepts canonical or stored values;
// the stored form is written. Admins can neither hand out superadmin nor
// change a superadmin.
// PUT /api/admin/users/{id}/role.
func (h *APIHandlers) SetUserRole(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_id", Err: errors.New("user id is required")})
		return
	}
	var req setRoleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role, ok := domainauth.ParseRole(req.Role)
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_role", Err: errors.New("unknown role"), Field: "role"})
		return
	}

	st, _ := GrantedStateFromContext(r.Context())
	current, err := h.currentRole(r, st, id)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "load user role failed", "user_id", id, "error", err)
		WriteServiceError(w, err)
		return
	}
	if !st.Role.CanManage(current, role) {
		WriteError(w, ErrorParams{Code: http.StatusForbidden, ErrCode: "insufficient_permissions", Err: errors.New("role cannot be assigned by the current user")})
		return
	}

	// Changing one's own role goes through the session store so the
	// current state follows.
	if id == st.UserID() {
		if store, found := StoreFromContext(r.Context()); found {
			if _, err := store.UpdateUser(r.Context(), service.UserUpdate{Profile: &service.ProfileData{Role: role}}); err != nil {
				WriteServiceError(w, err)
				return
			}
			h.writeAssigned(w, r, id, role)
			return
		}
	}

	raw := domainauth.RawRoleFor(role)
	if err := h.Roles.UpsertRole(r.Context(), id, raw); err != nil {
		h.logger().ErrorContext(r.Context(), "set user role failed", "user_id", id, "role", raw, "error", err)
		WriteServiceError(w, err)
		return
	}
	h.writeAssigned(w, r, id, role)
}

// currentRole returns the role id holds now. Users without a stored role are citoyens.
func (h *APIHandlers) currentRole(r *http.Request, st domainauth.AuthState, id string) (domainauth.Role, error) {
	if id == st.UserID() {
		return st.Role, nil
	}
	raw, err := h.Roles.GetRole(r.Context(), id)
	switch {
	case errors.Is(err, ports.ErrRoleNotFound):
		return domainauth.RoleCitoyen, nil
	case err != nil:
		return "", err
	}
	return domainauth.ResolveRole(raw), nil
}

func (h *APIHandlers) writeAssigned(w http.ResponseWriter, r *http.Request, id string, role domainauth.Role) {
	h.logger().InfoContext(r.Context(), "user role assigned", "user_id", id, "role", role)
	WriteJSON(w, http.StatusOK, userRoleView{
		UserID:    id,
		Role:      role,
		RawRole:   domainauth.RawRoleFor(role),
		RoleLabel: role.Label(),
		Assigned:  true,
	})
}
