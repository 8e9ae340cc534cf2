package httpx

import (
	"errors"
	"net/http"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

// ViewHandlers renders public and protected pages.
type ViewHandlers struct {
	uiBase
	Directory ports.RoleDirectory
}

// viewDescriptor is what API clients get for a protected view.
type viewDescriptor struct {
	View   string              `json:"view"`
	Title  string              `json:"title"`
	Path   string              `json:"path"`
	Params map[string]string   `json:"params,omitempty"`
	Status AuthStatus          `json:"status"`
	Guard  domainauth.Decision `json:"guard"`
}

// Home renders the landing page.
// GET /{$}.
func (h *ViewHandlers) Home(w http.ResponseWriter, r *http.Request) {
	h.public(w, r, PageHome, "Accueil")
}

// About renders the about page.
// GET /about.
func (h *ViewHandlers) About(w http.ResponseWriter, r *http.Request) {
	h.public(w, r, PageAbout, "À propos")
}

// Unauthorized is where signed-in users without the needed role land.
// GET /unauthorized.
func (h *ViewHandlers) Unauthorized(w http.ResponseWriter, r *http.Request) {
	h.publicStatus(w, r, http.StatusForbidden, PageUnauthorized, "Accès non autorisé")
}

// NotFound renders the 404 page for unmatched paths.
func (h *ViewHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
		return
	}
	h.publicStatus(w, r, http.StatusNotFound, PageNotFound, "Page introuvable")
}

// AdminIndex sends /admin to the user management page.
// GET /admin.
func (h *ViewHandlers) AdminIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin/users", http.StatusFound)
}

func (h *ViewHandlers) public(w http.ResponseWriter, r *http.Request, page, title string) {
	h.publicStatus(w, r, http.StatusOK, page, title)
}

func (h *ViewHandlers) publicStatus(w http.ResponseWriter, r *http.Request, status int, page, title string) {
	st := h.state(r)
	if !IsBrowserRequest(r) {
		WriteJSON(w, status, viewDescriptor{View: page, Title: title, Path: r.URL.Path, Status: NewAuthStatus(st)})
		return
	}
	h.render(w, status, newPageData(page, title, r.URL.Path, st))
}

// Protected returns the handler of a guarded view. It only runs once the
// route guard granted access.
func (h *ViewHandlers) Protected(rt viewRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := h.state(r)
		params := pathParams(r)
		if !IsBrowserRequest(r) {
			WriteJSON(w, http.StatusOK, viewDescriptor{
				View:   rt.Pattern,
				Title:  rt.Title,
				Path:   r.URL.Path,
				Params: params,
				Status: NewAuthStatus(st),
				Guard:  domainauth.Decision{State: domainauth.GuardGranted},
			})
			return
		}

		data := newPageData(rt.Page, rt.Title, r.URL.Path, st)
		switch rt.Page {
		case PageProfile:
			data.Form = FormData{Email: st.User.Email, FullName: st.User.FullName()}
			if st.Role == domainauth.RoleSuperAdmin {
				data.Data = roleOptions(st.Role, st.Role)
			}
		case PageAdminUsers:
			data.Data = h.adminUsers(r, st)
		default:
			data.Data = viewContent{Pattern: rt.Pattern, Params: params}
		}
		h.render(w, http.StatusOK, data)
	}
}

type viewContent struct {
	Pattern string
	Params  map[string]string
}

type adminUserRow struct {
	UserID  string
	Current roleOption
	Options []roleOption
	// Locked rows hold a role the viewer cannot change.
	Locked bool
}

type adminUsersData struct {
	Rows      []adminUserRow
	Available bool
	Error     string
}

func (h *ViewHandlers) adminUsers(r *http.Request, st domainauth.AuthState) adminUsersData {
	if h.Directory == nil {
		return adminUsersData{}
	}
	limit, offset := pageParams(r)
	list, err := h.Directory.List(r.Context(), "", limit, offset)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list user roles failed", "error", err)
		return adminUsersData{Available: true, Error: userMessage(err)}
	}
	out := adminUsersData{Available: true, Rows: make([]adminUserRow, 0, len(list))}
	for _, ur := range list {
		role := ur.Canonical()
		out.Rows = append(out.Rows, adminUserRow{
			UserID:  ur.UserID,
			Current: roleOption{Value: role, Label: role.Label(), Selected: true},
			Options: roleOptions(role, st.Role),
			Locked:  !st.Role.CanAssign(role),
		})
	}
	return out
}

// pathParams extracts the {id} wildcard used by the parameterized views.
func pathParams(r *http.Request) map[string]string {
	if id := r.PathValue("id"); id != "" {
		return map[string]string{"id": id}
	}
	return nil
}

var errNotFound = errors.New("resource not found")
