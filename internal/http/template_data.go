package httpx

import (
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/domain/nav"
)

// PageData is the data every page template receives.
type PageData struct {
	Title       string
	Page        string
	Path        string
	Menu        nav.Menu
	Status      AuthStatus
	Form        FormData
	Error       string
	Notice      string
	RedirectURI string
	// Data carries page specific content (user lists, view ids).
	Data any
}

// FormData echoes submitted form values back into the sign-in and sign-up forms.
type FormData struct {
	Email       string
	FirstName   string
	LastName    string
	FullName    string
	AcceptTerms bool
}

// AuthStatus is the public view of an AuthState shared by JSON responses,
// the auth event stream and templates.
type AuthStatus struct {
	Phase         string          `json:"phase"`
	Authenticated bool            `json:"authenticated"`
	Loading       bool            `json:"loading"`
	User          *UserView       `json:"user,omitempty"`
	Role          domainauth.Role `json:"role,omitempty"`
	RoleLabel     string          `json:"role_label,omitempty"`
}

// UserView is the user as exposed to clients.
type UserView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name,omitempty"`
	DisplayName string `json:"display_name"`
}

// NewAuthStatus builds the public view of st.
func NewAuthStatus(st domainauth.AuthState) AuthStatus {
	out := AuthStatus{
		Phase:         st.Phase().String(),
		Authenticated: st.Authenticated(),
		Loading:       st.Loading,
	}
	if st.User != nil {
		out.User = newUserView(*st.User)
	}
	if st.Role != domainauth.RoleNone {
		out.Role = st.Role
		out.RoleLabel = st.Role.Label()
	}
	return out
}

func newUserView(u domainauth.User) *UserView {
	return &UserView{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName(),
		DisplayName: u.DisplayName(),
	}
}

// IsSuperAdmin is used by the profile template to offer the role selector.
func (s AuthStatus) IsSuperAdmin() bool { return s.Role == domainauth.RoleSuperAdmin }

func newPageData(page, title, path string, st domainauth.AuthState) PageData {
	return PageData{
		Title:  title,
		Page:   page,
		Path:   path,
		Menu:   nav.BuildMenu(st, path),
		Status: NewAuthStatus(st),
	}
}

// roleOption is one entry of the role selectors.
type roleOption struct {
	Value    domainauth.Role
	Label    string
	Selected bool
}

func roleOptions(current domainauth.Role, actor domainauth.Role) []roleOption {
	var out []roleOption
	for _, r := range domainauth.AllRoles() {
		if !actor.CanAssign(r) {
			continue
		}
		out = append(out, roleOption{Value: r, Label: r.Label(), Selected: r == current})
	}
	return out
}
