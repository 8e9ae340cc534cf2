// Package nav derives the visible navigation entries from the current auth state.
package nav

import (
	"net/url"
	"slices"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

// Link is a static navigation entry. An empty Roles list means everyone,
// including anonymous visitors, can see it.
type Link struct {
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	Icon         string            `json:"icon,omitempty"`
	Roles        []domainauth.Role `json:"roles,omitempty"`
	RequiresAuth bool              `json:"requires_auth,omitempty"`
}

// Item is a link as rendered for a given state. Href differs from Path when
// the link needs a sign-in first.
type Item struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Href     string `json:"href"`
	Icon     string `json:"icon,omitempty"`
	Disabled bool   `json:"disabled"`
	Active   bool   `json:"active"`
}

// MainLinks is the primary navigation bar in declaration order.
func MainLinks() []Link {
	everyone := []domainauth.Role{domainauth.RoleCitoyen, domainauth.RoleSuperAdmin, domainauth.RoleAdmin}
	return []Link{
		{Name: "Accueil", Path: "/", Icon: "home", Roles: everyone},
		{Name: "À propos", Path: "/about", Icon: "info", Roles: everyone},
		{
			Name:         "Portail Citoyen",
			Path:         "/citizen-portal",
			Icon:         "shield",
			Roles:        []domainauth.Role{domainauth.RoleCitoyen},
			RequiresAuth: true,
		},
	}
}

// AuthLinks are shown only to signed-out visitors.
func AuthLinks() []Link {
	return []Link{
		{Name: "Connexion", Path: "/login", Icon: "log-in"},
		{Name: "Inscription", Path: "/register", Icon: "user-plus"},
	}
}

// AccountLinks make up the account menu of a signed-in user.
func AccountLinks() []Link {
	return []Link{
		{Name: "Mon Profil", Path: "/profile", Icon: "user"},
	}
}

// VisibleLinks filters links for st, keeping declaration order.
// Links tagged with roles need a present, listed role. RequiresAuth links stay
// visible to anonymous visitors but point at the sign-in page instead.
func VisibleLinks(st domainauth.AuthState, links []Link) []Item {
	out := make([]Item, 0, len(links))
	for _, l := range links {
		if !visible(st.Role, l) {
			continue
		}
		item := Item{Name: l.Name, Path: l.Path, Href: l.Path, Icon: l.Icon}
		if l.RequiresAuth && st.User == nil {
			item.Disabled = true
			item.Href = SignInHref(l.Path)
		}
		out = append(out, item)
	}
	return out
}

// Menu is the full navigation model for one page render.
type Menu struct {
	Main        []Item `json:"main"`
	Auth        []Item `json:"auth,omitempty"`
	Account     []Item `json:"account,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	RoleLabel   string `json:"role_label,omitempty"`
}

// BuildMenu assembles main, auth and account links for st and marks the
// entry matching currentPath as active. While loading only the main bar is
// filled since the user is not known yet.
func BuildMenu(st domainauth.AuthState, currentPath string) Menu {
	m := Menu{Main: markActive(VisibleLinks(st, MainLinks()), currentPath)}
	switch {
	case st.Loading:
	case st.User != nil:
		m.Account = markActive(VisibleLinks(st, AccountLinks()), currentPath)
		m.DisplayName = st.User.DisplayName()
		m.RoleLabel = st.Role.Label()
	default:
		m.Auth = markActive(VisibleLinks(st, AuthLinks()), currentPath)
	}
	return m
}

// SignInHref is the sign-in URL that returns to path afterwards.
func SignInHref(path string) string {
	q := url.Values{}
	q.Set("redirect_uri", path)
	return domainauth.DefaultSignInPath + "?" + q.Encode()
}

func visible(role domainauth.Role, l Link) bool {
	if len(l.Roles) == 0 {
		return true
	}
	return role != domainauth.RoleNone && slices.Contains(l.Roles, role)
}

func markActive(items []Item, currentPath string) []Item {
	for i := range items {
		items[i].Active = items[i].Path == currentPath
	}
	return items
}
