package httpx

import (
	"net/http"
	"net/url"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

// Page identifiers map to templates under web/templates/pages.
const (
	PageHome         = "home"
	PageAbout        = "about"
	PageLogin        = "login"
	PageRegister     = "register"
	PageView         = "view"
	PageProfile      = "profile"
	PageAdminUsers   = "admin-users"
	PageUnauthorized = "unauthorized"
	PageLoading      = "loading"
	PageError        = "error"
	PageNotFound     = "not-found"
)

// viewRoute is a protected page and the constraint guarding it. An
// unconstrained route only needs a signed-in user.
type viewRoute struct {
	Pattern    string
	Page       string
	Title      string
	Constraint domainauth.RouteConstraint
}

func protectedViews() []viewRoute {
	admins := domainauth.AllowRoles(domainauth.RoleAdmin, domainauth.RoleSuperAdmin)
	return []viewRoute{
		{Pattern: "/profile", Page: PageProfile, Title: "Mon Profil"},
		{Pattern: "/dashboard", Page: PageView, Title: "Tableau de bord"},
		{Pattern: "/budget", Page: PageView, Title: "Budget"},
		{Pattern: "/payments", Page: PageView, Title: "Paiements"},
		{Pattern: "/fraud-detection", Page: PageView, Title: "Détection de fraude"},
		{Pattern: "/citizen-portal", Page: PageView, Title: "Portail Citoyen"},
		{Pattern: "/project/{id}", Page: PageView, Title: "Projet"},
		{Pattern: "/report-issue/{id}", Page: PageView, Title: "Signaler un problème"},
		{Pattern: "/reports", Page: PageView, Title: "Rapports"},
		{Pattern: "/data-entry", Page: PageView, Title: "Saisie de données"},
		{Pattern: "/audit", Page: PageView, Title: "Audit", Constraint: domainauth.RequireRole(domainauth.RoleAdmin)},
		{Pattern: "/admin/users", Page: PageAdminUsers, Title: "Gestion des utilisateurs", Constraint: admins},
		{
			Pattern:    "/admin/create-admin",
			Page:       PageView,
			Title:      "Créer un administrateur",
			Constraint: domainauth.RequireRole(domainauth.RoleAdmin),
		},
	}
}

// viewIndex finds the protected view serving a concrete path, using the
// same pattern matching as the router.
type viewIndex struct {
	mux    *http.ServeMux
	routes map[string]viewRoute
}

func newViewIndex(routes []viewRoute) *viewIndex {
	idx := &viewIndex{mux: http.NewServeMux(), routes: make(map[string]viewRoute, len(routes))}
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, rt := range routes {
		idx.mux.Handle(rt.Pattern, noop)
		idx.routes[rt.Pattern] = rt
	}
	return idx
}

// lookup returns the view for path and whether path is protected.
func (i *viewIndex) lookup(path string) (viewRoute, bool) {
	u, err := url.Parse(path)
	if err != nil {
		return viewRoute{}, false
	}
	_, pattern := i.mux.Handler(&http.Request{Method: http.MethodGet, URL: &url.URL{Path: u.Path}, Host: "localhost"})
	rt, ok := i.routes[pattern]
	return rt, ok
}
