package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Registry  *service.SessionRegistry
	Roles     ports.RoleStore
	Directory ports.RoleDirectory // optional: enables user listing
	// Renderer defaults to the embedded templates.
	Renderer *TemplateRenderer
	Session  SessionCookieConfig
	// Tokens, when set, lets a browser keep its session id across registry
	// evictions and restarts.
	Tokens ports.TokenStore
	// PendingWait bounds how long a request waits for a loading session.
	PendingWait time.Duration

	// Optional: readiness probes and metrics endpoint.
	ReadyChecks    map[string]HealthCheck
	Metrics        *metrics.AuthMetrics
	MetricsHandler http.Handler
	MetricsPath    string

	Logger *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter creates the HTTP router. Health and metrics endpoints bypass the
// session layer; everything else is bound to the browser's session store.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := services.Renderer
	if renderer == nil {
		r, err := DefaultTemplateRenderer(logger)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		renderer = r
	}

	base := uiBase{Renderer: renderer, PendingWait: services.PendingWait, Logger: logger}
	views := protectedViews()
	guards := NewGuards(GuardOptions{
		PendingWait: services.PendingWait,
		Renderer:    renderer,
		Metrics:     services.Metrics,
		Logger:      logger,
	})

	authHandlers := &AuthHandlers{
		uiBase:   base,
		Registry: services.Registry,
		Tokens:   services.Tokens,
		Cookie:   services.Session,
	}
	viewHandlers := &ViewHandlers{uiBase: base, Directory: services.Directory}
	apiHandlers := &APIHandlers{
		Roles:       services.Roles,
		Directory:   services.Directory,
		PendingWait: services.PendingWait,
		Logger:      logger,
	}
	events := &EventsHandler{Views: newViewIndex(views), Metrics: services.Metrics, Logger: logger}

	app := http.NewServeMux()
	registerPublicRoutes(app, viewHandlers)
	registerAuthRoutes(app, authHandlers, events)
	registerViewRoutes(app, viewHandlers, guards, views)
	registerAPIRoutes(app, apiHandlers, guards)
	app.HandleFunc("/", viewHandlers.NotFound)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", healthHandler)
	root.HandleFunc("HEAD /healthz", healthHandler)
	root.Handle("GET /readyz", &ReadyHandler{Checks: services.ReadyChecks, Sessions: services.Registry.Len})
	if services.MetricsHandler != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		root.Handle("GET "+path, services.MetricsHandler)
	}
	root.Handle("/", Sessions(services.Registry, services.Tokens, services.Session, logger)(BrowserDetection()(app)))

	return root, nil
}

func registerPublicRoutes(mux *http.ServeMux, h *ViewHandlers) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /about", h.About)
	mux.HandleFunc("GET /unauthorized", h.Unauthorized)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, events *EventsHandler) {
	mux.HandleFunc("GET /login", h.LoginPage)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /register", h.RegisterPage)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.Handle("GET /auth/events", events)
}

func registerViewRoutes(mux *http.ServeMux, h *ViewHandlers, g *Guards, views []viewRoute) {
	mux.Handle("GET /admin", g.Require(domainauth.Unconstrained())(http.HandlerFunc(h.AdminIndex)))
	for _, rt := range views {
		mux.Handle("GET "+rt.Pattern, g.Require(rt.Constraint)(h.Protected(rt)))
	}
}

func registerAPIRoutes(mux *http.ServeMux, h *APIHandlers, g *Guards) {
	signedIn := g.Require(domainauth.Unconstrained())
	admins := g.Require(domainauth.AllowRoles(domainauth.RoleAdmin, domainauth.RoleSuperAdmin))

	mux.Handle("GET /api/me", signedIn(http.HandlerFunc(h.Me)))
	mux.Handle("PATCH /api/me", signedIn(http.HandlerFunc(h.UpdateMe)))
	mux.HandleFunc("GET /api/nav", h.Nav)
	mux.Handle("GET /api/admin/users", admins(http.HandlerFunc(h.ListUsers)))
	mux.Handle("GET /api/admin/users/{id}/role", admins(http.HandlerFunc(h.GetUserRole)))
	mux.Handle("PUT /api/admin/users/{id}/role", admins(http.HandlerFunc(h.SetUserRole)))
}
