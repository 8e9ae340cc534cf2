package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tracenation/tracenation-api/config"
	httpx "github.com/tracenation/tracenation-api/internal/http"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
)

const defaultShutdownTimeout = 15 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config *config.AppConfig
	Auth   *AuthComponents
	// ReadyChecks are probed by /readyz.
	ReadyChecks    map[string]httpx.HealthCheck
	Metrics        *metrics.AuthMetrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewHTTPServer builds the HTTP server without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Auth == nil {
		return nil, errors.New("http server requires the auth components")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Registry:  cfg.Auth.Registry,
		Roles:     cfg.Auth.Roles,
		Directory: cfg.Auth.Directory,
		Session: httpx.SessionCookieConfig{
			Name:   appCfg.Session.CookieName,
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.Session.SecureCookie(),
			MaxAge: appCfg.Session.TokenTTL,
		},
		Tokens:      cfg.Auth.Tokens,
		PendingWait: appCfg.Session.PendingWait,
		ReadyChecks: cfg.ReadyChecks,
		Metrics:     cfg.Metrics,
		Logger:      logger,
	}
	if appCfg.Observability.MetricsEnabled {
		services.MetricsHandler = cfg.MetricsHandler
		services.MetricsPath = appCfg.Observability.MetricsPath
	}

	handler, err := buildHTTPHandler(httpHandlerConfig{Logger: logger, Services: services})
	if err != nil {
		return nil, err
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}, nil
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
}

func buildHTTPHandler(cfg httpHandlerConfig) (http.Handler, error) {
	router, err := httpx.NewRouter(cfg.Services)
	if err != nil {
		return nil, err
	}

	// Order: Recover -> Logging -> Router
	h := httpx.Logging(cfg.Logger)(router)
	h = httpx.Recover(cfg.Logger)(h)
	return h, nil
}

// ServeHTTP runs server until ctx is canceled, then shuts it down within timeout.
func ServeHTTP(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	return ShutdownHTTPServer(server, timeout, logger)
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	logger.Info("shutting down HTTP server")

	// The caller's context is already canceled at this point.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
