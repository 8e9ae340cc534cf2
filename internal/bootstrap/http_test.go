package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpx "github.com/tracenation/tracenation-api/internal/http"
)

func newTestServer(t *testing.T, checks map[string]httpx.HealthCheck) http.Handler {
	t.Helper()
	cfg := mockAuthConfig("ana@example.com:secret2")
	cfg.Observability.MetricsEnabled = true
	auth, err := BuildAuth(context.Background(), AuthDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(auth.Close)

	authMetrics, metricsHandler := newMetrics()
	srv, err := NewHTTPServer(&HTTPServerConfig{
		Config:         cfg,
		Auth:           auth,
		ReadyChecks:    checks,
		Metrics:        authMetrics,
		MetricsHandler: metricsHandler,
		Logger:         discardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr)
	return srv.Handler
}

func TestNewHTTPServer_Endpoints(t *testing.T) {
	h := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "health checks do not create sessions")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "tn_session", rec.Result().Cookies()[0].Name)
}

func TestNewHTTPServer_ReadyReportsFailingCheck(t *testing.T) {
	h := newTestServer(t, map[string]httpx.HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"fail: connection refused"`)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)
}

func TestNewHTTPServer_RequiresAuth(t *testing.T) {
	_, err := NewHTTPServer(&HTTPServerConfig{})
	require.Error(t, err)
}
