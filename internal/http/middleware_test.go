package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mockauth "github.com/tracenation/tracenation-api/internal/mocks/auth"
	"github.com/tracenation/tracenation-api/internal/service"
)

func TestBrowserDetection(t *testing.T) {
	middleware := BrowserDetection()

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isBrowser := IsBrowserRequest(r)
		if isBrowser {
			w.Header().Set("Content-Type", "text/html")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware(testHandler)

	tests := []struct {
		name            string
		path            string
		acceptHeader    string
		expectedBrowser bool
	}{
		{
			name:            "API route with JSON accept",
			path:            "/api/me",
			acceptHeader:    "application/json",
			expectedBrowser: false,
		},
		{
			name:            "API route with HTML accept",
			path:            "/api/admin/users",
			acceptHeader:    "text/html",
			expectedBrowser: false, // API routes are never browser requests
		},
		{
			name:            "Event stream client asking for JSON",
			path:            "/auth/status",
			acceptHeader:    "application/json",
			expectedBrowser: false,
		},
		{
			name:            "Browser request with HTML accept",
			path:            "/dashboard",
			acceptHeader:    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			expectedBrowser: true,
		},
		{
			name:            "Root path with HTML accept",
			path:            "/",
			acceptHeader:    "text/html",
			expectedBrowser: true,
		},
		{
			name:            "No accept header on non-API route",
			path:            "/dashboard",
			acceptHeader:    "",
			expectedBrowser: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptHeader != "" {
				req.Header.Set("Accept", tt.acceptHeader)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if tt.expectedBrowser {
				assert.Equal(t, "text/html", w.Header().Get("Content-Type"))
			} else {
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestIsBrowserRequest_WithoutMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		path            string
		acceptHeader    string
		contentType     string
		expectedBrowser bool
	}{
		{
			name:            "API route",
			path:            "/api/nav",
			acceptHeader:    "application/json",
			expectedBrowser: false,
		},
		{
			name:            "JSON body on a page route",
			path:            "/login",
			contentType:     "application/json; charset=utf-8",
			expectedBrowser: false,
		},
		{
			name:            "Browser request",
			path:            "/dashboard",
			acceptHeader:    "text/html",
			expectedBrowser: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptHeader != "" {
				req.Header.Set("Accept", tt.acceptHeader)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			result := IsBrowserRequest(req)
			assert.Equal(t, tt.expectedBrowser, result)
		})
	}
}

func TestIsBrowserRequest_WithContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	// Test with context value set to true
	ctx := context.WithValue(req.Context(), browserRequestKey{}, true)
	req = req.WithContext(ctx)
	assert.True(t, IsBrowserRequest(req))

	// Test with context value set to false
	ctx = context.WithValue(req.Context(), browserRequestKey{}, false)
	req = req.WithContext(ctx)
	assert.False(t, IsBrowserRequest(req))

	// Test with invalid context value type
	ctx = context.WithValue(req.Context(), browserRequestKey{}, "invalid")
	req = req.WithContext(ctx)
	// Should fallback to direct detection
	req.Header.Set("Accept", "text/html")
	assert.True(t, IsBrowserRequest(req))
}

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                          "/",
		"/dashboard":                "/dashboard",
		"/project/42?tab=budget":    "/project/42?tab=budget",
		"https://evil.example/":     "/",
		"//evil.example/path":       "/",
		"dashboard":                 "/",
		`/\evil.example`:           "/",
		"javascript:alert(1)":       "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), "input %q", in)
	}
}

func TestRedirectToLogin(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	redirectToLogin(rec, req, "/login", "/project/7?x=1")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirect_uri=%2Fproject%2F7%3Fx%3D1", rec.Header().Get("Location"))
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSessions(t *testing.T) {
	registry := service.NewSessionRegistry(service.SessionRegistryOptions{
		Identities: fakeIdentities{},
		Roles:      mockauth.NewMemoryRoleStore(nil),
		Logger:     discardLogger(),
	})
	t.Cleanup(registry.Close)

	tokens := mockauth.NewMemoryTokenStore()
	cookie := SessionCookieConfig{Name: "sid", Domain: "tracenation.test", MaxAge: time.Hour}
	var seen string
	h := Sessions(registry, tokens, cookie, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := StoreFromContext(r.Context())
		assert.True(t, ok)
		seen = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("issues a cookie for new browsers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, "sid", c.Name)
		assert.Equal(t, seen, c.Value)
		assert.True(t, service.ValidSessionID(c.Value))
		assert.True(t, c.HttpOnly)
		assert.False(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, 3600, c.MaxAge)
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("reuses a live session id", func(t *testing.T) {
		sid := service.NewSessionID()
		_, err := registry.Acquire(sid)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, sid, seen)
	})

	t.Run("replaces a forged cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "../../etc/passwd"})
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.NotEqual(t, "../../etc/passwd", cookies[0].Value)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, seen, cookies[0].Value)
	})

	t.Run("replaces a well-formed id it never issued", func(t *testing.T) {
		planted := "11111111-2222-4333-8444-555555555555"
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: planted})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.NotEqual(t, planted, cookies[0].Value)
		assert.Equal(t, seen, cookies[0].Value)
		_, live := registry.Get(planted)
		assert.False(t, live)
	})

	t.Run("keeps an id with persisted tokens", func(t *testing.T) {
		sid := service.NewSessionID()
		require.NoError(t, tokens.Save(context.Background(), sid, *mockauth.NewSession("u-1", "u1@tracenation.test")))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, sid, seen)
	})
}
