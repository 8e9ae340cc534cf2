package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"

	"github.com/tracenation/tracenation-api/internal/adapters/authroles"
	"github.com/tracenation/tracenation-api/internal/adapters/devauth"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	mockauth "github.com/tracenation/tracenation-api/internal/mocks/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/service"
)

const testPassword = "secret1"

var (
	citoyenUser = devauth.SeedUser{Email: "citoyen@tracenation.test", Password: testPassword, Role: domainauth.RawRoleCitoyen}
	adminUser   = devauth.SeedUser{Email: "admin@tracenation.test", Password: testPassword, Role: domainauth.RawRoleAdmin}
	superUser   = devauth.SeedUser{Email: "super@tracenation.test", Password: testPassword, Role: domainauth.RawRoleAdministration}
)

func devauthUser(email, password string) devauth.SeedUser {
	return devauth.SeedUser{Email: email, Password: password}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv is the full router over the dev identity service and an
// in-memory role store.
type testEnv struct {
	Server    *httptest.Server
	Directory *devauth.Directory
	Roles     *authroles.StaticRoleStore
	Registry  *service.SessionRegistry
}

type testEnvOptions struct {
	Users               []devauth.SeedUser
	RequireConfirmation bool
	// WithoutDirectory disables role listing.
	WithoutDirectory bool
}

func newTestEnv(t *testing.T, opts testEnvOptions) *testEnv {
	t.Helper()
	users := opts.Users
	if users == nil {
		users = []devauth.SeedUser{citoyenUser, adminUser, superUser}
	}
	dir, err := devauth.NewDirectory(devauth.DirectoryOptions{
		Users:               users,
		RequireConfirmation: opts.RequireConfirmation,
		BcryptCost:          4,
	})
	require.NoError(t, err)

	seed := make(map[string]domainauth.RawRole, len(users))
	for _, u := range users {
		seed[u.ID()] = u.Role
	}
	roles := authroles.NewStaticRoleStore(seed)

	logger := discardLogger()
	registry := service.NewSessionRegistry(service.SessionRegistryOptions{
		Identities: &devauth.Factory{Directory: dir, Logger: logger},
		Roles:      roles,
		Logger:     logger,
	})
	t.Cleanup(registry.Close)

	services := RouterServices{
		Registry:    registry,
		Roles:       roles,
		PendingWait: 2 * time.Second,
		Logger:      logger,
	}
	if !opts.WithoutDirectory {
		services.Directory = roles
	}
	router, err := NewRouter(services)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{Server: srv, Directory: dir, Roles: roles, Registry: registry}
}

// client returns a cookie-keeping client that does not follow redirects.
func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// JSONRequest encapsulates the parameters needed to execute a JSON HTTP request.
type JSONRequest struct {
	Method  string
	Path    string
	Payload any
}

// doJSON performs req as an API client.
func (e *testEnv) doJSON(t *testing.T, c *http.Client, req JSONRequest) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var body io.Reader = http.NoBody
	if req.Payload != nil {
		b, err := json.Marshal(req.Payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, e.Server.URL+req.Path, body)
	require.NoError(t, err)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(httpReq)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// browserGet performs a GET as a browser.
func (e *testEnv) browserGet(t *testing.T, c *http.Client, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, e.Server.URL+path, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// signIn signs c in through the JSON API.
func (e *testEnv) signIn(t *testing.T, c *http.Client, u devauth.SeedUser) {
	t.Helper()
	resp := e.doJSON(t, c, JSONRequest{
		Method:  http.MethodPost,
		Path:    "/login",
		Payload: map[string]string{"email": u.Email, "password": u.Password},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// fakeIdentities hands every session a fake identity service without a session.
type fakeIdentities struct{}

func (fakeIdentities) ForSession(string) ports.IdentityService {
	return mockauth.NewFakeIdentityService(nil)
}

// newReadyStore builds a session store over a fake identity service and
// waits for it to restore sess.
func newReadyStore(t *testing.T, sess *domainauth.Session, roles map[string]domainauth.RawRole) (*service.SessionStore, *mockauth.FakeIdentityService) {
	t.Helper()
	id := mockauth.NewFakeIdentityService(sess)
	store := service.NewSessionStore(service.SessionStoreOptions{
		Identity: id,
		Roles:    mockauth.NewMemoryRoleStore(roles),
		Logger:   discardLogger(),
	})
	t.Cleanup(store.Dispose)
	require.NoError(t, store.Initialize(context.Background()))
	_, err := store.WaitFor(context.Background(), func(st domainauth.AuthState) bool { return !st.Loading })
	require.NoError(t, err)
	return store, id
}

// withStore binds store to r the way the Sessions middleware does.
func withStore(r *http.Request, store *service.SessionStore) *http.Request {
	return r.WithContext(SetSessionInContext(r.Context(), "test-session-id", store))
}
