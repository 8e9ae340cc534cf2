package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/testutil"
	"golang.org/x/oauth2"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func testSession(userID string) domainauth.Session {
	return domainauth.Session{
		Token: &oauth2.Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "bearer",
			Expiry:       time.Now().Add(time.Hour).Round(time.Second),
		},
		User: domainauth.User{ID: userID, Email: "awa@tracker.sn", Metadata: map[string]any{"full_name": "Awa Diop"}},
	}
}

func TestTokenStore_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewTokenStore(client, TokenStoreOptions{Prefix: "test-tokens:"})
	ctx := context.Background()
	sess := testSession("user-123")

	require.NoError(t, store.Save(ctx, "sid-1", sess))

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, got.User.ID)
	assert.Equal(t, "Awa Diop", got.User.FullName())
	assert.Equal(t, "refresh", got.Token.RefreshToken)
	assert.WithinDuration(t, sess.Token.Expiry, got.Token.Expiry, time.Second)

	ttl := client.TTL(ctx, "test-tokens:sid-1").Val()
	assert.Greater(t, ttl, time.Hour)
}

func TestTokenStore_GetNonExistent(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewTokenStore(client, TokenStoreOptions{})
	_, err := store.Get(context.Background(), "non-existent")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestTokenStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewTokenStore(client, TokenStoreOptions{Prefix: "test-tokens:"})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sid-delete", testSession("u")))
	require.NoError(t, store.Delete(ctx, "sid-delete"))

	_, err := store.Get(ctx, "sid-delete")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.NoError(t, store.Delete(ctx, ""))
}

func TestTokenStore_TTLExpiration(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewTokenStore(client, TokenStoreOptions{Prefix: "test-tokens:", TTL: 100 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sid-ttl", testSession("u")))
	time.Sleep(200 * time.Millisecond)

	_, err := store.Get(ctx, "sid-ttl")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestTokenStore_RejectsInvalidInput(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewTokenStore(client, TokenStoreOptions{})
	ctx := context.Background()

	err := store.Save(ctx, "", testSession("u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session id cannot be empty")

	err = store.Save(ctx, "sid", domainauth.Session{User: domainauth.User{ID: "u"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session has no token")
}

func TestTokenStore_TokenlessEntryIsCleanedUp(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewTokenStore(client, TokenStoreOptions{Prefix: "test-tokens:"})
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "test-tokens:broken", `{"user":{"id":"u"}}`, time.Minute).Err())

	_, err := store.Get(ctx, "broken")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, int64(0), client.Exists(ctx, "test-tokens:broken").Val())
}
