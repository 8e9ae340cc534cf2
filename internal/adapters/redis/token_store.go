// Package redis provides Redis-based adapters for the auth gateway.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

// DefaultTokenTTL bounds how long a browser session can be restored without activity.
const DefaultTokenTTL = 30 * 24 * time.Hour

var _ ports.TokenStore = (*TokenStore)(nil)

// TokenStore persists identity sessions keyed by browser session id.
// Entries live for the configured TTL, renewed on every Save, so a refresh
// token outlives the access token it came with.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// TokenStoreOptions configures a TokenStore.
type TokenStoreOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewTokenStore creates a Redis-backed token store.
func NewTokenStore(client redis.UniversalClient, opts TokenStoreOptions) *TokenStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "tn:session:"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *TokenStore) Save(ctx context.Context, sid string, sess domainauth.Session) error {
	if sid == "" {
		return errors.New("session id cannot be empty")
	}
	if sess.Token == nil {
		return errors.New("session has no token")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+sid, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, sid string) (domainauth.Session, error) {
	if sid == "" {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+sid).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ports.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if sess.Token == nil {
		// Unusable entry; clean it up so the next restore is a plain miss.
		if err := s.Delete(ctx, sid); err != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup invalid session: %w", err)
		}
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (s *TokenStore) Delete(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+sid).Err()
}
