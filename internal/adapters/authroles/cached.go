package authroles

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

const defaultCacheSize = 4096

// CachedRoleStore memoizes GetRole results, including the absence of a role,
// for a short TTL. Upserts through the cache update it immediately; writes
// made elsewhere become visible after the TTL.
type CachedRoleStore struct {
	next  ports.RoleStore
	cache *expirable.LRU[string, domainauth.RawRole]
}

var _ ports.RoleStore = (*CachedRoleStore)(nil)

// NewCachedRoleStore wraps next. size <= 0 uses a default.
func NewCachedRoleStore(next ports.RoleStore, size int, ttl time.Duration) *CachedRoleStore {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &CachedRoleStore{
		next:  next,
		cache: expirable.NewLRU[string, domainauth.RawRole](size, nil, ttl),
	}
}

// GetRole implements ports.RoleStore. Failures are not cached.
func (c *CachedRoleStore) GetRole(ctx context.Context, userID string) (domainauth.RawRole, error) {
	if role, ok := c.cache.Get(userID); ok {
		if role == domainauth.RawRoleNone {
			return role, ports.ErrRoleNotFound
		}
		return role, nil
	}

	role, err := c.next.GetRole(ctx, userID)
	switch {
	case err == nil:
		c.cache.Add(userID, role)
	case errors.Is(err, ports.ErrRoleNotFound):
		c.cache.Add(userID, domainauth.RawRoleNone)
	}
	return role, err
}

// UpsertRole implements ports.RoleStore.
func (c *CachedRoleStore) UpsertRole(ctx context.Context, userID string, role domainauth.RawRole) error {
	if err := c.next.UpsertRole(ctx, userID, role); err != nil {
		c.cache.Remove(userID)
		return err
	}
	c.cache.Add(userID, role)
	return nil
}

// Invalidate drops the cached role of userID.
func (c *CachedRoleStore) Invalidate(userID string) {
	c.cache.Remove(userID)
}
