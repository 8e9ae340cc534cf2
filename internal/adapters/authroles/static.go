// Package authroles provides RoleStore implementations that sit beside or in
// front of the Postgres user_roles table.
package authroles

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/ports"
)

// StaticRoleStore keeps roles in memory. It backs the dev identity mode when
// no database is configured.
type StaticRoleStore struct {
	mu    sync.RWMutex
	roles map[string]domainauth.UserRole
	now   func() time.Time
}

var _ ports.RoleStore = (*StaticRoleStore)(nil)

// NewStaticRoleStore seeds the store with user id → stored role.
func NewStaticRoleStore(seed map[string]domainauth.RawRole) *StaticRoleStore {
	s := &StaticRoleStore{roles: make(map[string]domainauth.UserRole, len(seed)), now: time.Now}
	at := s.now().UTC()
	for id, role := range seed {
		s.roles[id] = domainauth.UserRole{UserID: id, Role: role, CreatedAt: at, UpdatedAt: at}
	}
	return s
}

// GetRole implements ports.RoleStore.
func (s *StaticRoleStore) GetRole(_ context.Context, userID string) (domainauth.RawRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.roles[userID]
	if !ok {
		return domainauth.RawRoleNone, ports.ErrRoleNotFound
	}
	return rec.Role, nil
}

// UpsertRole implements ports.RoleStore.
func (s *StaticRoleStore) UpsertRole(_ context.Context, userID string, role domainauth.RawRole) error {
	if !role.Known() {
		return domainauth.NewError(domainauth.KindRoleUpsertFailure, "unknown role "+string(role), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().UTC()
	rec, ok := s.roles[userID]
	if !ok {
		rec = domainauth.UserRole{UserID: userID, CreatedAt: at}
	}
	rec.Role = role
	rec.UpdatedAt = at
	s.roles[userID] = rec
	return nil
}

// List returns stored roles, most recently updated first, the same order the
// Postgres repository uses. A non-empty role filters on the stored value.
func (s *StaticRoleStore) List(_ context.Context, role domainauth.RawRole, limit, offset int) ([]domainauth.UserRole, error) {
	s.mu.RLock()
	out := make([]domainauth.UserRole, 0, len(s.roles))
	for _, rec := range s.roles {
		if role == domainauth.RawRoleNone || rec.Role == role {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domainauth.UserRole) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []domainauth.UserRole{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes the stored role of userID and reports whether one existed.
func (s *StaticRoleStore) Delete(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.roles[userID]
	delete(s.roles, userID)
	return ok, nil
}
