package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	apperrors "github.com/tracenation/tracenation-api/internal/errors"
	"github.com/tracenation/tracenation-api/internal/data/pgxutil"
	"github.com/tracenation/tracenation-api/internal/ports"
)

const defaultUserRoleListLimit = 50

// UserRoleRepo stores the per-user role in the user_roles table.
type UserRoleRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ ports.RoleStore = (*UserRoleRepo)(nil)

// NewUserRoleRepo creates a new UserRoleRepo with real time provider.
func NewUserRoleRepo(db *sql.DB) *UserRoleRepo {
	return &UserRoleRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewUserRoleRepoWithTimeProvider creates a new UserRoleRepo with a custom time provider (useful for tests).
func NewUserRoleRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRoleRepo {
	return &UserRoleRepo{DB: db, timeProvider: tp}
}

const (
	userRoleGetQuery = `
		SELECT user_id, role, created_at, updated_at
		FROM user_roles
		WHERE user_id = $1`

	userRoleUpsertQuery = `
		INSERT INTO user_roles (user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		RETURNING user_id, role, created_at, updated_at`

	userRoleListQuery = `
		SELECT user_id, role, created_at, updated_at
		FROM user_roles
		ORDER BY updated_at DESC, user_id
		LIMIT $1 OFFSET $2`

	userRoleListByRoleQuery = `
		SELECT user_id, role, created_at, updated_at
		FROM user_roles
		WHERE role = $1
		ORDER BY updated_at DESC, user_id
		LIMIT $2 OFFSET $3`
)

// GetRole returns the stored role of userID, or ports.ErrRoleNotFound when
// the user has no row.
func (r *UserRoleRepo) GetRole(ctx context.Context, userID string) (domainauth.RawRole, error) {
	rec, err := r.Get(ctx, userID)
	if err != nil {
		return domainauth.RawRoleNone, err
	}
	return rec.Role, nil
}

// Get returns the full role record of userID.
func (r *UserRoleRepo) Get(ctx context.Context, userID string) (*domainauth.UserRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}

	var rec domainauth.UserRole
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userRoleGetQuery, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rec, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.UserRole])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get user role: %w", apperrors.MapDBError(err))
	}
	return &rec, nil
}

// UpsertRole inserts or replaces the stored role of userID.
func (r *UserRoleRepo) UpsertRole(ctx context.Context, userID string, role domainauth.RawRole) error {
	_, err := r.Upsert(ctx, userID, role)
	return err
}

// Upsert inserts or replaces the stored role of userID and returns the stored record.
func (r *UserRoleRepo) Upsert(ctx context.Context, userID string, role domainauth.RawRole) (*domainauth.UserRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	if !role.Known() {
		return nil, apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", role))
	}

	now := r.timeProvider.Now().UTC()
	var rec domainauth.UserRole
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userRoleUpsertQuery, userID, string(role), now)
		if err != nil {
			return err
		}
		defer rows.Close()
		rec, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.UserRole])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user role: %w", apperrors.MapDBError(err))
	}
	return &rec, nil
}

// List returns stored roles, most recently updated first. A non-empty role
// filters on the stored value.
func (r *UserRoleRepo) List(ctx context.Context, role domainauth.RawRole, limit, offset int) ([]domainauth.UserRole, error) {
	if limit <= 0 {
		limit = defaultUserRoleListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var out []domainauth.UserRole
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var (
			rows pgx.Rows
			err  error
		)
		if role == domainauth.RawRoleNone {
			rows, err = conn.Query(ctx, userRoleListQuery, limit, offset)
		} else {
			rows, err = conn.Query(ctx, userRoleListByRoleQuery, string(role), limit, offset)
		}
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[domainauth.UserRole])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Delete removes the stored role of userID. The user then resolves to citoyen.
func (r *UserRoleRepo) Delete(ctx context.Context, userID string) (bool, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete user role: %w", apperrors.MapDBError(err))
	}
	return affected > 0, nil
}
