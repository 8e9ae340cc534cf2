package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracenation/tracenation-api/config"
	"github.com/tracenation/tracenation-api/internal/bootstrap"
	"github.com/tracenation/tracenation-api/internal/data"
	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
)

const defaultCommandTimeout = 5 * time.Minute

// roleAdmin is what the role commands need from the role store.
type roleAdmin interface {
	GetRole(ctx context.Context, userID string) (domainauth.RawRole, error)
	UpsertRole(ctx context.Context, userID string, role domainauth.RawRole) error
	List(ctx context.Context, role domainauth.RawRole, limit, offset int) ([]domainauth.UserRole, error)
	Delete(ctx context.Context, userID string) (bool, error)
}

// app carries the dependencies shared by commands. Tests replace the openers.
type app struct {
	out     io.Writer
	logger  *slog.Logger
	timeout time.Duration

	loadConfig func() (config.AppConfig, error)
	openDB     func(cfg config.AppConfig, logger *slog.Logger) (*sql.DB, error)
	openRoles  func(ctx context.Context) (roleAdmin, func(), error)
}

func newApp() *app {
	a := &app{
		out:        os.Stdout,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		timeout:    defaultCommandTimeout,
		loadConfig: bootstrap.LoadConfig,
		openDB: func(cfg config.AppConfig, logger *slog.Logger) (*sql.DB, error) {
			return bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
		},
	}
	a.openRoles = a.openRoleRepo
	return a
}

// withDB loads the configuration and opens Postgres for fn.
func (a *app) withDB(fn func(db *sql.DB) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Postgres.Enabled {
		return errors.New("DB_ENABLED=false: no role database to operate on")
	}
	db, err := a.openDB(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			a.logger.Warn("db close failed", "error", closeErr)
		}
	}()
	return fn(db)
}

func (a *app) openRoleRepo(_ context.Context) (roleAdmin, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Postgres.Enabled {
		return nil, nil, errors.New("DB_ENABLED=false: no role database to operate on")
	}
	db, err := a.openDB(cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	closeFn := func() {
		if closeErr := db.Close(); closeErr != nil {
			a.logger.Warn("db close failed", "error", closeErr)
		}
	}
	return data.NewUserRoleRepo(db), closeFn, nil
}

func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tracenation-admin",
		Short:         "TraceNation maintenance CLI",
		Long:          `tracenation-admin applies role store migrations and inspects or assigns user roles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", a.timeout, "Timeout for each command")
	root.SetOut(a.out)
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newRoleCmd(a))
	return root
}
