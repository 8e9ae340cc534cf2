package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/tracenation/tracenation-api/config"
	"github.com/tracenation/tracenation-api/internal/adapters/authroles"
	"github.com/tracenation/tracenation-api/internal/adapters/devauth"
	"github.com/tracenation/tracenation-api/internal/adapters/gotrue"
	redisadapter "github.com/tracenation/tracenation-api/internal/adapters/redis"
	"github.com/tracenation/tracenation-api/internal/data"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
	"github.com/tracenation/tracenation-api/internal/ports"
	"github.com/tracenation/tracenation-api/internal/service"
)

// AuthDeps contains the infrastructure the auth core is built on.
type AuthDeps struct {
	Config *config.AppConfig
	// DB is nil when DB_ENABLED=false; roles are then kept in memory.
	DB *sql.DB
	// RedisClient is nil when REDIS_ENABLED=false; tokens then live only as
	// long as the session store holding them.
	RedisClient redis.UniversalClient
	Metrics     *metrics.AuthMetrics
	Logger      *slog.Logger
}

// AuthComponents are the auth core pieces shared by the HTTP layer.
type AuthComponents struct {
	Registry   *service.SessionRegistry
	Roles      ports.RoleStore
	Directory  ports.RoleDirectory
	Identities ports.IdentityFactory
	// Tokens is nil when Redis is disabled.
	Tokens ports.TokenStore
}

// Close disposes every session store.
func (a *AuthComponents) Close() {
	if a != nil && a.Registry != nil {
		a.Registry.Close()
	}
}

// BuildAuth wires the role store, token store, identity service and the
// session registry for the configured auth mode.
func BuildAuth(ctx context.Context, deps AuthDeps) (*AuthComponents, error) {
	if deps.Config == nil {
		return nil, errors.New("auth config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roles, directory := buildRoleStore(deps.DB)

	var tokens ports.TokenStore
	if deps.RedisClient != nil {
		tokens = redisadapter.NewTokenStore(deps.RedisClient, redisadapter.TokenStoreOptions{
			Prefix: cfg.Redis.KeyPrefix,
			TTL:    cfg.Session.TokenTTL,
		})
	} else {
		logger.WarnContext(ctx, "redis disabled: sessions will not survive restarts or registry evictions")
	}

	var (
		identities ports.IdentityFactory
		err        error
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		identities, err = buildDevIdentities(ctx, devIdentityDeps{
			Auth:   cfg.Auth,
			Roles:  roles,
			Tokens: tokens,
			Logger: logger,
		})
	case config.AuthModeGoTrue:
		identities, err = buildGoTrueIdentities(ctx, cfg.Auth, tokens, logger)
	default:
		err = fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	if err != nil {
		return nil, err
	}

	// Cache in front of the seeded store so seeding never fills the cache.
	if cfg.Auth.RoleCacheTTL > 0 {
		roles = authroles.NewCachedRoleStore(roles, cfg.Session.RegistrySize, cfg.Auth.RoleCacheTTL)
	}

	registry := service.NewSessionRegistry(service.SessionRegistryOptions{
		Identities:  identities,
		Roles:       roles,
		Size:        cfg.Session.RegistrySize,
		IdleTTL:     cfg.Session.IdleTTL,
		InitTimeout: cfg.Session.InitTimeout,
		Store: service.SessionStoreOptions{
			SignUpRedirectTo: signUpRedirect(cfg),
			RoleFetchRetries: cfg.Auth.RoleFetchRetries,
			RoleFetchBackoff: cfg.Auth.RoleFetchBackoff,
			RoleFetchTimeout: cfg.Auth.RoleFetchTimeout,
		},
		Metrics: deps.Metrics,
		Logger:  logger,
	})

	logger.InfoContext(ctx, "auth core ready",
		"mode", cfg.Auth.Mode,
		"role_store", roleStoreKind(deps.DB),
		"persisted_tokens", tokens != nil,
		"role_fetch_retries", cfg.Auth.RoleFetchRetries,
	)

	return &AuthComponents{
		Registry:   registry,
		Roles:      roles,
		Directory:  directory,
		Identities: identities,
		Tokens:     tokens,
	}, nil
}

func buildRoleStore(db *sql.DB) (ports.RoleStore, ports.RoleDirectory) {
	if db == nil {
		s := authroles.NewStaticRoleStore(nil)
		return s, s
	}
	repo := data.NewUserRoleRepo(db)
	return repo, repo
}

func roleStoreKind(db *sql.DB) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}

type devIdentityDeps struct {
	Auth   config.AuthConfig
	Roles  ports.RoleStore
	Tokens ports.TokenStore
	Logger *slog.Logger
}

func buildDevIdentities(ctx context.Context, deps devIdentityDeps) (*devauth.Factory, error) {
	users, err := devauth.ParseUsers(deps.Auth.DevAuth.Users)
	if err != nil {
		return nil, fmt.Errorf("parse DEV_AUTH_USERS: %w", err)
	}
	dir, err := devauth.NewDirectory(devauth.DirectoryOptions{
		Users:               users,
		RequireConfirmation: deps.Auth.DevAuth.RequireConfirmation,
	})
	if err != nil {
		return nil, fmt.Errorf("build dev directory: %w", err)
	}

	for _, u := range users {
		if err := deps.Roles.UpsertRole(ctx, u.ID(), u.Role); err != nil {
			return nil, fmt.Errorf("seed role for %s: %w", u.Email, err)
		}
	}

	deps.Logger.WarnContext(ctx, "dev identity service enabled; do not use in production",
		"seed_users", len(users),
		"require_confirmation", deps.Auth.DevAuth.RequireConfirmation,
	)
	return &devauth.Factory{Directory: dir, Tokens: deps.Tokens, Logger: deps.Logger}, nil
}

func buildGoTrueIdentities(
	ctx context.Context,
	auth config.AuthConfig,
	tokens ports.TokenStore,
	logger *slog.Logger,
) (*gotrue.Client, error) {
	httpClient := &http.Client{Timeout: auth.GoTrue.Timeout}

	var verifier gotrue.Verifier
	switch {
	case auth.GoTrue.JWKSURL != "":
		v, err := gotrue.NewJWKSVerifier(ctx, auth.GoTrue.JWKSURL, auth.GoTrue.Issuer, httpClient)
		if err != nil {
			return nil, fmt.Errorf("build jwks verifier: %w", err)
		}
		verifier = v
	case auth.GoTrue.JWTSecret != "":
		v, err := gotrue.NewHMACVerifier(auth.GoTrue.JWTSecret, auth.GoTrue.Issuer)
		if err != nil {
			return nil, fmt.Errorf("build hmac verifier: %w", err)
		}
		verifier = v
	default:
		logger.WarnContext(ctx, "access tokens are not verified locally; set GOTRUE_JWKS_URL or GOTRUE_JWT_SECRET")
	}

	client, err := gotrue.NewClient(gotrue.Config{
		URL:        auth.GoTrue.URL,
		AnonKey:    auth.GoTrue.AnonKey,
		Verifier:   verifier,
		Tokens:     tokens,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build gotrue client: %w", err)
	}
	return client, nil
}

// signUpRedirect is the confirmation link target, defaulting to the sign-in page.
func signUpRedirect(cfg *config.AppConfig) string {
	if cfg.Auth.SignUpRedirectURL != "" {
		return cfg.Auth.SignUpRedirectURL
	}
	if cfg.HTTP.BaseURL == "" {
		return ""
	}
	return cfg.HTTP.BaseURL + "/login"
}
