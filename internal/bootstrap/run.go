package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tracenation/tracenation-api/config"
	httpx "github.com/tracenation/tracenation-api/internal/http"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
)

// Infrastructure holds the optional backing stores.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// Close releases the connections that were opened.
func (i *Infrastructure) Close(logger *slog.Logger) {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Error("close redis failed", "error", err)
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			logger.Error("close database failed", "error", err)
		}
	}
}

// ConnectInfrastructure opens Postgres and Redis when they are enabled and
// applies migrations when configured to.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	if cfg.Postgres.Enabled {
		db, err := ConnectDB(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
		if cfg.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				infra.Close(logger)
				return nil, err
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	if cfg.Redis.Enabled {
		client, err := ConnectRedis(dbCfg)
		if err != nil {
			infra.Close(logger)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = client
	}
	return infra, nil
}

// readyChecks probes whichever stores are configured.
func readyChecks(infra *Infrastructure) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if infra.DB != nil {
		checks["postgres"] = infra.DB.PingContext
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	}
	return checks
}

// newMetrics registers the auth collectors next to the Go runtime ones.
func newMetrics() (*metrics.AuthMetrics, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewAuthMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

const sessionReportInterval = time.Minute

// reportSessions logs the registry size until ctx ends.
func reportSessions(ctx context.Context, auth *AuthComponents, logger *slog.Logger) {
	ticker := time.NewTicker(sessionReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.DebugContext(ctx, "session registry", "active_sessions", auth.Registry.Len())
		}
	}
}

// Run starts the service and blocks until ctx is canceled or the server fails.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	infra, err := ConnectInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close(logger)

	authMetrics, metricsHandler := newMetrics()

	auth, err := BuildAuth(ctx, AuthDeps{
		Config:      cfg,
		DB:          infra.DB,
		RedisClient: infra.Redis,
		Metrics:     authMetrics,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}
	defer auth.Close()

	server, err := NewHTTPServer(&HTTPServerConfig{
		Config:         cfg,
		Auth:           auth,
		ReadyChecks:    readyChecks(infra),
		Metrics:        authMetrics,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		reportSessions(gctx, auth, logger)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.InfoContext(ctx, "shutdown complete")
	return nil
}
