// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flightscheduly/backend/internal/admin"
	"github.com/flightscheduly/backend/internal/auth"
	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/health"
	"github.com/flightscheduly/backend/internal/middleware"
	"github.com/flightscheduly/backend/internal/server"
	"github.com/flightscheduly/backend/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("failed to initialize telemetry", "error", err)
	} else if telemetry.Enabled() {
		logger.Info("OpenTelemetry tracer initialized",
			"endpoint", cfg.Otel.Endpoint,
		)
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			return err
		}
		logger.Info("database migrations applied", "count", applied)
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "HS256",
		"issuer", cfg.JWT.Issuer,
		"expiration_minutes", cfg.JWT.ExpirationMinutes,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(
		userRepo,
		user.NewPasswordPolicy(cfg.Password),
		cfg.Lockout,
	)
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(
		userSvc,
		jwtManager,
		auth.RandomRefreshTokens{},
		cfg.JWT,
	)
	authHandler := auth.NewHandler(authSvc, auth.NewMetrics(registry))

	if cfg.Seed.Enabled {
		if err := seedAdministrator(ctx, userSvc, cfg.Seed, logger); err != nil {
			return err
		}
	}

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Sessions:   authSvc,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
		ServiceName:   cfg.Otel.ServiceName,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	if cfg.Metrics.Enabled {
		router.Use(middleware.NewHTTPMetrics(registry).Handler)
	}
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Budget: middleware.Budget{
				Requests: cfg.RateLimit.Requests,
				Burst:    cfg.RateLimit.Burst,
				Window:   cfg.RateLimit.Window,
			},
			Skip: probePaths(cfg.Metrics.Path),
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{Registry: registry},
		))
	}

	credentialLimit := middleware.NewRateLimiter(
		redis.Client,
		middleware.RateLimitConfig{
			Budget:  middleware.PerMinute(10, 5),
			KeyFunc: middleware.KeyByIPAndEndpoint,
		},
	).Handler

	userTypeLimit := middleware.UserTypeRateLimiter(
		redis.Client,
		middleware.DefaultUserTypeBudgets,
	)
	verify := middleware.Authenticator(jwtManager)
	authenticator := func(next http.Handler) http.Handler {
		return verify(userTypeLimit(next))
	}
	adminOnly := middleware.RequireAdmin

	router.Route("/api", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, adminOnly, credentialLimit)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
	})

	healthHandler.SetReady(true)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func seedAdministrator(
	ctx context.Context,
	users *user.Service,
	cfg config.SeedConfig,
	logger *slog.Logger,
) error {
	admin, created, err := users.EnsureAdministrator(
		ctx,
		cfg.AdminEmail,
		cfg.AdminPassword,
	)
	if err != nil {
		return fmt.Errorf("seed administrator: %w", err)
	}

	if created {
		logger.Info("administrator account seeded",
			"user_id", admin.ID,
			"email", admin.Email,
		)
	}

	return nil
}

// probePaths keeps orchestrator health checks and scrapes out of the
// per-IP budget.
func probePaths(metricsPath string) func(*http.Request) bool {
	probes := map[string]struct{}{
		"/healthz":  {},
		"/livez":    {},
		"/readyz":   {},
		metricsPath: {},
	}
	return func(r *http.Request) bool {
		_, ok := probes[r.URL.Path]
		return ok
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
