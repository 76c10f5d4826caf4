package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sentinel-ops/sentinel/internal/app"
	"github.com/sentinel-ops/sentinel/internal/assets"
	"github.com/sentinel-ops/sentinel/internal/auth"
	"github.com/sentinel-ops/sentinel/internal/dashboard"
	"github.com/sentinel-ops/sentinel/internal/export"
	"github.com/sentinel-ops/sentinel/internal/observability"
	"github.com/sentinel-ops/sentinel/internal/platform/cache"
	"github.com/sentinel-ops/sentinel/internal/platform/db"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/requests"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	events := jobs.NewEvents(jobClient, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	rbacMiddleware := rbac.Middleware{Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, authRepo, tokens, logger)
	authn := auth.NewAuthenticator(tokens, logger, auth.WithAccounts(authService))
	authHandler := auth.NewHandler(logger, authService, authn)

	requestService := requests.NewService(requests.NewRepository(dbpool), logger,
		requests.WithIdempotency(idempotencyStore),
		requests.WithEvents(events),
		requests.WithMetrics(metrics),
	)
	requestHandler := requests.NewHandler(logger, requestService, rbacMiddleware)

	assetService := assets.NewService(assets.NewRepository(dbpool), logger,
		assets.WithIdempotency(idempotencyStore),
		assets.WithEvents(events),
		assets.WithMetrics(metrics),
	)
	assetHandler := assets.NewHandler(logger, assetService, rbacMiddleware)

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	if err := dashboardCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("dashboard cache invalidation listener", slog.Any("error", err))
	}
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), requestService, auditLogger, dashboardCache, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, jobClient, rbacMiddleware)

	exportHandler := export.NewHandler(logger, export.NewService(requestService, assetService, logger), rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Authenticate:       authn.Authenticate,
		OpsGuard:           authn.CheckRole(rbac.RoleAdmin),
		AuthHandler:        authHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(),
		RequestsHandler:    requestHandler,
		AssetsHandler:      assetHandler,
		DashboardHandler:   dashboardHandler,
		ExportHandler:      exportHandler,
		JobHandler:         jobs.NewHandler(inspector, logger),
		Checks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
