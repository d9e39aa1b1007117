package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keystone-iam/keystone/internal/app"
	"github.com/keystone-iam/keystone/internal/auth"
	"github.com/keystone-iam/keystone/internal/features"
	"github.com/keystone-iam/keystone/internal/observability"
	"github.com/keystone-iam/keystone/internal/platform/cache"
	"github.com/keystone-iam/keystone/internal/platform/db"
	"github.com/keystone-iam/keystone/internal/rbac"
	"github.com/keystone-iam/keystone/internal/roles"
	"github.com/keystone-iam/keystone/internal/users"
	"github.com/keystone-iam/keystone/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, role cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	featuresRepo := features.NewRepository(dbpool)
	featuresService := features.NewService(featuresRepo, logger)

	rolesRepo := roles.NewRepository(dbpool)
	rolesCache := roles.NewCache(redisClient, cfg.RoleCacheTTL)
	rolesService := roles.NewService(rolesRepo, featuresService, rolesCache, logger)

	// Bootstrap is idempotent: the catalog seeds only when empty, and the
	// role policy recomputes from whatever the catalog holds.
	if err := featuresService.Seed(ctx); err != nil {
		logger.Error("seed features", slog.Any("error", err))
		os.Exit(1)
	}
	if err := rolesService.SeedPolicy(ctx); err != nil {
		logger.Error("seed roles", slog.Any("error", err))
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, rolesService, logger)

	tokenService := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	recorder := jobs.NewAuthEventRecorder(cfg.RedisAddr, logger)
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn("recorder close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(usersService, rolesService, tokenService, recorder, logger)
	authMiddleware := auth.Middleware{Tokens: tokenService, Users: usersService, Logger: logger}
	authHandler := auth.NewHandler(logger, authService, authMiddleware, cfg.IsProduction())

	metrics := observability.NewMetrics()
	guard := rbac.Guard{
		Policy:   rbac.DefaultPolicy(),
		Resolver: rolesService,
		Logger:   logger,
		Metrics:  metrics,
	}

	featuresHandler := features.NewHandler(logger, featuresService, guard)
	rolesHandler := roles.NewHandler(logger, rolesService)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		AuthMiddleware:  authMiddleware,
		FeaturesHandler: featuresHandler,
		RolesHandler:    rolesHandler,
		Guard:           guard,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
