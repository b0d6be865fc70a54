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

	"golang.org/x/sync/errgroup"

	"github.com/vantage-erp/vantage-erp/internal/app"
	"github.com/vantage-erp/vantage-erp/internal/audit"
	audithttp "github.com/vantage-erp/vantage-erp/internal/audit/http"
	"github.com/vantage-erp/vantage-erp/internal/authz"
	cataloghttp "github.com/vantage-erp/vantage-erp/internal/catalog/http"
	"github.com/vantage-erp/vantage-erp/internal/events"
	"github.com/vantage-erp/vantage-erp/internal/grants"
	"github.com/vantage-erp/vantage-erp/internal/observability"
	"github.com/vantage-erp/vantage-erp/internal/platform/cache"
	"github.com/vantage-erp/vantage-erp/internal/platform/db"
	"github.com/vantage-erp/vantage-erp/internal/roles"
	roleshttp "github.com/vantage-erp/vantage-erp/internal/roles/http"
	"github.com/vantage-erp/vantage-erp/internal/staff"
	staffhttp "github.com/vantage-erp/vantage-erp/internal/staff/http"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo)

	staffRepo := staff.NewRepository(pool)
	staffService := staff.NewService(staffRepo, rolesService)

	resolver := authz.NewService(staffService, rolesService)
	authzMiddleware := authz.Middleware{Service: resolver, Logger: logger}

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	bus := events.NewBus(redisClient, logger)
	coordinator := grants.NewCoordinator(rolesService, staffService, resolver, auditService, bus, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        observability.NewMetrics(),
		CatalogHandler: cataloghttp.NewHandler(authzMiddleware),
		RolesHandler:   roleshttp.NewHandler(logger, rolesService, coordinator, authzMiddleware),
		StaffHandler:   staffhttp.NewHandler(logger, staffService, resolver, coordinator, authzMiddleware),
		AuditHandler:   audithttp.NewHandler(logger, auditService, authzMiddleware),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		err := bus.SubscribePermissionsChanged(groupCtx, func(event events.PermissionsChanged) {
			logger.Info("permissions changed",
				slog.String("scope", string(event.Scope)),
				slog.String("target", event.TargetName),
			)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
