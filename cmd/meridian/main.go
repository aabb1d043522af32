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

	"github.com/meridian-ai/meridian/internal/accessroles"
	"github.com/meridian-ai/meridian/internal/acl"
	"github.com/meridian-ai/meridian/internal/app"
	"github.com/meridian-ai/meridian/internal/auth"
	"github.com/meridian-ai/meridian/internal/groups"
	"github.com/meridian-ai/meridian/internal/observability"
	"github.com/meridian-ai/meridian/internal/platform/cache"
	"github.com/meridian-ai/meridian/internal/platform/db"
	"github.com/meridian-ai/meridian/internal/resources"
	"github.com/meridian-ai/meridian/internal/shared"
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

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionTTL, cfg.IsProduction())

	typeRegistry := resources.NewTypeRegistry()
	lookupRegistry := resources.NewLookupRegistry()
	lookupRegistry.Register(resources.TypeAgent, resources.NewTableLookup(pool, "agents", "id", "author_id"))
	lookupRegistry.Register(resources.TypePromptGroup, resources.NewTableLookup(pool, "prompt_groups", "id", "author_id"))
	lookupRegistry.Register(resources.TypeMCPServer, resources.NewTableLookup(pool, "mcp_servers", "id", "author_id"))
	lookupRegistry.Register(resources.TypeRemoteAgent, resources.NewTableLookup(pool, "remote_agents", "id", "author_id"))
	lookupRegistry.Register(resources.TypeFile, resources.NewTableLookup(pool, "files", "id", "author_id"))

	rolesRepo := accessroles.NewRepository(pool)
	rolesService := accessroles.NewService(rolesRepo, typeRegistry, logger)
	if err := rolesService.SeedDefaults(ctx); err != nil {
		logger.Error("seed default access roles", slog.Any("error", err))
		os.Exit(1)
	}

	entryRepo := acl.NewEntryRepository(pool)
	groupsRepo := groups.NewRepository(pool)
	resolver := acl.NewResolver(groupsRepo)
	queries := acl.NewQueries(entryRepo)
	grants := acl.NewGrants(entryRepo, rolesService, typeRegistry)
	permissionService := acl.NewService(resolver, queries, grants, typeRegistry, logger)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		PermissionsHandler: acl.NewHandler(logger, permissionService),
		AccessRolesHandler: accessroles.NewHandler(logger, rolesService),
		Metrics:            metrics,
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
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
