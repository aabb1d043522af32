package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-ai/meridian/internal/accessroles"
	"github.com/meridian-ai/meridian/internal/app"
	"github.com/meridian-ai/meridian/internal/observability"
	"github.com/meridian-ai/meridian/internal/platform/db"
	"github.com/meridian-ai/meridian/internal/resources"
	"github.com/meridian-ai/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	typeRegistry := resources.NewTypeRegistry()
	metrics := observability.NewMetrics()
	scanner := jobs.NewIntegrityScanner(pool, typeRegistry, logger, metrics)

	rolesRepo := accessroles.NewRepository(pool)
	rolesService := accessroles.NewService(rolesRepo, typeRegistry, logger)
	seedHandler := func(ctx context.Context, t *asynq.Task) error {
		if err := rolesService.SeedDefaults(ctx); err != nil {
			metrics.ObserveJob(jobs.TaskSeedAccessRoles, "error")
			return err
		}
		metrics.ObserveJob(jobs.TaskSeedAccessRoles, "ok")
		return nil
	}

	scanTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{})
	if err != nil {
		logger.Error("build integrity scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskACLIntegrityScan, Handler: scanner.HandleIntegrityScan},
			{Type: jobs.TaskSeedAccessRoles, Handler: seedHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
