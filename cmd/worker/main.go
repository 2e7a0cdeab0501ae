package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/estatehub/estatehub/internal/app"
	jobmetrics "github.com/estatehub/estatehub/internal/jobs"
	"github.com/estatehub/estatehub/jobs"
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
	if cfg.UsesMemoryStore() {
		logger.Error("worker requires ACCESS_STORE=postgres")
		os.Exit(1)
	}

	services, err := app.BuildServices(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	metrics := jobmetrics.NewMetrics(nil)
	reconcileJob := jobs.NewReconcileJob(services.Access, logger, metrics)
	reconcileJob.Keys = services.Keys
	bootstrapJob := jobs.NewBootstrapAdminJob(services.Users, logger, metrics)

	reconcileTask, err := jobs.NewReconcileTask("scheduled")
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskUsersBootstrapAdmin, Handler: bootstrapJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AccessReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
