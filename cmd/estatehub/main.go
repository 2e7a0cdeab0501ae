package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/estatehub/estatehub/cmd/estatehub/cli"
	"github.com/estatehub/estatehub/internal/app"
	"github.com/estatehub/estatehub/internal/auth"
	"github.com/estatehub/estatehub/internal/observability"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/seed"
	"github.com/estatehub/estatehub/internal/shared"
	"github.com/estatehub/estatehub/internal/users"
	"github.com/estatehub/estatehub/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	services, err := app.BuildServices(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer services.Close()

	if err := services.View.Run(ctx); err != nil {
		return err
	}
	if app.EffectiveStore(cfg) == app.StoreMemory {
		if err := seedMemory(ctx, services, logger); err != nil {
			return err
		}
		if err := app.ExpireIdempotencyKeys(ctx, services.Keys, cfg.AccessReconcileCron, shared.IdempotencyRetention, logger); err != nil {
			return err
		}
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTokenTTL)
	rbacMiddleware := rbac.Middleware{View: services.View, Logger: logger}

	var inspector *asynq.Inspector
	if services.Redis != nil {
		inspector = asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("asynq inspector close", slog.Any("error", err))
			}
		}()
	}
	jobHandler := jobs.NewHandler(nil, logger)
	if inspector != nil {
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		AuthMiddleware: auth.Middleware{Tokens: tokens, Roles: services.Users, Logger: logger},
		AuthHandler:    auth.NewHandler(logger, auth.NewService(services.Users, tokens), services.View),
		AccessHandler:  rbac.NewHandler(logger, services.Access, services.View, rbacMiddleware, cfg.AllowedOrigins).WithIdempotency(services.Keys),
		UsersHandler:   users.NewHandler(logger, services.Users, rbacMiddleware),
		JobHandler:     jobHandler,
		HealthChecks:   services.HealthChecks(),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("estatehub listening", slog.String("addr", cfg.AppAddr), slog.String("store", app.EffectiveStore(cfg)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("estatehub stopped")
	return nil
}

// seedMemory gives a memory-backed process the default catalog and, when
// SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are set, an admin to sign in with.
func seedMemory(ctx context.Context, services *app.Services, logger *slog.Logger) error {
	if _, err := seed.Catalog(ctx, services.Access, shared.Catalog(), logger); err != nil {
		return err
	}
	email, password := os.Getenv("SEED_ADMIN_EMAIL"), os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		logger.Warn("memory store has no admin; set SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD")
		return nil
	}
	_, err := services.Users.BootstrapAdmin(ctx, email, password)
	return err
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: estatehub jobs <trigger|stats|scheduled> [args]")
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: estatehub jobs trigger <reconcile|bootstrap-admin> [args]")
		}
		info, err := jobsCLI.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		size := 10
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid page size %q", args[1])
			}
			size = n
		}
		tasks, err := jobsCLI.ListScheduled(ctx, size)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
