package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/estatehub/estatehub/internal/observability"
	"github.com/estatehub/estatehub/internal/platform/cache"
	"github.com/estatehub/estatehub/internal/platform/db"
	"github.com/estatehub/estatehub/internal/rbac"
	"github.com/estatehub/estatehub/internal/shared"
	"github.com/estatehub/estatehub/internal/users"
)

// Services holds the domain services shared by the API, worker and seed
// binaries.
type Services struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Access *rbac.Service
	View   *rbac.View
	Users  *users.Service
	// Keys records Idempotency-Key values for access mutations.
	Keys shared.IdempotencyKeys

	closers []func()
}

// Close releases connections in reverse acquisition order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// HealthChecks returns probes for the connected backends.
func (s *Services) HealthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{}
	if s.Pool != nil {
		checks["postgres"] = s.Pool.Ping
	}
	if s.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return s.Redis.Ping(ctx).Err() }
	}
	return checks
}

// BuildServices connects the configured backends and constructs services.
// Memory mode touches no external system and change events stay in process.
func BuildServices(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{}
	accessOpts := []rbac.ServiceOption{rbac.WithLogger(logger)}
	if metrics != nil {
		accessOpts = append(accessOpts, rbac.WithMutationObserver(metrics))
	}
	userOpts := []users.Option{users.WithLogger(logger)}

	var (
		store    rbac.Store
		userRepo users.RepositoryPort
	)
	if EffectiveStore(cfg) == StoreMemory {
		logger.Info("using in-memory access store")
		store = rbac.NewMemoryStore()
		userRepo = users.NewMemoryRepository()
		s.Keys = shared.NewMemoryIdempotency()
	} else {
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "estatehub"})
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
		if err := db.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, err
		}

		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			_ = client.Close()
			s.Close()
			return nil, fmt.Errorf("change notifications need redis: %w", err)
		}
		s.Redis = client
		s.closers = append(s.closers, func() {
			if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})

		audit := shared.NewAuditLogger(pool)
		store = rbac.NewPGStore(pool)
		userRepo = users.NewRepository(pool)
		s.Keys = shared.NewIdempotencyStore(pool)
		accessOpts = append(accessOpts, rbac.WithNotifier(rbac.NewRedisNotifier(client, cfg.AccessChangeChannel)), rbac.WithAudit(audit))
		userOpts = append(userOpts, users.WithAudit(audit))
	}

	s.Access = rbac.NewService(store, accessOpts...)
	s.View = rbac.NewView(s.Access, logger, rbac.WithMaxAge(cfg.AccessViewMaxAge))
	s.Users = users.NewService(userRepo, userOpts...)
	return s, nil
}
