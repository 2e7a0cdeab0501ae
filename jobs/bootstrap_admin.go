package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/estatehub/estatehub/internal/jobs"
	"github.com/estatehub/estatehub/internal/platform/httpx"
	"github.com/estatehub/estatehub/internal/users"
)

// AdminBootstrapper creates super_admin accounts.
type AdminBootstrapper interface {
	BootstrapAdmin(ctx context.Context, email, password string) (users.User, error)
}

// BootstrapAdminJob runs admin bootstrap on the worker.
type BootstrapAdminJob struct {
	Users   AdminBootstrapper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBootstrapAdminJob wires dependencies for the bootstrap handler.
func NewBootstrapAdminJob(svc AdminBootstrapper, logger *slog.Logger, metrics *jobmetrics.Metrics) *BootstrapAdminJob {
	return &BootstrapAdminJob{Users: svc, Logger: logger, Metrics: metrics}
}

// Handle processes TaskUsersBootstrapAdmin tasks. Invalid input is not retried.
func (j *BootstrapAdminJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Users == nil {
		return errors.New("bootstrap admin: handler not configured")
	}
	var payload BootstrapAdminPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskUsersBootstrapAdmin)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	u, err := j.Users.BootstrapAdmin(ctx, payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			logger.Warn("bootstrap admin rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		logger.Error("bootstrap admin", slog.Any("error", err))
		return err
	}
	logger.Info("bootstrap admin complete", slog.String("user_id", u.ID.String()))
	return nil
}
