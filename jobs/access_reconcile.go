package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/estatehub/estatehub/internal/jobs"
	"github.com/estatehub/estatehub/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Reconciler removes orphaned role assignments.
type Reconciler interface {
	ReconcileAssignments(ctx context.Context) (int, error)
}

// KeyCleaner expires idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// ReconcileJob runs access reconciliation on the worker. When Keys is set it
// also expires idempotency keys past shared.IdempotencyRetention.
type ReconcileJob struct {
	Access  Reconciler
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob wires dependencies for the reconcile handler.
func NewReconcileJob(access Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Access: access, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAccessReconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Access == nil {
		return errors.New("access reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskAccessReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	removed, err := j.Access.ReconcileAssignments(ctx)
	if err != nil {
		logger.Error("reconcile assignments", slog.Any("error", err))
		return err
	}
	j.metrics().AddPruned(removed)
	logger.Info("reconcile assignments complete", slog.Int("removed", removed))

	if j.Keys != nil {
		expired, err := j.Keys.Cleanup(ctx, shared.IdempotencyRetention)
		if err != nil {
			// Stale keys only block replays; the prune above already succeeded.
			logger.Warn("expire idempotency keys", slog.Any("error", err))
			return nil
		}
		logger.Debug("idempotency keys expired", slog.Int("count", expired))
	}
	return nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
