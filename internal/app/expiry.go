package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/estatehub/estatehub/internal/shared"
)

// ExpireIdempotencyKeys prunes keys older than retention on the cron schedule
// until ctx is cancelled. Memory mode has no worker, so the API process runs
// this itself.
func ExpireIdempotencyKeys(ctx context.Context, keys shared.IdempotencyKeys, spec string, retention time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		removed, err := keys.Cleanup(ctx, retention)
		if err != nil {
			logger.Warn("expire idempotency keys", slog.Any("error", err))
			return
		}
		if removed > 0 {
			logger.Debug("idempotency keys expired", slog.Int("removed", removed))
		}
	}); err != nil {
		return err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
