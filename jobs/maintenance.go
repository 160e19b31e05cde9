package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coopledger/coopledger/internal/reports"
)

// WarmupHandler pre-builds the cached dashboard reports so the first
// morning read hits a warm cache.
func WarmupHandler(service *reports.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if _, err := service.BuildSummary(ctx, time.Time{}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("report cache warmed")
		}
		return nil
	}
}

// KeyCleaner prunes rows older than the retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupHandler prunes expired idempotency keys.
func CleanupHandler(store KeyCleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		pruned, err := store.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("idempotency keys pruned", slog.Int64("count", pruned))
		}
		return nil
	}
}
