package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// KeyPruner deletes request keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	Pruner    KeyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the job handler.
func NewIdempotencyCleanupJob(pruner KeyPruner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Pruner: pruner, Retention: retention, Logger: logger, Metrics: metrics}
}

func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Pruner == nil {
		return errors.New("idempotency cleanup: dependencies not configured")
	}
	if j.Retention <= 0 {
		return errors.New("idempotency cleanup: retention must be positive")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	removed, err := j.Pruner.Cleanup(ctx, j.Retention)
	if err != nil {
		j.log().Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.log().Info("idempotency keys pruned",
		slog.Int64("removed", removed), slog.Duration("retention", j.Retention))
	return nil
}

func (j *IdempotencyCleanupJob) log() *slog.Logger {
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", TaskIdempotencyCleanup))
}
