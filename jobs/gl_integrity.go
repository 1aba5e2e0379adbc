package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// maxLoggedEntries bounds the ids echoed into one log record.
const maxLoggedEntries = 50

// IntegrityScanner lists posted entries whose lines do not balance.
type IntegrityScanner interface {
	UnbalancedEntries(ctx context.Context) ([]int64, error)
}

// GLIntegrityJob publishes the unbalanced posted-entry count.
type GLIntegrityJob struct {
	Scanner IntegrityScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(scanner IntegrityScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle runs the scan. Findings are reported through the gauge and an error
// log; the task itself only fails when the scan cannot run.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("gl integrity: dependencies not configured")
	}
	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskGLIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids, err := j.Scanner.UnbalancedEntries(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("gl integrity scan failed", slog.Any("error", err))
		return resultErr
	}
	metrics.SetUnbalancedEntries(len(ids))
	if len(ids) == 0 {
		j.log().Info("gl integrity check passed")
		return resultErr
	}
	logged := ids
	if len(logged) > maxLoggedEntries {
		logged = logged[:maxLoggedEntries]
	}
	j.log().Error("unbalanced posted journal entries detected",
		slog.Int("count", len(ids)), slog.Any("entry_ids", logged))
	return resultErr
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
