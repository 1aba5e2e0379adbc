package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/forex"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	ledgershared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Revaluer books the unrealized forex adjustment for a date.
type Revaluer interface {
	CreateUnrealizedGainLossEntry(ctx context.Context, date time.Time, userID int64) (*journals.JournalEntry, error)
}

// ForexRevaluationJob runs the period-end revaluation.
type ForexRevaluationJob struct {
	Revaluer     ledgershared.Optional[Revaluer]
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	SystemUserID int64
	clock        func() time.Time
}

// NewForexRevaluationJob constructs the job handler.
func NewForexRevaluationJob(revaluer ledgershared.Optional[Revaluer], systemUserID int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *ForexRevaluationJob {
	return &ForexRevaluationJob{
		Revaluer:     revaluer,
		Logger:       logger,
		Metrics:      metrics,
		SystemUserID: systemUserID,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle revalues as of the payload date. Scheduled runs fire on the first
// of the month and default to the previous day, the month end.
func (j *ForexRevaluationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("forex revaluation: handler not configured")
	}
	revaluer, err := j.Revaluer.Get()
	if err != nil {
		return fmt.Errorf("forex revaluation: %v: %w", err, asynq.SkipRetry)
	}
	date, userID, err := decodePayload(t, ledgershared.DateOnly(j.now()).AddDate(0, 0, -1), j.SystemUserID)
	if err != nil {
		return err
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskForexRevaluation)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.String("date", date.Format(time.DateOnly)))
	entry, err := revaluer.CreateUnrealizedGainLossEntry(ctx, date, userID)
	switch {
	case errors.Is(err, forex.ErrPartialRevaluation):
		metrics.IncPartialRevaluation()
		resultErr = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		return resultErr
	case errors.Is(err, shared.ErrLockHeld):
		logger.Info("revaluation already running for date")
		return nil
	case err != nil:
		logger.Error("forex revaluation failed", slog.Any("error", err))
		resultErr = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		return resultErr
	case entry == nil:
		logger.Info("forex revaluation negligible; nothing booked")
	default:
		logger.Info("forex revaluation booked", slog.String("entry_no", entry.EntryNo), slog.Int64("entry_id", entry.ID))
	}
	return resultErr
}

func (j *ForexRevaluationJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskForexRevaluation))
	}
	return slog.Default().With(slog.String("job", TaskForexRevaluation))
}

func (j *ForexRevaluationJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the clock used for the default revaluation date.
func (j *ForexRevaluationJob) WithClock(clock func() time.Time) {
	j.clock = clock
}
