package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RecurringExpander is the journal behaviour the expansion job needs.
type RecurringExpander interface {
	ExpandRecurring(ctx context.Context, asOf time.Time, userID int64) (journals.ExpansionResult, error)
}

// Locker serialises ledger jobs across worker processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RecurringExpandJob generates the due drafts of every active pattern.
type RecurringExpandJob struct {
	Expander     RecurringExpander
	Locker       Locker
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	SystemUserID int64
	clock        func() time.Time
}

// NewRecurringExpandJob constructs the job handler.
func NewRecurringExpandJob(expander RecurringExpander, locker Locker, systemUserID int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurringExpandJob {
	return &RecurringExpandJob{
		Expander:     expander,
		Locker:       locker,
		Logger:       logger,
		Metrics:      metrics,
		SystemUserID: systemUserID,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle expands patterns up to the payload date (today when absent). Patterns
// that fail are logged and left for the next run; only a failure to load the
// due patterns is returned for retry.
func (j *RecurringExpandJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Expander == nil {
		return errors.New("recurring expand: dependencies not configured")
	}
	asOf, userID, err := decodePayload(t, j.now(), j.SystemUserID)
	if err != nil {
		return err
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskRecurringExpand)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Locker != nil {
		release, err := j.Locker.Acquire(ctx, shared.RecurringLockKey(), 15*time.Minute)
		if err != nil {
			if errors.Is(err, shared.ErrLockHeld) {
				j.log().Info("recurring expansion already running")
				return nil
			}
			resultErr = err
			return resultErr
		}
		defer release()
	}

	result, err := j.Expander.ExpandRecurring(ctx, asOf, userID)
	metricsOrDefault(j.Metrics).AddRecurringEntries(len(result.Created))
	if err != nil && len(result.Failed) == 0 {
		resultErr = err
		j.log().Error("recurring expansion aborted", slog.Any("error", err))
		return resultErr
	}
	for patternID, reason := range result.Failed {
		j.log().Warn("recurring pattern skipped",
			slog.Int64("pattern_id", patternID), slog.String("reason", reason))
	}
	j.log().Info("recurring expansion finished",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("created", len(result.Created)),
		slog.Int("deactivated", len(result.Deactivated)),
		slog.Int("failed", len(result.Failed)))
	return resultErr
}

func (j *RecurringExpandJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecurringExpand))
	}
	return slog.Default().With(slog.String("job", TaskRecurringExpand))
}

func (j *RecurringExpandJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the clock used for the default as-of date.
func (j *RecurringExpandJob) WithClock(clock func() time.Time) {
	j.clock = clock
}
