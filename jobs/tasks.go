package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedger carries the ledger tasks that post entries.
	QueueLedger = "ledger"
)

const (
	// TaskRecurringExpand creates the drafts due from recurring patterns.
	TaskRecurringExpand = "ledger:recurring_expand"
	// TaskForexRevaluation books the unrealized forex gain/loss for a date.
	TaskForexRevaluation = "ledger:forex_revaluation"
	// TaskGLIntegrity scans posted entries for debit/credit mismatches.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskIdempotencyCleanup prunes expired request keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// TaskTypes lists every task the worker serves, in trigger order.
var TaskTypes = []string{TaskRecurringExpand, TaskForexRevaluation, TaskGLIntegrity, TaskIdempotencyCleanup}

// LedgerPayload is shared by the dated ledger tasks. An empty Date lets the
// handler pick its default.
type LedgerPayload struct {
	Date   string `json:"date,omitempty"`
	UserID int64  `json:"user_id,omitempty"`
}

// NewRecurringExpandTask builds the recurring expansion task.
func NewRecurringExpandTask(asOf time.Time, userID int64) (*asynq.Task, error) {
	return newLedgerTask(TaskRecurringExpand, asOf, userID, asynq.MaxRetry(3))
}

// NewForexRevaluationTask builds the revaluation task. It is never retried:
// a retry after a successful post would book the adjustment twice.
func NewForexRevaluationTask(date time.Time, userID int64) (*asynq.Task, error) {
	return newLedgerTask(TaskForexRevaluation, date, userID, asynq.MaxRetry(0), asynq.Timeout(10*time.Minute))
}

// NewGLIntegrityTask builds the integrity scan task.
func NewGLIntegrityTask() (*asynq.Task, error) {
	return newLedgerTask(TaskGLIntegrity, time.Time{}, 0, asynq.MaxRetry(1))
}

// NewIdempotencyCleanupTask builds the key pruning task.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(2)), nil
}

// NewTask builds any known task type, used by the trigger endpoints and CLI.
func NewTask(taskType string, date time.Time, userID int64) (*asynq.Task, error) {
	switch taskType {
	case TaskRecurringExpand:
		return NewRecurringExpandTask(date, userID)
	case TaskForexRevaluation:
		return NewForexRevaluationTask(date, userID)
	case TaskGLIntegrity:
		return NewGLIntegrityTask()
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask()
	}
	return nil, fmt.Errorf("jobs: unknown task type %q", taskType)
}

func newLedgerTask(taskType string, date time.Time, userID int64, opts ...asynq.Option) (*asynq.Task, error) {
	payload := LedgerPayload{UserID: userID}
	if !date.IsZero() {
		payload.Date = date.Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueLedger)}, opts...)
	return asynq.NewTask(taskType, body, opts...), nil
}

// decodePayload reads a LedgerPayload, substituting fallback for a missing
// date and defaultUser for a missing user.
func decodePayload(t *asynq.Task, fallback time.Time, defaultUser int64) (time.Time, int64, error) {
	var payload LedgerPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return time.Time{}, 0, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
	}
	date := fallback
	if payload.Date != "" {
		parsed, err := time.Parse(time.DateOnly, payload.Date)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("invalid %s date %q: %w", t.Type(), payload.Date, asynq.SkipRetry)
		}
		date = parsed
	}
	user := payload.UserID
	if user <= 0 {
		user = defaultUser
	}
	return date, user, nil
}
