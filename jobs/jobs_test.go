package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/forex"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	ledgershared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	ledgertest "github.com/odyssey-erp/odyssey-ledger/testing"
)

type stubExpander struct {
	asOf   time.Time
	userID int64
	result journals.ExpansionResult
	err    error
	calls  int
}

func (s *stubExpander) ExpandRecurring(_ context.Context, asOf time.Time, userID int64) (journals.ExpansionResult, error) {
	s.calls++
	s.asOf, s.userID = asOf, userID
	return s.result, s.err
}

type stubRevaluer struct {
	date   time.Time
	userID int64
	entry  *journals.JournalEntry
	err    error
}

func (s *stubRevaluer) CreateUnrealizedGainLossEntry(_ context.Context, date time.Time, userID int64) (*journals.JournalEntry, error) {
	s.date, s.userID = date, userID
	return s.entry, s.err
}

type stubScanner struct {
	ids []int64
	err error
}

func (s stubScanner) UnbalancedEntries(context.Context) ([]int64, error) { return s.ids, s.err }

func newTestMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestNewTaskPayloadRoundTrip(t *testing.T) {
	date := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	task, err := NewTask(TaskForexRevaluation, date, 42)
	require.NoError(t, err)
	require.Equal(t, TaskForexRevaluation, task.Type())

	gotDate, user, err := decodePayload(task, time.Time{}, 1)
	require.NoError(t, err)
	require.Equal(t, date, gotDate)
	require.Equal(t, int64(42), user)

	_, err = NewTask("ledger:unknown", date, 1)
	require.Error(t, err)
}

func TestDecodePayloadDefaultsAndRejectsBadDates(t *testing.T) {
	fallback := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task, err := NewGLIntegrityTask()
	require.NoError(t, err)
	date, user, err := decodePayload(task, fallback, 9)
	require.NoError(t, err)
	require.Equal(t, fallback, date)
	require.Equal(t, int64(9), user)

	bad := asynq.NewTask(TaskRecurringExpand, []byte(`{"date":"31/03/2025"}`))
	_, _, err = decodePayload(bad, fallback, 9)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRecurringExpandJobUsesPayloadAndCountsEntries(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	expander := &stubExpander{result: journals.ExpansionResult{
		Created: []journals.JournalEntry{{ID: 1}, {ID: 2}},
		Failed:  map[int64]string{},
	}}
	job := NewRecurringExpandJob(expander, nil, 1, nil, metrics)
	asOf := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	task, err := NewRecurringExpandTask(asOf, 7)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, asOf, expander.asOf)
	require.Equal(t, int64(7), expander.userID)
	require.Equal(t, 2.0, metricValue(t, reg, "ledger_recurring_entries_created_total", nil))
	require.Equal(t, 1.0, metricValue(t, reg, "ledger_jobs_total", map[string]string{"job": TaskRecurringExpand, "status": "success"}))
}

func TestRecurringExpandJobToleratesPatternFailures(t *testing.T) {
	expander := &stubExpander{
		result: journals.ExpansionResult{Failed: map[int64]string{3: "no open period"}},
		err:    errors.New("recurring pattern 3: no open period"),
	}
	job := NewRecurringExpandJob(expander, nil, 1, nil, nil)
	job.WithClock(func() time.Time { return time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC) })
	task, err := NewRecurringExpandTask(time.Time{}, 0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC), expander.asOf)
	require.Equal(t, int64(1), expander.userID)
}

func TestRecurringExpandJobRetriesLoadFailures(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	expander := &stubExpander{err: errors.New("connection refused")}
	job := NewRecurringExpandJob(expander, nil, 1, nil, metrics)
	task, err := NewRecurringExpandTask(time.Time{}, 0)
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, metricValue(t, reg, "ledger_jobs_failures_total", map[string]string{"job": TaskRecurringExpand}))
}

func TestRecurringExpandJobSkipsWhileLocked(t *testing.T) {
	client, _ := ledgertest.Redis(t)
	locker := shared.NewLocker(client)

	release, err := locker.Acquire(context.Background(), shared.RecurringLockKey(), time.Minute)
	require.NoError(t, err)
	defer release()

	expander := &stubExpander{}
	job := NewRecurringExpandJob(expander, locker, 1, nil, nil)
	task, err := NewRecurringExpandTask(time.Time{}, 0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, expander.calls)
}

func TestForexRevaluationJobDefaultsToPreviousDay(t *testing.T) {
	revaluer := &stubRevaluer{entry: &journals.JournalEntry{ID: 10, EntryNo: "JE-000010"}}
	job := NewForexRevaluationJob(ledgershared.Configured[Revaluer](revaluer), 5, nil, nil)
	job.WithClock(func() time.Time { return time.Date(2025, 4, 1, 0, 5, 0, 0, time.UTC) })
	task, err := NewForexRevaluationTask(time.Time{}, 0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), revaluer.date)
	require.Equal(t, int64(5), revaluer.userID)
}

func TestForexRevaluationJobPartialFailureIsNotRetried(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	revaluer := &stubRevaluer{err: &forex.PartialRevaluationError{EntryID: 4, EntryNo: "JE-000004", Err: errors.New("period closed")}}
	job := NewForexRevaluationJob(ledgershared.Configured[Revaluer](revaluer), 5, nil, metrics)
	task, err := NewForexRevaluationTask(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, forex.ErrPartialRevaluation)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, 1.0, metricValue(t, reg, "ledger_forex_partial_revaluations_total", nil))
}

func TestForexRevaluationJobNotConfigured(t *testing.T) {
	job := NewForexRevaluationJob(ledgershared.NotConfigured[Revaluer](), 5, nil, nil)
	task, err := NewForexRevaluationTask(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestForexRevaluationJobLockHeldIsQuiet(t *testing.T) {
	revaluer := &stubRevaluer{err: shared.ErrLockHeld}
	job := NewForexRevaluationJob(ledgershared.Configured[Revaluer](revaluer), 5, nil, nil)
	task, err := NewForexRevaluationTask(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestGLIntegrityJobPublishesCount(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	job := NewGLIntegrityJob(stubScanner{ids: []int64{11, 12}}, nil, metrics)
	task, err := NewGLIntegrityTask()
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 2.0, metricValue(t, reg, "ledger_gl_unbalanced_entries", nil))

	job.Scanner = stubScanner{err: errors.New("db down")}
	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, metricValue(t, reg, "ledger_jobs_failures_total", map[string]string{"job": TaskGLIntegrity}))
}

type stubPruner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (p *stubPruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	p.olderThan = olderThan
	return p.removed, p.err
}

func TestIdempotencyCleanupJobPrunesWithRetention(t *testing.T) {
	metrics, reg := newTestMetrics(t)
	pruner := &stubPruner{removed: 12}
	job := NewIdempotencyCleanupJob(pruner, 720*time.Hour, nil, metrics)
	task, err := NewTask(TaskIdempotencyCleanup, time.Time{}, 0)
	require.NoError(t, err)
	require.Equal(t, TaskIdempotencyCleanup, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 720*time.Hour, pruner.olderThan)
	require.Equal(t, 1.0, metricValue(t, reg, "ledger_jobs_total", map[string]string{"job": TaskIdempotencyCleanup, "status": "success"}))

	pruner.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, metricValue(t, reg, "ledger_jobs_failures_total", map[string]string{"job": TaskIdempotencyCleanup}))

	require.Error(t, NewIdempotencyCleanupJob(pruner, 0, nil, nil).Handle(context.Background(), task))
}
