package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a ledger task by type. A zero date lets the worker pick
// the task's default.
func (c *JobsCLI) Trigger(ctx context.Context, name string, date time.Time, userID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewTask(name, date, userID)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: %w", err)
	}
	return c.client.EnqueueContext(ctx, task)
}

// InspectQueues reports the counters of the ledger queues.
func (c *JobsCLI) InspectQueues() ([]jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	return jobs.Stats(c.inspector)
}
