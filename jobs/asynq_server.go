package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueLedger:  3,
			QueueDefault: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("register %s (%s): %w", entry.Task.Type(), entry.Spec, err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// Enqueue submits a prepared task and returns its id.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}

// EnqueueForexRevaluation queues a revaluation for date. Only one task per
// date may be queued at a time.
func (c *Client) EnqueueForexRevaluation(ctx context.Context, date time.Time, userID int64) (string, error) {
	task, err := NewForexRevaluationTask(date, userID)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskForexRevaluation+":"+date.Format(time.DateOnly)),
		asynq.Retention(24*time.Hour))
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}

// EnqueueRecurringExpand queues a recurring expansion up to asOf.
func (c *Client) EnqueueRecurringExpand(ctx context.Context, asOf time.Time, userID int64) (string, error) {
	task, err := NewRecurringExpandTask(asOf, userID)
	if err != nil {
		return "", err
	}
	return c.Enqueue(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/stats", h.stats)
}

// QueueStats summarises one Asynq queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
}

// Stats reads the counters of every ledger queue.
func Stats(inspector *asynq.Inspector) ([]QueueStats, error) {
	out := make([]QueueStats, 0, 2)
	for _, queue := range []string{QueueLedger, QueueDefault} {
		info, err := inspector.GetQueueInfo(queue)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				out = append(out, QueueStats{Queue: queue})
				continue
			}
			return nil, fmt.Errorf("queue %s: %w", queue, err)
		}
		out = append(out, QueueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
		})
	}
	return out, nil
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"queue": QueueLedger, "pending": 0})
		return
	}
	stats, err := Stats(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue unreachable")
		return
	}
	pending := 0
	for _, s := range stats {
		pending += s.Pending
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queue": QueueLedger, "pending": pending})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, []QueueStats{})
		return
	}
	stats, err := Stats(h.inspector)
	if err != nil {
		h.logger.Warn("jobs stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue unreachable")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
