package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	ledgershared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledger, err := accounting.New(accounting.Config{
		Pool:            pool,
		Redis:           redisClient,
		Logger:          logger,
		SequenceBackend: cfg.SequenceBackend,
		FXCacheTTL:      cfg.FXRateCacheTTL,
		ForexEnabled:    cfg.ForexEnabled,
	})
	if err != nil {
		logger.Error("init ledger", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	revaluer := ledgershared.NotConfigured[jobs.Revaluer]()
	if svc, err := ledger.Forex.Get(); err == nil {
		revaluer = ledgershared.Configured[jobs.Revaluer](svc)
	}

	recurringJob := jobs.NewRecurringExpandJob(ledger.Journals, shared.NewLocker(redisClient), cfg.SystemUserID, logger, jobMetrics)
	forexJob := jobs.NewForexRevaluationJob(revaluer, cfg.SystemUserID, logger, jobMetrics)
	integrityJob := jobs.NewGLIntegrityJob(ledger.Reports, logger, jobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(ledger.Idempotency(), cfg.IdempotencyRetention, logger, jobMetrics)

	// Scheduled payloads carry no date so each run resolves it when it fires.
	recurringTask, err := jobs.NewRecurringExpandTask(time.Time{}, 0)
	if err != nil {
		logger.Error("build recurring task", slog.Any("error", err))
		os.Exit(1)
	}
	forexTask, err := jobs.NewForexRevaluationTask(time.Time{}, 0)
	if err != nil {
		logger.Error("build forex task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewGLIntegrityTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask()
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	cron := []jobs.CronRegistration{
		{Spec: cfg.RecurringCron, Task: recurringTask},
		{Spec: cfg.GLIntegrityCron, Task: integrityTask},
		{Spec: cfg.IdempotencyCleanupCron, Task: cleanupTask},
	}
	if revaluer.IsConfigured() {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ForexRevaluationCron, Task: forexTask})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringExpand, Handler: recurringJob.Handle},
			{Type: jobs.TaskForexRevaluation, Handler: forexJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
