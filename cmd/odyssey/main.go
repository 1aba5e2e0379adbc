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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/forex"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis backs the rate cache, revaluation locks and the job queue. The
	// API keeps serving without it.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

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
	checks := map[string]app.HealthCheck{
		"postgres": func(r *http.Request) error { return pool.Ping(r.Context()) },
	}

	var (
		enqueuer   forex.Enqueuer
		jobHandler *jobs.Handler
	)
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		enqueuer = client
		checks["redis"] = func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() }
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Ledger:     ledger,
		Audit:      audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		Enqueuer:   enqueuer,
		JobHandler: jobHandler,
		Metrics:    metrics,
		Checks:     checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr),
			slog.String("sequence_backend", cfg.SequenceBackend),
			slog.Bool("forex", ledger.Forex.IsConfigured()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
