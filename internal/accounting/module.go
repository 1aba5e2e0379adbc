package accounting

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/forex"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fxrates"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/settings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Sequence backends.
const (
	SequencePostgres = "postgres"
	SequenceRedis    = "redis"
	SequenceMemory   = "memory"
)

// Config carries the infrastructure the ledger is built on. Redis is
// optional; without it sequences cannot use the redis backend, rates are not
// cached and revaluation runs are not locked across processes.
type Config struct {
	Pool            *pgxpool.Pool
	Redis           *redis.Client
	Logger          *slog.Logger
	SequenceBackend string
	FXCacheTTL      time.Duration
	ForexEnabled    bool
}

// Module holds every ledger service, wired explicitly.
type Module struct {
	Accounts  *accounts.Service
	Settings  *settings.Service
	Sequences *sequence.Generator
	Periods   *periods.Service
	Rates     *fxrates.Service
	Journals  *journals.Service
	Reports   *reports.Calculator
	Forex     shared.Optional[*forex.Service]

	logger      *slog.Logger
	idempotency *internalShared.IdempotencyStore
}

// New builds the ledger services from cfg.
func New(cfg Config) (*Module, error) {
	if cfg.Pool == nil {
		return nil, errors.New("accounting: database pool required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	numbers, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	audit := internalShared.NewAuditLogger(cfg.Pool)
	accountSvc := accounts.NewService(accounts.NewRepository(cfg.Pool))
	settingsSvc := settings.NewService(settings.NewRepository(cfg.Pool), accountSvc)
	periodSvc := periods.NewService(periods.NewRepository(cfg.Pool), audit, logger.With(slog.String("module", "periods")))
	rateSvc := fxrates.NewService(fxrates.NewRepository(cfg.Pool), fxrates.NewCache(cfg.Redis, cfg.FXCacheTTL), logger.With(slog.String("module", "fxrates")))
	journalSvc := journals.NewService(journals.NewRepository(cfg.Pool), accountSvc, numbers, audit, logger.With(slog.String("module", "journals")))
	calculator := reports.NewCalculator(reports.NewActivityReader(cfg.Pool), accountSvc)

	m := &Module{
		Accounts:    accountSvc,
		Settings:    settingsSvc,
		Sequences:   numbers,
		Periods:     periodSvc,
		Rates:       rateSvc,
		Journals:    journalSvc,
		Reports:     calculator,
		Forex:       shared.NotConfigured[*forex.Service](),
		logger:      logger,
		idempotency: internalShared.NewIdempotencyStore(cfg.Pool),
	}
	if cfg.ForexEnabled {
		deps := forex.Dependencies{
			Source:   forex.NewSource(cfg.Pool),
			Rates:    rateSvc,
			Balances: calculator,
			System:   settingsSvc,
			Ledger:   journalSvc,
			Logger:   logger.With(slog.String("module", "forex")),
		}
		if cfg.Redis != nil {
			deps.Locker = internalShared.NewLocker(cfg.Redis)
		}
		m.Forex = shared.Configured(forex.NewService(deps))
	}
	return m, nil
}

// Idempotency returns the request-key store shared by the write endpoints.
func (m *Module) Idempotency() *internalShared.IdempotencyStore {
	return m.idempotency
}

func newGenerator(cfg Config) (*sequence.Generator, error) {
	switch cfg.SequenceBackend {
	case "", SequencePostgres:
		store := sequence.NewPostgresStore(cfg.Pool)
		return sequence.NewGenerator(store, shared.Configured[sequence.Allocator](store)), nil
	case SequenceRedis:
		if cfg.Redis == nil {
			return nil, errors.New("accounting: redis sequence backend requires a redis client")
		}
		return sequence.NewGenerator(sequence.NewPostgresStore(cfg.Pool),
			shared.Configured[sequence.Allocator](sequence.NewRedisAllocator(cfg.Redis))), nil
	case SequenceMemory:
		return sequence.NewGenerator(sequence.NewMemoryStore(), shared.NotConfigured[sequence.Allocator]()), nil
	}
	return nil, fmt.Errorf("accounting: unknown sequence backend %q", cfg.SequenceBackend)
}

// RouteOptions customises MountRoutes.
type RouteOptions struct {
	// Enqueuer moves revaluations onto the job queue; nil runs them inline.
	Enqueuer forex.Enqueuer
	// RevaluationLimiter wraps the revaluation endpoints.
	RevaluationLimiter func(http.Handler) http.Handler
}

// MountRoutes registers the ledger JSON API under r.
func (m *Module) MountRoutes(r chi.Router, opts RouteOptions) {
	journalH := journals.NewHandler(m.logger, m.Journals, m.idempotency)
	periodH := periods.NewHandler(m.logger, m.Periods)
	rateH := fxrates.NewHandler(m.logger, m.Rates)
	accountH := accounts.NewHandler(m.logger, m.Accounts)
	reportH := reports.NewHandler(m.logger, m.Reports)

	r.Route("/journals", journalH.MountRoutes)
	r.Route("/recurring", journalH.MountRecurringRoutes)
	r.Route("/fiscal-years", periodH.MountYearRoutes)
	r.Route("/periods", periodH.MountPeriodRoutes)
	r.Route("/fx-rates", rateH.MountRoutes)
	r.Route("/accounts", func(r chi.Router) {
		accountH.MountRoutes(r)
		reportH.MountAccountRoutes(r)
	})
	r.Route("/reports", reportH.MountRoutes)
	r.Route("/forex/revaluations", func(r chi.Router) {
		if opts.RevaluationLimiter != nil {
			r.Use(opts.RevaluationLimiter)
		}
		svc, err := m.Forex.Get()
		if err != nil {
			r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
				httpx.RespondError(w, err)
			})
			return
		}
		forex.NewHandler(m.logger, svc, opts.Enqueuer).MountRoutes(r)
	})
}
