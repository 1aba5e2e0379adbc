package periods

import (
	"context"
	"time"
)

// Repository exposes fiscal calendar persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindOpenPeriodForDate(ctx context.Context, date time.Time) (*FiscalPeriod, error)
	GetPeriod(ctx context.Context, id int64) (FiscalPeriod, error)
	GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error)
	ListFiscalYears(ctx context.Context) ([]FiscalYear, error)
	ListPeriods(ctx context.Context, yearID int64) ([]FiscalPeriod, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	FiscalYearNameExists(ctx context.Context, name string) (bool, error)
	OverlappingFiscalYear(ctx context.Context, start, end time.Time) (*FiscalYear, error)
	InsertFiscalYear(ctx context.Context, year FiscalYear) (FiscalYear, error)
	InsertPeriods(ctx context.Context, yearID int64, periods []FiscalPeriod) ([]FiscalPeriod, error)
	GetFiscalYearForUpdate(ctx context.Context, id int64) (FiscalYear, error)
	GetPeriodForUpdate(ctx context.Context, id int64) (FiscalPeriod, error)
	ListPeriodsByYear(ctx context.Context, yearID int64) ([]FiscalPeriod, error)
	UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, userID int64, at time.Time) error
	CloseFiscalYear(ctx context.Context, id int64, userID int64, at time.Time) error
}
