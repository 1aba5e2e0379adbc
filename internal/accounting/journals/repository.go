package journals

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	DuePatterns(ctx context.Context, asOf time.Time) ([]RecurringPattern, error)
	ListPatterns(ctx context.Context) ([]RecurringPattern, error)
}

// TxRepository exposes the operations available inside one unit of work.
type TxRepository interface {
	FindOpenPeriodForDate(ctx context.Context, date time.Time) (*periods.FiscalPeriod, error)
	GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.FiscalPeriod, error)

	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkPosted(ctx context.Context, id, userID int64, at time.Time) error
	MarkReversed(ctx context.Context, id, reversingID, userID int64, at time.Time) error
	DeleteEntry(ctx context.Context, id int64) error

	InsertPattern(ctx context.Context, p RecurringPattern) (RecurringPattern, error)
	GetPatternForUpdate(ctx context.Context, id int64) (RecurringPattern, error)
	UpdatePattern(ctx context.Context, p RecurringPattern) error
	PatternsUsingTemplate(ctx context.Context, entryID int64) ([]int64, error)
}
