package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type txRepository struct {
	q Querier
}

// NewTxRepository binds period queries to an existing transaction so other
// packages can read the fiscal calendar inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{q: tx}
}

const (
	yearColumns   = `id, year_name, start_date, end_date, is_closed, closed_date, closed_by_user_id, created_by_user_id, created_at`
	periodColumns = `id, fiscal_year_id, name, start_date, end_date, period_type, period_number, status, updated_by_user_id, updated_at`
)

// WithTx executes fn within repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("periods repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgRepository) FindOpenPeriodForDate(ctx context.Context, date time.Time) (*FiscalPeriod, error) {
	return FindOpenPeriod(ctx, r.pool, date)
}

// FindOpenPeriod returns the open period containing date, or nil.
func FindOpenPeriod(ctx context.Context, q Querier, date time.Time) (*FiscalPeriod, error) {
	p, err := scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE status='Open' AND $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, shared.DateOnly(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *pgRepository) GetPeriod(ctx context.Context, id int64) (FiscalPeriod, error) {
	return getPeriod(ctx, r.pool, id, false)
}

func (r *pgRepository) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	return getYear(ctx, r.pool, id, false)
}

func (r *pgRepository) ListFiscalYears(ctx context.Context) ([]FiscalYear, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+yearColumns+` FROM fiscal_years ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalYear
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListPeriods(ctx context.Context, yearID int64) ([]FiscalPeriod, error) {
	return listPeriods(ctx, r.pool, yearID)
}

func (t *txRepository) FiscalYearNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM fiscal_years WHERE year_name=$1)`, name).Scan(&exists)
	return exists, err
}

func (t *txRepository) OverlappingFiscalYear(ctx context.Context, start, end time.Time) (*FiscalYear, error) {
	y, err := scanYear(t.q.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years
WHERE start_date <= $2 AND end_date >= $1 ORDER BY start_date LIMIT 1`, start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &y, nil
}

func (t *txRepository) InsertFiscalYear(ctx context.Context, year FiscalYear) (FiscalYear, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO fiscal_years (year_name, start_date, end_date, is_closed, created_by_user_id)
VALUES ($1,$2,$3,false,$4) RETURNING id, created_at`, year.Name, year.StartDate, year.EndDate, year.CreatedByUserID).
		Scan(&year.ID, &year.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return FiscalYear{}, shared.ErrDuplicateFiscalYear
		}
		return FiscalYear{}, err
	}
	return year, nil
}

func (t *txRepository) InsertPeriods(ctx context.Context, yearID int64, periods []FiscalPeriod) ([]FiscalPeriod, error) {
	out := make([]FiscalPeriod, 0, len(periods))
	for _, p := range periods {
		p.FiscalYearID = yearID
		err := t.q.QueryRow(ctx, `INSERT INTO fiscal_periods (fiscal_year_id, name, start_date, end_date, period_type, period_number, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, updated_at`, yearID, p.Name, p.StartDate, p.EndDate, p.PeriodType, p.PeriodNumber, p.Status).
			Scan(&p.ID, &p.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return nil, shared.ErrPeriodsExist
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *txRepository) GetFiscalYearForUpdate(ctx context.Context, id int64) (FiscalYear, error) {
	return getYear(ctx, t.q, id, true)
}

func (t *txRepository) GetPeriodForUpdate(ctx context.Context, id int64) (FiscalPeriod, error) {
	return getPeriod(ctx, t.q, id, true)
}

func (t *txRepository) ListPeriodsByYear(ctx context.Context, yearID int64) ([]FiscalPeriod, error) {
	return listPeriods(ctx, t.q, yearID)
}

func (t *txRepository) UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, userID int64, at time.Time) error {
	_, err := t.q.Exec(ctx, `UPDATE fiscal_periods SET status=$2, updated_by_user_id=$3, updated_at=$4 WHERE id=$1`, id, status, userID, at)
	return err
}

func (t *txRepository) CloseFiscalYear(ctx context.Context, id int64, userID int64, at time.Time) error {
	_, err := t.q.Exec(ctx, `UPDATE fiscal_years SET is_closed=true, closed_date=$2, closed_by_user_id=$3 WHERE id=$1`, id, at, userID)
	return err
}

func getPeriod(ctx context.Context, q Querier, id int64, lock bool) (FiscalPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM fiscal_periods WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanPeriod(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, shared.ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func getYear(ctx context.Context, q Querier, id int64, lock bool) (FiscalYear, error) {
	query := `SELECT ` + yearColumns + ` FROM fiscal_years WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	y, err := scanYear(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.ErrFiscalYearNotFound
		}
		return FiscalYear{}, err
	}
	return y, nil
}

func listPeriods(ctx context.Context, q Querier, yearID int64) ([]FiscalPeriod, error) {
	rows, err := q.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year_id=$1
ORDER BY period_type, period_number`, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Name, &p.StartDate, &p.EndDate, &p.PeriodType, &p.PeriodNumber, &p.Status, &p.UpdatedBy, &p.UpdatedAt)
	return p, err
}

func scanYear(row pgx.Row) (FiscalYear, error) {
	var y FiscalYear
	err := row.Scan(&y.ID, &y.Name, &y.StartDate, &y.EndDate, &y.IsClosed, &y.ClosedDate, &y.ClosedByUserID, &y.CreatedByUserID, &y.CreatedAt)
	return y, err
}
