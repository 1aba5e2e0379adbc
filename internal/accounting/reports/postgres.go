package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgReader struct {
	pool *pgxpool.Pool
}

// NewActivityReader returns the pgx backed activity reader.
func NewActivityReader(pool *pgxpool.Pool) ActivityReader {
	return &pgReader{pool: pool}
}

func (r *pgReader) AccountActivity(ctx context.Context, accountID int64, from *time.Time, to time.Time) (Activity, error) {
	a := Activity{AccountID: accountID}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit_amount),0), COALESCE(SUM(l.credit_amount),0)
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE l.account_id = $1 AND e.is_posted AND e.entry_date <= $2
  AND ($3::date IS NULL OR e.entry_date >= $3::date)`, accountID, to, from).Scan(&a.Debit, &a.Credit)
	return a, err
}

func (r *pgReader) ActivityAsOf(ctx context.Context, asOf time.Time) ([]Activity, error) {
	return r.query(ctx, `SELECT l.account_id, SUM(l.debit_amount), SUM(l.credit_amount)
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.is_posted AND e.entry_date <= $1
  AND (a.opening_balance_date IS NULL OR e.entry_date >= a.opening_balance_date)
GROUP BY l.account_id`, asOf)
}

func (r *pgReader) ActivityBetween(ctx context.Context, from, to time.Time) ([]Activity, error) {
	return r.query(ctx, `SELECT l.account_id, SUM(l.debit_amount), SUM(l.credit_amount)
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE e.is_posted AND e.entry_date BETWEEN $1 AND $2
GROUP BY l.account_id`, from, to)
}

func (r *pgReader) UnbalancedPostedEntries(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id
FROM journal_entries e
LEFT JOIN journal_entry_lines l ON l.journal_entry_id = e.id
WHERE e.is_posted
GROUP BY e.id
HAVING COALESCE(SUM(l.debit_amount),0) <> COALESCE(SUM(l.credit_amount),0) OR COUNT(l.id) = 0
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgReader) query(ctx context.Context, sql string, args ...any) ([]Activity, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.AccountID, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
