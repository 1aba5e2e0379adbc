package forex

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgSource struct {
	pool *pgxpool.Pool
}

// NewSource returns the pgx backed position source reading the invoicing
// and banking tables.
func NewSource(pool *pgxpool.Pool) Source {
	return &pgSource{pool: pool}
}

const openInvoiceFilter = `currency_code <> $1
  AND status NOT IN ('Draft', 'Paid', 'Void', 'Cancelled')
  AND total_amount - amount_paid > 0`

func (s *pgSource) OpenReceivables(ctx context.Context, functional string) ([]OpenInvoice, error) {
	return s.invoices(ctx, `SELECT id, invoice_no, currency_code, total_amount - amount_paid, exchange_rate
FROM sales_invoices WHERE `+openInvoiceFilter+` ORDER BY id`, functional)
}

func (s *pgSource) OpenPayables(ctx context.Context, functional string) ([]OpenInvoice, error) {
	return s.invoices(ctx, `SELECT id, invoice_no, currency_code, total_amount - amount_paid, exchange_rate
FROM purchase_invoices WHERE `+openInvoiceFilter+` ORDER BY id`, functional)
}

func (s *pgSource) ForeignBankAccounts(ctx context.Context, functional string) ([]BankAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, account_name, currency_code, gl_account_id, current_balance
FROM bank_accounts WHERE is_active AND currency_code <> $1 AND gl_account_id IS NOT NULL ORDER BY id`, functional)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BankAccount, error) {
		var b BankAccount
		err := row.Scan(&b.ID, &b.Name, &b.CurrencyCode, &b.GLAccountID, &b.Balance)
		return b, err
	})
}

func (s *pgSource) invoices(ctx context.Context, query, functional string) ([]OpenInvoice, error) {
	rows, err := s.pool.Query(ctx, query, functional)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OpenInvoice, error) {
		var inv OpenInvoice
		err := row.Scan(&inv.ID, &inv.DocumentNo, &inv.CurrencyCode, &inv.Outstanding, &inv.BookedRate)
		return inv, err
	})
}
