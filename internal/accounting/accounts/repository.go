package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, account_type, COALESCE(sub_type, ''), parent_id, is_active, is_control_account,
is_bank_account, opening_balance, opening_balance_date, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id int64) (Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code)
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.SubType, &a.ParentID, &a.IsActive, &a.IsControlAccount,
		&a.IsBankAccount, &a.OpeningBalance, &a.OpeningBalanceDate, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
