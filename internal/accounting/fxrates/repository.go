package fxrates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists exchange rates.
type Repository interface {
	Upsert(ctx context.Context, rate ExchangeRate) (ExchangeRate, error)
	LatestOnOrBefore(ctx context.Context, pair Pair, date time.Time) (*ExchangeRate, error)
	List(ctx context.Context, pair Pair, from, to time.Time) ([]ExchangeRate, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Upsert stores the rate, overwriting any rate saved for the same pair and date.
func (r *repository) Upsert(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO exchange_rates (from_currency_code, to_currency_code, rate_date, exchange_rate_value)
VALUES ($1,$2,$3,$4)
ON CONFLICT (from_currency_code, to_currency_code, rate_date)
DO UPDATE SET exchange_rate_value=EXCLUDED.exchange_rate_value, updated_at=NOW()
RETURNING updated_at`, rate.From, rate.To, rate.Date, rate.Rate).Scan(&rate.UpdatedAt)
	if err != nil {
		return ExchangeRate{}, err
	}
	return rate, nil
}

func (r *repository) LatestOnOrBefore(ctx context.Context, pair Pair, date time.Time) (*ExchangeRate, error) {
	var rate ExchangeRate
	err := r.db.QueryRow(ctx, `SELECT from_currency_code, to_currency_code, rate_date, exchange_rate_value, updated_at
FROM exchange_rates WHERE from_currency_code=$1 AND to_currency_code=$2 AND rate_date <= $3
ORDER BY rate_date DESC LIMIT 1`, pair.From, pair.To, date).
		Scan(&rate.From, &rate.To, &rate.Date, &rate.Rate, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rate, nil
}

func (r *repository) List(ctx context.Context, pair Pair, from, to time.Time) ([]ExchangeRate, error) {
	rows, err := r.db.Query(ctx, `SELECT from_currency_code, to_currency_code, rate_date, exchange_rate_value, updated_at
FROM exchange_rates WHERE from_currency_code=$1 AND to_currency_code=$2 AND rate_date BETWEEN $3 AND $4
ORDER BY rate_date`, pair.From, pair.To, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExchangeRate
	for rows.Next() {
		var rate ExchangeRate
		if err := rows.Scan(&rate.From, &rate.To, &rate.Date, &rate.Rate, &rate.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}
