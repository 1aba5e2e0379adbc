package fxrates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service is the exchange rate store used by the ledger.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires the rate repository and an optional cache.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// SaveRate upserts the rate for (from, to, date).
func (s *Service) SaveRate(ctx context.Context, from, to string, date time.Time, value decimal.Decimal) (ExchangeRate, error) {
	const op = "fxrates.save"
	pair, err := normalizePair(from, to)
	if err != nil {
		return ExchangeRate{}, shared.Validation(op, err)
	}
	if !value.IsPositive() {
		return ExchangeRate{}, shared.Validation(op, shared.ErrInvalidRate,
			fmt.Sprintf("rate for %s must be positive", pair))
	}
	if date.IsZero() {
		return ExchangeRate{}, shared.Validation(op, shared.ErrInvalidRate, "rate date is required")
	}
	saved, err := s.repo.Upsert(ctx, ExchangeRate{From: pair.From, To: pair.To, Date: shared.DateOnly(date), Rate: value})
	if err != nil {
		return ExchangeRate{}, fmt.Errorf("fxrates: upsert %s: %w", pair, err)
	}
	if err := s.cache.Bump(ctx, pair); err != nil {
		s.logger.Warn("fx cache bump failed", slog.String("pair", pair.String()), slog.Any("error", err))
	}
	return saved, nil
}

// GetRateForDate returns the most recent rate on or before date, or nil when
// none is stored. Identical currencies always convert at 1.
func (s *Service) GetRateForDate(ctx context.Context, from, to string, date time.Time) (*ExchangeRate, error) {
	pair, err := normalizePair(from, to)
	if err != nil {
		return nil, shared.Validation("fxrates.get", err)
	}
	date = shared.DateOnly(date)
	if pair.From == pair.To {
		return &ExchangeRate{From: pair.From, To: pair.To, Date: date, Rate: decimal.NewFromInt(1)}, nil
	}
	cacheKey, err := s.cache.Key(ctx, pair, date)
	if err != nil {
		s.logger.Warn("fx cache read failed", slog.String("pair", pair.String()), slog.Any("error", err))
		cacheKey = ""
	}
	if rate, hit, err := s.cache.Get(ctx, cacheKey); err != nil {
		s.logger.Warn("fx cache read failed", slog.String("pair", pair.String()), slog.Any("error", err))
	} else if hit {
		return rate, nil
	}

	flightKey := pair.String() + "@" + date.Format(time.DateOnly)
	if cacheKey != "" {
		flightKey = cacheKey
	}
	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		rate, err := s.repo.LatestOnOrBefore(ctx, pair, date)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, cacheKey, rate); err != nil {
			s.logger.Warn("fx cache write failed", slog.String("pair", pair.String()), slog.Any("error", err))
		}
		return rate, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("fxrates: lookup %s: %w", pair, res.Err)
		}
		rate, _ := res.Val.(*ExchangeRate)
		return rate, nil
	}
}

// RequireRate is GetRateForDate with absence reported as a precondition failure.
func (s *Service) RequireRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	rate, err := s.GetRateForDate(ctx, from, to, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if rate == nil {
		return decimal.Decimal{}, MissingRate(from, to, date)
	}
	return rate.Rate, nil
}

// MissingRate builds the precondition error for an absent rate.
func MissingRate(from, to string, date time.Time) error {
	return shared.Precondition("fxrates.require", shared.ErrMissingRate,
		fmt.Sprintf("no %s/%s exchange rate on or before %s", from, to, date.Format(time.DateOnly)))
}

// ListRates returns stored rates for a pair within [from, to].
func (s *Service) ListRates(ctx context.Context, fromCode, toCode string, from, to time.Time) ([]ExchangeRate, error) {
	pair, err := normalizePair(fromCode, toCode)
	if err != nil {
		return nil, shared.Validation("fxrates.list", err)
	}
	return s.repo.List(ctx, pair, shared.DateOnly(from), shared.DateOnly(to))
}
