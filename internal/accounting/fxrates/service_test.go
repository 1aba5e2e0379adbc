package fxrates

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	rates   map[Pair]map[time.Time]decimal.Decimal
	lookups int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rates: map[Pair]map[time.Time]decimal.Decimal{}}
}

func (m *memoryRepo) Upsert(_ context.Context, rate ExchangeRate) (ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Pair{From: rate.From, To: rate.To}
	if m.rates[p] == nil {
		m.rates[p] = map[time.Time]decimal.Decimal{}
	}
	m.rates[p][rate.Date] = rate.Rate
	return rate, nil
}

func (m *memoryRepo) LatestOnOrBefore(_ context.Context, pair Pair, date time.Time) (*ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	var best *ExchangeRate
	for d, v := range m.rates[pair] {
		if d.After(date) {
			continue
		}
		if best == nil || d.After(best.Date) {
			best = &ExchangeRate{From: pair.From, To: pair.To, Date: d, Rate: v}
		}
	}
	return best, nil
}

func (m *memoryRepo) List(_ context.Context, pair Pair, from, to time.Time) ([]ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExchangeRate
	for d, v := range m.rates[pair] {
		if !d.Before(from) && !d.After(to) {
			out = append(out, ExchangeRate{From: pair.From, To: pair.To, Date: d, Rate: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSaveRateUpsertsByDate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.SaveRate(ctx, "usd", "sgd", day(2025, 1, 31), decimal.RequireFromString("1.30"))
	require.NoError(t, err)
	_, err = svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 31), decimal.RequireFromString("1.35"))
	require.NoError(t, err)

	rates, err := svc.ListRates(ctx, "USD", "SGD", day(2025, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.True(t, rates[0].Rate.Equal(decimal.RequireFromString("1.35")))
}

func TestSaveRateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 1), decimal.Zero)
	require.ErrorIs(t, err, shared.ErrInvalidRate)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.SaveRate(ctx, "DOLLAR", "SGD", day(2025, 1, 1), decimal.NewFromInt(1))
	require.ErrorIs(t, err, shared.ErrInvalidRate)
}

func TestGetRateForDateUsesLatestOnOrBefore(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	_, err := svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 10), decimal.RequireFromString("1.30"))
	require.NoError(t, err)
	_, err = svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 20), decimal.RequireFromString("1.32"))
	require.NoError(t, err)

	rate, err := svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 1, 15))
	require.NoError(t, err)
	require.True(t, rate.Rate.Equal(decimal.RequireFromString("1.30")))

	rate, err = svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 2, 1))
	require.NoError(t, err)
	require.True(t, rate.Rate.Equal(decimal.RequireFromString("1.32")))

	rate, err = svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 1, 1))
	require.NoError(t, err)
	require.Nil(t, rate)

	same, err := svc.GetRateForDate(ctx, "sgd", "SGD", day(2025, 1, 1))
	require.NoError(t, err)
	require.True(t, same.Rate.Equal(decimal.NewFromInt(1)))

	_, err = svc.RequireRate(ctx, "EUR", "SGD", day(2025, 1, 1))
	require.ErrorIs(t, err, shared.ErrMissingRate)
	require.Equal(t, shared.KindPrecondition, shared.KindOf(err))
}

func TestGetRateForDateCachesAndInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	svc := NewService(repo, NewCache(client, time.Hour), nil)
	ctx := context.Background()
	_, err := svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 10), decimal.RequireFromString("1.30"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rate, err := svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 1, 31))
		require.NoError(t, err)
		require.True(t, rate.Rate.Equal(decimal.RequireFromString("1.30")))
	}
	require.Equal(t, 1, repo.lookups)

	missing, err := svc.GetRateForDate(ctx, "EUR", "SGD", day(2025, 1, 31))
	require.NoError(t, err)
	require.Nil(t, missing)
	_, err = svc.GetRateForDate(ctx, "EUR", "SGD", day(2025, 1, 31))
	require.NoError(t, err)
	require.Equal(t, 2, repo.lookups)

	_, err = svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 31), decimal.RequireFromString("1.35"))
	require.NoError(t, err)
	rate, err := svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 1, 31))
	require.NoError(t, err)
	require.True(t, rate.Rate.Equal(decimal.RequireFromString("1.35")))
	require.Equal(t, 3, repo.lookups)
}

// racingRepo runs afterLookup once, after the store has been read but before
// the result is returned.
type racingRepo struct {
	*memoryRepo
	afterLookup func()
}

func (r *racingRepo) LatestOnOrBefore(ctx context.Context, pair Pair, date time.Time) (*ExchangeRate, error) {
	rate, err := r.memoryRepo.LatestOnOrBefore(ctx, pair, date)
	if hook := r.afterLookup; hook != nil {
		r.afterLookup = nil
		hook()
	}
	return rate, err
}

func TestGetRateForDateDoesNotCacheMissOverConcurrentSave(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &racingRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, NewCache(client, time.Hour), nil)
	ctx := context.Background()
	repo.afterLookup = func() {
		_, err := svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 31), decimal.RequireFromString("1.35"))
		require.NoError(t, err)
	}

	stale, err := svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 1, 31))
	require.NoError(t, err)
	require.Nil(t, stale)

	rate, err := svc.GetRateForDate(ctx, "USD", "SGD", day(2025, 1, 31))
	require.NoError(t, err)
	require.NotNil(t, rate)
	require.True(t, rate.Rate.Equal(decimal.RequireFromString("1.35")))
	require.Equal(t, 2, repo.lookups)

	_, err = svc.RequireRate(ctx, "USD", "SGD", day(2025, 1, 31))
	require.NoError(t, err)
}

func TestValidateReportsGaps(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	_, err := svc.SaveRate(ctx, "USD", "SGD", day(2025, 1, 1), decimal.RequireFromString("1.3"))
	require.NoError(t, err)

	cov, err := Validate(ctx, svc, day(2025, 1, 31), []Pair{
		{From: "USD", To: "SGD"}, {From: "eur", To: "SGD"}, {From: "USD", To: "SGD"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, cov.Checked)
	require.True(t, cov.HasGaps())
	require.Equal(t, []Pair{{From: "EUR", To: "SGD"}}, cov.Gaps)
	require.Contains(t, cov.Available, "USD/SGD")

	_, err = Validate(ctx, nil, day(2025, 1, 31), nil)
	require.Error(t, err)
}
