package reports

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type postedLine struct {
	entryID   int64
	accountID int64
	date      time.Time
	posted    bool
	debit     decimal.Decimal
	credit    decimal.Decimal
}

type memoryLedger struct {
	accounts map[int64]accounts.Account
	lines    []postedLine
}

func (m *memoryLedger) GetByID(_ context.Context, id int64) (accounts.Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return accounts.Account{}, shared.NotFound("accounts.get", shared.ErrAccountNotFound)
	}
	return acc, nil
}

func (m *memoryLedger) List(context.Context) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(m.accounts))
	for id := int64(1); id <= int64(len(m.accounts)); id++ {
		out = append(out, m.accounts[id])
	}
	return out, nil
}

func (m *memoryLedger) AccountActivity(_ context.Context, accountID int64, from *time.Time, to time.Time) (Activity, error) {
	a := Activity{AccountID: accountID}
	for _, l := range m.lines {
		if !l.posted || l.accountID != accountID || l.date.After(to) || (from != nil && l.date.Before(*from)) {
			continue
		}
		a.Debit = a.Debit.Add(l.debit)
		a.Credit = a.Credit.Add(l.credit)
	}
	return a, nil
}

func (m *memoryLedger) ActivityAsOf(ctx context.Context, asOf time.Time) ([]Activity, error) {
	var out []Activity
	for id, acc := range m.accounts {
		a, _ := m.AccountActivity(ctx, id, acc.OpeningBalanceDate, asOf)
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryLedger) ActivityBetween(ctx context.Context, from, to time.Time) ([]Activity, error) {
	var out []Activity
	for id := range m.accounts {
		a, _ := m.AccountActivity(ctx, id, &from, to)
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryLedger) UnbalancedPostedEntries(context.Context) ([]int64, error) {
	sums := map[int64]decimal.Decimal{}
	for _, l := range m.lines {
		if l.posted {
			sums[l.entryID] = sums[l.entryID].Add(l.debit).Sub(l.credit)
		}
	}
	var out []int64
	for id, net := range sums {
		if !net.IsZero() {
			out = append(out, id)
		}
	}
	return out, nil
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func newLedger() *memoryLedger {
	opening := day(2025, 1, 1)
	return &memoryLedger{
		accounts: map[int64]accounts.Account{
			1: {ID: 1, Code: "1010", Name: "Cash", Type: accounts.AccountTypeAsset, IsActive: true,
				OpeningBalance: d("1000"), OpeningBalanceDate: &opening},
			2: {ID: 2, Code: "4000", Name: "Sales", Type: accounts.AccountTypeRevenue, IsActive: true},
			3: {ID: 3, Code: "3000", Name: "Capital", Type: accounts.AccountTypeEquity, IsActive: true,
				OpeningBalance: d("-1000"), OpeningBalanceDate: &opening},
		},
		lines: []postedLine{
			{entryID: 10, accountID: 1, date: day(2024, 12, 31), posted: true, debit: d("999")},
			{entryID: 10, accountID: 2, date: day(2024, 12, 31), posted: true, credit: d("999")},
			{entryID: 11, accountID: 1, date: day(2025, 2, 10), posted: true, debit: d("250")},
			{entryID: 11, accountID: 2, date: day(2025, 2, 10), posted: true, credit: d("250")},
			{entryID: 12, accountID: 1, date: day(2025, 2, 20), posted: false, debit: d("75")},
			{entryID: 12, accountID: 2, date: day(2025, 2, 20), posted: false, credit: d("75")},
			{entryID: 13, accountID: 1, date: day(2025, 3, 5), posted: true, credit: d("40")},
			{entryID: 13, accountID: 2, date: day(2025, 3, 5), posted: true, debit: d("40")},
		},
	}
}

func TestGetAccountBalanceOpeningPlusPostedActivity(t *testing.T) {
	ledger := newLedger()
	calc := NewCalculator(ledger, ledger)
	ctx := context.Background()

	balance, err := calc.GetAccountBalance(ctx, 1, day(2025, 2, 28))
	require.NoError(t, err)
	requireDecimal(t, "1250", balance)

	balance, err = calc.GetAccountBalance(ctx, 1, day(2025, 3, 31))
	require.NoError(t, err)
	requireDecimal(t, "1210", balance)

	balance, err = calc.GetAccountBalance(ctx, 1, day(2024, 12, 31))
	require.NoError(t, err)
	requireDecimal(t, "0", balance)
}

func TestGetAccountBalanceWithoutOpeningDateCountsAllHistory(t *testing.T) {
	ledger := newLedger()
	calc := NewCalculator(ledger, ledger)

	balance, err := calc.GetAccountBalance(context.Background(), 2, day(2025, 12, 31))
	require.NoError(t, err)
	requireDecimal(t, "-1209", balance)
}

func TestGetAccountBalanceUnknownAccount(t *testing.T) {
	ledger := newLedger()
	calc := NewCalculator(ledger, ledger)
	_, err := calc.GetAccountBalance(context.Background(), 99, day(2025, 1, 1))
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestGetAccountBalanceForPeriodExcludesOpening(t *testing.T) {
	ledger := newLedger()
	calc := NewCalculator(ledger, ledger)
	ctx := context.Background()

	movement, err := calc.GetAccountBalanceForPeriod(ctx, 1, day(2025, 2, 1), day(2025, 2, 28))
	require.NoError(t, err)
	requireDecimal(t, "250", movement)

	_, err = calc.GetAccountBalanceForPeriod(ctx, 1, day(2025, 3, 1), day(2025, 2, 1))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestCalculatorTrialBalanceBalances(t *testing.T) {
	ledger := newLedger()
	ledger.lines = ledger.lines[2:]
	calc := NewCalculator(ledger, ledger)

	tb, err := calc.TrialBalance(context.Background(), day(2025, 3, 31))
	require.NoError(t, err)
	require.True(t, tb.Balanced(), "debit %s credit %s", tb.TotalDebit, tb.TotalCredit)
	requireDecimal(t, "0", tb.TotalOpening)
}

func TestCalculatorBalanceSheetBalances(t *testing.T) {
	ledger := newLedger()
	ledger.lines = ledger.lines[2:]
	calc := NewCalculator(ledger, ledger)

	bs, err := calc.BalanceSheet(context.Background(), day(2025, 3, 31))
	require.NoError(t, err)
	requireDecimal(t, "1210", bs.Assets.Total)
	require.True(t, bs.Balanced())
}

func TestCalculatorUnbalancedEntries(t *testing.T) {
	ledger := newLedger()
	ledger.lines = append(ledger.lines, postedLine{entryID: 20, accountID: 1, date: day(2025, 4, 1), posted: true, debit: d("1")})
	calc := NewCalculator(ledger, ledger)

	ids, err := calc.UnbalancedEntries(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{20}, ids)
}
