package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Activity is the posted debit and credit total of one account.
type Activity struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net is debit minus credit.
func (a Activity) Net() decimal.Decimal { return a.Debit.Sub(a.Credit) }

// ActivityReader sums posted journal lines. Draft entries never count.
type ActivityReader interface {
	// AccountActivity sums one account over entry dates in [from, to]; a nil
	// from leaves the range open at the start.
	AccountActivity(ctx context.Context, accountID int64, from *time.Time, to time.Time) (Activity, error)
	// ActivityAsOf sums every account up to asOf, skipping lines dated before
	// the account's opening balance date.
	ActivityAsOf(ctx context.Context, asOf time.Time) ([]Activity, error)
	ActivityBetween(ctx context.Context, from, to time.Time) ([]Activity, error)
	UnbalancedPostedEntries(ctx context.Context) ([]int64, error)
}

// AccountLookup supplies chart of accounts data.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (accounts.Account, error)
	List(ctx context.Context) ([]accounts.Account, error)
}

// Calculator computes balances over posted activity.
type Calculator struct {
	reader   ActivityReader
	accounts AccountLookup
}

// NewCalculator wires the balance calculator.
func NewCalculator(reader ActivityReader, lookup AccountLookup) *Calculator {
	return &Calculator{reader: reader, accounts: lookup}
}

// GetAccountBalance returns the opening balance (when dated on or before asOf)
// plus posted debit minus credit dated up to asOf and not before the opening
// balance date.
func (c *Calculator) GetAccountBalance(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	asOf = shared.DateOnly(asOf)
	account, err := c.accounts.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	var from *time.Time
	if account.OpeningBalanceDate != nil {
		d := shared.DateOnly(*account.OpeningBalanceDate)
		from = &d
	}
	activity, err := c.reader.AccountActivity(ctx, accountID, from, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reports: account %d activity: %w", accountID, err)
	}
	balance := activity.Net()
	if account.HasOpeningBalance(asOf) {
		balance = balance.Add(account.OpeningBalance)
	}
	return balance, nil
}

// GetAccountBalanceForPeriod returns posted net movement in [start, end]
// without any opening balance.
func (c *Calculator) GetAccountBalanceForPeriod(ctx context.Context, accountID int64, start, end time.Time) (decimal.Decimal, error) {
	start, end = shared.DateOnly(start), shared.DateOnly(end)
	if end.Before(start) {
		return decimal.Zero, shared.Validation("reports.period_balance", shared.ErrInvalidDateRange)
	}
	activity, err := c.reader.AccountActivity(ctx, accountID, &start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reports: account %d activity: %w", accountID, err)
	}
	return activity.Net(), nil
}

// TrialBalance builds the trial balance as of asOf.
func (c *Calculator) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	balances, err := c.balancesAsOf(ctx, shared.DateOnly(asOf))
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(balances), nil
}

// BalanceSheet builds the balance sheet as of asOf.
func (c *Calculator) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	balances, err := c.balancesAsOf(ctx, shared.DateOnly(asOf))
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(balances), nil
}

// ProfitAndLoss builds the income statement for movement in [start, end].
func (c *Calculator) ProfitAndLoss(ctx context.Context, start, end time.Time) (ProfitAndLoss, error) {
	start, end = shared.DateOnly(start), shared.DateOnly(end)
	if end.Before(start) {
		return ProfitAndLoss{}, shared.Validation("reports.profit_and_loss", shared.ErrInvalidDateRange)
	}
	list, err := c.accounts.List(ctx)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	activity, err := c.reader.ActivityBetween(ctx, start, end)
	if err != nil {
		return ProfitAndLoss{}, fmt.Errorf("reports: activity: %w", err)
	}
	return BuildProfitAndLoss(merge(list, activity, nil)), nil
}

// UnbalancedEntries lists posted entries whose lines do not balance.
func (c *Calculator) UnbalancedEntries(ctx context.Context) ([]int64, error) {
	if c == nil || c.reader == nil {
		return nil, errors.New("reports: calculator not initialised")
	}
	return c.reader.UnbalancedPostedEntries(ctx)
}

func (c *Calculator) balancesAsOf(ctx context.Context, asOf time.Time) ([]AccountBalance, error) {
	list, err := c.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	activity, err := c.reader.ActivityAsOf(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("reports: activity: %w", err)
	}
	return merge(list, activity, &asOf), nil
}

func merge(list []accounts.Account, activity []Activity, openingAsOf *time.Time) []AccountBalance {
	byAccount := make(map[int64]Activity, len(activity))
	for _, a := range activity {
		byAccount[a.AccountID] = a
	}
	out := make([]AccountBalance, 0, len(list))
	for _, acc := range list {
		a := byAccount[acc.ID]
		row := AccountBalance{
			AccountID: acc.ID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      acc.Type,
			Debit:     a.Debit,
			Credit:    a.Credit,
		}
		if openingAsOf != nil && acc.HasOpeningBalance(*openingAsOf) {
			row.Opening = acc.OpeningBalance
		}
		if row.Opening.IsZero() && row.Debit.IsZero() && row.Credit.IsZero() {
			continue
		}
		out = append(out, row)
	}
	return out
}
