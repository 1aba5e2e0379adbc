package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"total_liabilities_and_equity"`
}

// Balanced reports whether assets equal liabilities plus equity.
func (bs BalanceSheet) Balanced() bool {
	return bs.Assets.Total.Equal(bs.TotalLiabilitiesAndEquity)
}

// BuildBalanceSheet aggregates closing balances into assets, liabilities, and
// equity. Liabilities and equity are shown credit-positive; unclosed revenue
// and expense balances roll into a current earnings line under equity.
func BuildBalanceSheet(balances []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	var earnings decimal.Decimal
	var hasEarnings bool

	for _, acc := range balances {
		balance := acc.Closing()
		row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: balance}
		switch acc.Type {
		case accounts.AccountTypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounts.AccountTypeLiability:
			row.Balance = balance.Neg()
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounts.AccountTypeEquity:
			row.Balance = balance.Neg()
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		case accounts.AccountTypeRevenue, accounts.AccountTypeExpense:
			earnings = earnings.Sub(balance)
			hasEarnings = true
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })
	if hasEarnings {
		equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Name: "Current Earnings", Balance: earnings})
		equity.Total = equity.Total.Add(earnings)
	}

	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		TotalLiabilitiesAndEquity: liabilities.Total.Add(equity.Total),
	}
}
