package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// AccountBalance models a general ledger account with aggregated balances.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Opening   decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Closing computes the debit-positive closing balance for the account.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening.Add(a.Debit).Sub(a.Credit)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Opening decimal.Decimal `json:"opening"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Closing decimal.Decimal `json:"closing"`
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Opening  decimal.Decimal       `json:"opening"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
	Closing  decimal.Decimal       `json:"closing"`
}

// TrialBalance is the grouped trial balance report.
type TrialBalance struct {
	Groups       []TrialBalanceGroup `json:"groups"`
	TotalDebit   decimal.Decimal     `json:"total_debit"`
	TotalCredit  decimal.Decimal     `json:"total_credit"`
	TotalOpening decimal.Decimal     `json:"total_opening"`
	TotalClosing decimal.Decimal     `json:"total_closing"`
}

// Balanced reports whether posted debits equal posted credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range balances {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			Code:    acc.Code,
			Name:    acc.Name,
			Opening: acc.Opening,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: acc.Closing(),
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening = grp.Opening.Add(row.Opening)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.Closing = grp.Closing.Add(row.Closing)
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening = result.TotalOpening.Add(grp.Opening)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
		result.TotalClosing = result.TotalClosing.Add(grp.Closing)
	}
	return result
}
