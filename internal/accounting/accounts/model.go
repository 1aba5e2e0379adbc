package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "Asset"
	AccountTypeLiability AccountType = "Liability"
	AccountTypeEquity    AccountType = "Equity"
	AccountTypeRevenue   AccountType = "Revenue"
	AccountTypeExpense   AccountType = "Expense"
)

// Valid reports whether t is one of the five ledger categories.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account models a chart of accounts node.
type Account struct {
	ID                 int64
	Code               string
	Name               string
	Type               AccountType
	SubType            string
	ParentID           *int64
	IsActive           bool
	IsControlAccount   bool
	IsBankAccount      bool
	OpeningBalance     decimal.Decimal
	OpeningBalanceDate *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasOpeningBalance reports whether an opening balance applies at asOf.
func (a Account) HasOpeningBalance(asOf time.Time) bool {
	return a.OpeningBalanceDate != nil && !asOf.Before(*a.OpeningBalanceDate)
}
