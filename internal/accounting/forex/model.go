package forex

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceTypeRevaluation marks entries booked by the revaluation run.
const SourceTypeRevaluation = "forex_revaluation"

// Threshold is the smallest total adjustment worth booking.
var Threshold = decimal.New(1, -2)

// ErrPartialRevaluation marks a run whose adjustment posted but whose
// next-day reversal did not. The ledger needs manual correction.
var ErrPartialRevaluation = errors.New("forex: revaluation posted without its reversal")

// PartialRevaluationError carries the posted entry left without a reversal.
type PartialRevaluationError struct {
	EntryID int64
	EntryNo string
	Err     error
}

func (e *PartialRevaluationError) Error() string {
	return fmt.Sprintf("forex: revaluation %s posted but reversal failed: %v", e.EntryNo, e.Err)
}

func (e *PartialRevaluationError) Unwrap() []error { return []error{ErrPartialRevaluation, e.Err} }

// OpenInvoice is an unsettled foreign-currency sales or purchase invoice.
type OpenInvoice struct {
	ID           int64
	DocumentNo   string
	CurrencyCode string
	Outstanding  decimal.Decimal
	BookedRate   decimal.Decimal
}

// BankAccount is a foreign-currency bank account and its linked GL account.
type BankAccount struct {
	ID           int64
	Name         string
	CurrencyCode string
	GLAccountID  int64
	Balance      decimal.Decimal
}

// Adjustment is one computed difference before it is grouped by account.
type Adjustment struct {
	Source       string          `json:"source"`
	SourceID     int64           `json:"source_id"`
	Reference    string          `json:"reference"`
	AccountID    int64           `json:"account_id"`
	CurrencyCode string          `json:"currency_code"`
	Foreign      decimal.Decimal `json:"foreign_amount"`
	Booked       decimal.Decimal `json:"booked"`
	Revalued     decimal.Decimal `json:"revalued"`
	Amount       decimal.Decimal `json:"amount"`
}

// AccountTotal is the accumulated debit-positive adjustment for one account.
type AccountTotal struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Preview is the computed revaluation before anything is booked.
type Preview struct {
	Date               time.Time                  `json:"date"`
	FunctionalCurrency string                     `json:"functional_currency"`
	Rates              map[string]decimal.Decimal `json:"rates"`
	Adjustments        []Adjustment               `json:"adjustments"`
	Accounts           []AccountTotal             `json:"accounts"`
	Total              decimal.Decimal            `json:"total"`
}

func (p Preview) rate(code string) decimal.Decimal {
	return p.Rates[strings.ToUpper(strings.TrimSpace(code))]
}

// Negligible reports whether the net adjustment is below Threshold.
func (p Preview) Negligible() bool {
	return p.Total.Abs().LessThan(Threshold)
}
