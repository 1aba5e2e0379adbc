package journals

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// LineInput describes one candidate journal line.
type LineInput struct {
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	TaxCode      string
	TaxAmount    decimal.Decimal
	CurrencyCode string
	ExchangeRate *decimal.Decimal
	Dimension1ID *int64
	Dimension2ID *int64
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	JournalType  string
	EntryDate    time.Time
	Description  string
	Reference    string
	SourceType   string
	SourceID     *int64
	UserID       int64
	NumberPrefix string
	Lines        []LineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID      int64
	ReversalDate time.Time
	Description  string
	UserID       int64
}

// ListFilter narrows journal listings.
type ListFilter struct {
	PeriodID   *int64
	Posted     *bool
	SourceType string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// CreatePatternInput carries recurring pattern parameters.
type CreatePatternInput struct {
	Name            string
	TemplateEntryID int64
	Frequency       Frequency
	StartDate       time.Time
	EndDate         *time.Time
	UserID          int64
}

// validateLines applies the shape checks that need no I/O: a non-empty line
// set, one-sided non-negative lines, then exact debit/credit equality.
func (in CreateInput) validateLines(op string) error {
	if len(in.Lines) == 0 {
		return shared.Validation(op, shared.ErrEmptyLines)
	}
	var (
		messages []string
		cause    error
	)
	for i, line := range in.Lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			messages = append(messages, fmt.Sprintf("line %d: amounts must not be negative", i+1))
			if cause == nil {
				cause = shared.ErrNegativeAmount
			}
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			messages = append(messages, fmt.Sprintf("line %d: cannot have both debit and credit", i+1))
			if cause == nil {
				cause = shared.ErrBothSides
			}
		}
	}
	if cause != nil {
		return shared.Validation(op, cause, messages...)
	}
	var debit, credit decimal.Decimal
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return shared.Validation(op, shared.ErrUnbalanced,
			fmt.Sprintf("journal entry is unbalanced: debits %s, credits %s", debit.String(), credit.String()))
	}
	return nil
}
