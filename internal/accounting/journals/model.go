package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Common journal types. The field is free-form; these are the ones the
// ledger itself produces.
const (
	JournalTypeGeneral    = "General"
	JournalTypeAdjustment = "Adjustment"
	JournalTypeReversal   = "Reversal"
	JournalTypeRecurring  = "Recurring"
)

// maxJournalTypeLen matches the journal_type column width.
const maxJournalTypeLen = 50

// Source types stamped by the ledger on entries it creates itself.
const (
	SourceTypeReversal         = "journal_reversal"
	SourceTypeRecurringPattern = "recurring_pattern"
)

// JournalEntry is the header of a double-entry posting.
type JournalEntry struct {
	ID               int64         `json:"id"`
	EntryNo          string        `json:"entry_no"`
	JournalType      string        `json:"journal_type"`
	EntryDate        time.Time     `json:"entry_date"`
	Description      string        `json:"description"`
	Reference        string        `json:"reference,omitempty"`
	IsPosted         bool          `json:"is_posted"`
	IsReversed       bool          `json:"is_reversed"`
	ReversingEntryID *int64        `json:"reversing_entry_id,omitempty"`
	FiscalPeriodID   int64         `json:"fiscal_period_id"`
	SourceType       string        `json:"source_type,omitempty"`
	SourceID         *int64        `json:"source_id,omitempty"`
	CreatedByUserID  int64         `json:"created_by_user_id"`
	UpdatedByUserID  *int64        `json:"updated_by_user_id,omitempty"`
	PostedAt         *time.Time    `json:"posted_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Lines            []JournalLine `json:"lines"`
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID           int64            `json:"id"`
	EntryID      int64            `json:"journal_entry_id"`
	LineNumber   int              `json:"line_number"`
	AccountID    int64            `json:"account_id"`
	Debit        decimal.Decimal  `json:"debit_amount"`
	Credit       decimal.Decimal  `json:"credit_amount"`
	Description  string           `json:"description,omitempty"`
	TaxCode      string           `json:"tax_code,omitempty"`
	TaxAmount    decimal.Decimal  `json:"tax_amount"`
	CurrencyCode string           `json:"currency_code,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Dimension1ID *int64           `json:"dimension1_id,omitempty"`
	Dimension2ID *int64           `json:"dimension2_id,omitempty"`
}

// FunctionalDebit is the debit converted at the line's exchange rate.
func (l JournalLine) FunctionalDebit() decimal.Decimal {
	if l.ExchangeRate == nil {
		return l.Debit
	}
	return l.Debit.Mul(*l.ExchangeRate)
}

// FunctionalCredit is the credit converted at the line's exchange rate.
func (l JournalLine) FunctionalCredit() decimal.Decimal {
	if l.ExchangeRate == nil {
		return l.Credit
	}
	return l.Credit.Mul(*l.ExchangeRate)
}

// Totals returns the summed debit and credit of the entry's lines.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Frequency is the cadence of a recurring pattern.
type Frequency string

const (
	FrequencyDaily     Frequency = "Daily"
	FrequencyWeekly    Frequency = "Weekly"
	FrequencyMonthly   Frequency = "Monthly"
	FrequencyQuarterly Frequency = "Quarterly"
	FrequencyYearly    Frequency = "Yearly"
)

// RecurringPattern spawns draft copies of a template entry on a schedule.
type RecurringPattern struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	TemplateEntryID      int64      `json:"template_entry_id"`
	Frequency            Frequency  `json:"frequency"`
	StartDate            time.Time  `json:"start_date"`
	NextGenerationDate   time.Time  `json:"next_generation_date"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	IsActive             bool       `json:"is_active"`
	LastGeneratedEntryID *int64     `json:"last_generated_entry_id,omitempty"`
	CreatedByUserID      int64      `json:"created_by_user_id"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
