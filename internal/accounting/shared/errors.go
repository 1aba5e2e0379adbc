package shared

import (
	"errors"
	"strings"
)

// Kind classifies ledger failures so callers can decide how to surface them.
type Kind string

const (
	// KindValidation marks input-shape failures (unbalanced lines, unknown accounts).
	KindValidation Kind = "validation"
	// KindState marks failures caused by an entity's lifecycle state.
	KindState Kind = "state"
	// KindPrecondition marks missing prerequisites that abort the whole operation.
	KindPrecondition Kind = "precondition"
	// KindNotFound marks lookups of entities that do not exist.
	KindNotFound Kind = "not_found"
)

var (
	// ErrEmptyLines indicates an entry without lines.
	ErrEmptyLines = errors.New("accounting: journal entry requires at least one line")
	// ErrBothSides indicates a line carrying both a debit and a credit.
	ErrBothSides = errors.New("accounting: line cannot carry both debit and credit")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("accounting: line amounts must not be negative")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrNoOpenPeriod indicates no open fiscal period covers the entry date.
	ErrNoOpenPeriod = errors.New("no open fiscal period for this date")
	// ErrPeriodNotOpen indicates the entry's period was closed after drafting.
	ErrPeriodNotOpen = errors.New("accounting: fiscal period is not open")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountInactive indicates a deactivated account.
	ErrAccountInactive = errors.New("accounting: account is inactive")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAlreadyPosted indicates a second posting attempt.
	ErrAlreadyPosted = errors.New("accounting: journal entry already posted")
	// ErrNotPosted indicates an action that requires a posted entry.
	ErrNotPosted = errors.New("accounting: journal entry is not posted")
	// ErrAlreadyReversed indicates a second reversal attempt.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")
	// ErrPostedImmutable indicates an attempt to delete or edit a posted entry.
	ErrPostedImmutable = errors.New("accounting: posted journal entries cannot be deleted")

	// ErrFiscalYearNotFound indicates a missing fiscal year.
	ErrFiscalYearNotFound = errors.New("accounting: fiscal year not found")
	// ErrInvalidDateRange indicates start >= end.
	ErrInvalidDateRange = errors.New("accounting: start date must be before end date")
	// ErrDuplicateFiscalYear indicates a fiscal year name clash.
	ErrDuplicateFiscalYear = errors.New("accounting: fiscal year name already exists")
	// ErrFiscalYearOverlap indicates date overlap with another fiscal year.
	ErrFiscalYearOverlap = errors.New("accounting: fiscal year overlaps an existing fiscal year")
	// ErrFiscalYearClosed indicates an operation on a closed fiscal year.
	ErrFiscalYearClosed = errors.New("accounting: fiscal year is closed")
	// ErrOpenPeriodsRemain indicates a year close attempt with open periods.
	ErrOpenPeriodsRemain = errors.New("accounting: fiscal year still has open periods")
	// ErrInvalidPeriodType indicates an unknown period type.
	ErrInvalidPeriodType = errors.New("accounting: period type must be Month or Quarter")
	// ErrPeriodsExist indicates a regeneration of an existing period type.
	ErrPeriodsExist = errors.New("accounting: periods of this type already exist for the fiscal year")
	// ErrPeriodNotFound indicates a missing fiscal period.
	ErrPeriodNotFound = errors.New("accounting: fiscal period not found")
	// ErrPeriodAlreadyClosed indicates a close of a closed period.
	ErrPeriodAlreadyClosed = errors.New("accounting: fiscal period already closed")
	// ErrPeriodAlreadyOpen indicates a reopen of an open period.
	ErrPeriodAlreadyOpen = errors.New("accounting: fiscal period already open")
	// ErrPeriodArchived indicates an operation on an archived period.
	ErrPeriodArchived = errors.New("accounting: fiscal period is archived")

	// ErrMissingRate indicates no exchange rate is stored for a pair and date.
	ErrMissingRate = errors.New("accounting: exchange rate not found")
	// ErrInvalidRate indicates a non-positive rate or malformed currency code.
	ErrInvalidRate = errors.New("accounting: invalid exchange rate")
	// ErrSystemAccountMissing indicates a configured system account cannot be resolved.
	ErrSystemAccountMissing = errors.New("accounting: configured system account not found")
	// ErrSequenceExhausted indicates a non-cycling sequence passed its maximum.
	ErrSequenceExhausted = errors.New("accounting: sequence exhausted")
	// ErrRecurringPatternNotFound indicates a missing recurring pattern.
	ErrRecurringPatternNotFound = errors.New("accounting: recurring pattern not found")
	// ErrTemplateInUse indicates a draft still serves as a recurring template.
	ErrTemplateInUse = errors.New("accounting: journal entry is a recurring pattern template")
	// ErrNotConfigured indicates an optional collaborator was not wired.
	ErrNotConfigured = errors.New("accounting: service not configured")
)

// Error is the structured failure returned by ledger operations.
type Error struct {
	Kind     Kind
	Op       string
	Err      error
	Messages []string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if len(e.Messages) > 0 {
		b.WriteString(strings.Join(e.Messages, "; "))
	} else if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a validation failure. Messages default to the sentinel text.
func Validation(op string, err error, messages ...string) error {
	return newError(KindValidation, op, err, messages)
}

// State builds a lifecycle-state failure.
func State(op string, err error, messages ...string) error {
	return newError(KindState, op, err, messages)
}

// Precondition builds a failure for a missing prerequisite.
func Precondition(op string, err error, messages ...string) error {
	return newError(KindPrecondition, op, err, messages)
}

// NotFound builds a failure for a missing entity.
func NotFound(op string, err error, messages ...string) error {
	return newError(KindNotFound, op, err, messages)
}

func newError(kind Kind, op string, err error, messages []string) error {
	if len(messages) == 0 && err != nil {
		messages = []string{err.Error()}
	}
	return &Error{Kind: kind, Op: op, Err: err, Messages: messages}
}

// KindOf reports the classification of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessagesOf returns the human readable messages carried by err.
func MessagesOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return append([]string(nil), e.Messages...)
	}
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}
