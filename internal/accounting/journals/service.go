package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// AccountLookup validates line accounts.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (accounts.Account, error)
}

// NumberGenerator allocates entry numbers.
type NumberGenerator interface {
	Next(ctx context.Context, name, prefixOverride string) (string, error)
}

// Service validates, persists, posts and reverses journal entries.
type Service struct {
	repo     Repository
	accounts AccountLookup
	numbers  NumberGenerator
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the journal entry manager. audit may be nil.
func NewService(repo Repository, lookup AccountLookup, numbers NumberGenerator, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: lookup, numbers: numbers, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithinTx runs fn in one unit of work. Callers compose the Tx-suffixed operations
// inside fn so their own writes commit or roll back with the ledger's.
func (s *Service) WithinTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.repo.WithTx(ctx, fn)
}

// CreateJournalEntry validates and stores a draft entry in its own transaction.
func (s *Service) CreateJournalEntry(ctx context.Context, in CreateInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.CreateJournalEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.UserID, "journal.create", entry.ID, map[string]any{"entry_no": entry.EntryNo})
	return entry, nil
}

// CreateJournalEntryTx validates and stores a draft entry inside tx.
func (s *Service) CreateJournalEntryTx(ctx context.Context, tx TxRepository, in CreateInput) (JournalEntry, error) {
	const op = "journals.create"
	if err := in.validateLines(op); err != nil {
		return JournalEntry{}, err
	}
	entryDate := shared.DateOnly(in.EntryDate)
	if in.EntryDate.IsZero() {
		return JournalEntry{}, shared.Validation(op, errors.New("accounting: entry date is required"))
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.JournalType)) > maxJournalTypeLen {
		return JournalEntry{}, shared.Validation(op, errors.New("accounting: journal type too long"),
			fmt.Sprintf("journal type must be at most %d characters", maxJournalTypeLen))
	}
	period, err := tx.FindOpenPeriodForDate(ctx, entryDate)
	if err != nil {
		return JournalEntry{}, err
	}
	if period == nil {
		return JournalEntry{}, shared.Precondition(op, shared.ErrNoOpenPeriod,
			fmt.Sprintf("%s (%s)", shared.ErrNoOpenPeriod.Error(), entryDate.Format(time.DateOnly)))
	}
	if err := s.validateAccounts(ctx, op, in.Lines); err != nil {
		return JournalEntry{}, err
	}

	number, err := s.numbers.Next(ctx, sequence.JournalEntry, in.NumberPrefix)
	if err != nil {
		return JournalEntry{}, err
	}
	journalType := strings.TrimSpace(in.JournalType)
	if journalType == "" {
		journalType = JournalTypeGeneral
	}
	now := s.now()
	draft := JournalEntry{
		EntryNo:         number,
		JournalType:     journalType,
		EntryDate:       entryDate,
		Description:     in.Description,
		Reference:       in.Reference,
		FiscalPeriodID:  period.ID,
		SourceType:      in.SourceType,
		SourceID:        in.SourceID,
		CreatedByUserID: in.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Lines:           toLines(in.Lines),
	}
	return tx.InsertEntry(ctx, draft)
}

func (s *Service) validateAccounts(ctx context.Context, op string, lines []LineInput) error {
	var (
		messages []string
		cause    error
	)
	checked := map[int64]struct{}{}
	for _, line := range lines {
		if _, ok := checked[line.AccountID]; ok {
			continue
		}
		checked[line.AccountID] = struct{}{}
		account, err := s.accounts.GetByID(ctx, line.AccountID)
		if err != nil {
			if !errors.Is(err, shared.ErrAccountNotFound) {
				return err
			}
			messages = append(messages, fmt.Sprintf("account %d does not exist", line.AccountID))
			if cause == nil {
				cause = shared.ErrAccountNotFound
			}
			continue
		}
		if !account.IsActive {
			messages = append(messages, fmt.Sprintf("account %s (%s) is inactive", account.Code, account.Name))
			if cause == nil {
				cause = shared.ErrAccountInactive
			}
		}
	}
	if cause != nil {
		return shared.Validation(op, cause, messages...)
	}
	return nil
}

// PostJournalEntry posts a draft in its own transaction.
func (s *Service) PostJournalEntry(ctx context.Context, id, userID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostJournalEntryTx(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, userID, "journal.post", entry.ID, map[string]any{"entry_no": entry.EntryNo})
	return entry, nil
}

// PostJournalEntryTx marks a draft as posted inside tx after re-checking
// that its fiscal period is still open.
func (s *Service) PostJournalEntryTx(ctx context.Context, tx TxRepository, id, userID int64) (JournalEntry, error) {
	const op = "journals.post"
	entry, err := tx.GetEntryForUpdate(ctx, id)
	if err != nil {
		return JournalEntry{}, notFound(op, err)
	}
	if entry.IsPosted {
		return JournalEntry{}, shared.State(op, shared.ErrAlreadyPosted,
			fmt.Sprintf("journal entry %s is already posted", entry.EntryNo))
	}
	period, err := tx.GetPeriodForUpdate(ctx, entry.FiscalPeriodID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !period.IsOpen() {
		return JournalEntry{}, shared.Precondition(op, shared.ErrPeriodNotOpen,
			fmt.Sprintf("fiscal period %s is %s", period.Name, period.Status))
	}
	now := s.now()
	if err := tx.MarkPosted(ctx, entry.ID, userID, now); err != nil {
		return JournalEntry{}, err
	}
	entry.IsPosted = true
	entry.PostedAt = &now
	entry.UpdatedByUserID = &userID
	entry.UpdatedAt = now
	return entry, nil
}

// RecordJournalEntry creates and posts an entry atomically. Business document
// producers use this path.
func (s *Service) RecordJournalEntry(ctx context.Context, in CreateInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.RecordJournalEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.UserID, "journal.post", entry.ID, map[string]any{
		"entry_no":    entry.EntryNo,
		"source_type": entry.SourceType,
	})
	return entry, nil
}

// RecordJournalEntryTx creates and posts an entry inside tx.
func (s *Service) RecordJournalEntryTx(ctx context.Context, tx TxRepository, in CreateInput) (JournalEntry, error) {
	created, err := s.CreateJournalEntryTx(ctx, tx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	posted, err := s.PostJournalEntryTx(ctx, tx, created.ID, in.UserID)
	if err != nil {
		return JournalEntry{}, err
	}
	return posted, nil
}

// ReverseJournalEntry books the mirror image of a posted entry and links the
// original to it, all in one transaction.
func (s *Service) ReverseJournalEntry(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = s.ReverseJournalEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.UserID, "journal.reverse", in.EntryID, map[string]any{
		"reversal_id":       reversal.ID,
		"reversal_entry_no": reversal.EntryNo,
	})
	return reversal, nil
}

// ReverseJournalEntryTx is ReverseJournalEntry inside tx.
func (s *Service) ReverseJournalEntryTx(ctx context.Context, tx TxRepository, in ReverseInput) (JournalEntry, error) {
	const op = "journals.reverse"
	original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
	if err != nil {
		return JournalEntry{}, notFound(op, err)
	}
	if !original.IsPosted {
		return JournalEntry{}, shared.State(op, shared.ErrNotPosted,
			fmt.Sprintf("journal entry %s is not posted", original.EntryNo))
	}
	if original.IsReversed {
		return JournalEntry{}, shared.State(op, shared.ErrAlreadyReversed,
			fmt.Sprintf("journal entry %s is already reversed", original.EntryNo))
	}
	date := in.ReversalDate
	if date.IsZero() {
		date = s.now()
	}
	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Reversal of %s", original.EntryNo)
	}
	sourceID := original.ID
	reversal, err := s.RecordJournalEntryTx(ctx, tx, CreateInput{
		JournalType: JournalTypeReversal,
		EntryDate:   date,
		Description: description,
		Reference:   original.EntryNo,
		SourceType:  SourceTypeReversal,
		SourceID:    &sourceID,
		UserID:      in.UserID,
		Lines:       mirrorLines(original.Lines),
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.MarkReversed(ctx, original.ID, reversal.ID, in.UserID, s.now()); err != nil {
		return JournalEntry{}, err
	}
	return reversal, nil
}

// DeleteJournalEntry removes a draft. Posted entries and drafts that still
// serve as a recurring template are refused.
func (s *Service) DeleteJournalEntry(ctx context.Context, id, userID int64) error {
	const op = "journals.delete"
	var entryNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return notFound(op, err)
		}
		if entry.IsPosted {
			return shared.State(op, shared.ErrPostedImmutable,
				fmt.Sprintf("journal entry %s is posted and cannot be deleted", entry.EntryNo))
		}
		patterns, err := tx.PatternsUsingTemplate(ctx, id)
		if err != nil {
			return err
		}
		if len(patterns) > 0 {
			return shared.State(op, shared.ErrTemplateInUse,
				fmt.Sprintf("journal entry %s is the template of recurring pattern %d", entry.EntryNo, patterns[0]))
		}
		entryNo = entry.EntryNo
		return tx.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, userID, "journal.delete", id, map[string]any{"entry_no": entryNo})
	return nil
}

// GetJournalEntry returns an entry with its lines.
func (s *Service) GetJournalEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return JournalEntry{}, notFound("journals.get", err)
	}
	return entry, nil
}

// ListJournalEntries returns entry headers matching filter.
func (s *Service) ListJournalEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) record(ctx context.Context, actor int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func mirrorLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			Description:  line.Description,
			TaxCode:      line.TaxCode,
			TaxAmount:    line.TaxAmount.Neg(),
			CurrencyCode: line.CurrencyCode,
			ExchangeRate: line.ExchangeRate,
			Dimension1ID: line.Dimension1ID,
			Dimension2ID: line.Dimension2ID,
		})
	}
	return out
}

func linesToInput(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Description:  line.Description,
			TaxCode:      line.TaxCode,
			TaxAmount:    line.TaxAmount,
			CurrencyCode: line.CurrencyCode,
			ExchangeRate: line.ExchangeRate,
			Dimension1ID: line.Dimension1ID,
			Dimension2ID: line.Dimension2ID,
		})
	}
	return out
}

func toLines(in []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(in))
	for i, line := range in {
		out = append(out, JournalLine{
			LineNumber:   i + 1,
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Description:  line.Description,
			TaxCode:      line.TaxCode,
			TaxAmount:    line.TaxAmount,
			CurrencyCode: line.CurrencyCode,
			ExchangeRate: line.ExchangeRate,
			Dimension1ID: line.Dimension1ID,
			Dimension2ID: line.Dimension2ID,
		})
	}
	return out
}

func notFound(op string, err error) error {
	if errors.Is(err, shared.ErrJournalNotFound) || errors.Is(err, shared.ErrRecurringPatternNotFound) {
		return shared.NotFound(op, err)
	}
	return err
}
