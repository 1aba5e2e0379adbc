package forex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/settings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Source lists the open foreign-currency positions to revalue.
type Source interface {
	OpenReceivables(ctx context.Context, functional string) ([]OpenInvoice, error)
	OpenPayables(ctx context.Context, functional string) ([]OpenInvoice, error)
	ForeignBankAccounts(ctx context.Context, functional string) ([]BankAccount, error)
}

// RateLookup returns the rate for a pair or a precondition failure.
type RateLookup interface {
	RequireRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

// BalanceLookup returns the functional-currency ledger balance of an account.
type BalanceLookup interface {
	GetAccountBalance(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
}

// SystemAccounts resolves configured accounts and the functional currency.
type SystemAccounts interface {
	FunctionalCurrency(ctx context.Context) (string, error)
	ResolveAccount(ctx context.Context, role settings.Role) (accounts.Account, error)
}

// Ledger books and reverses journal entries.
type Ledger interface {
	RecordJournalEntry(ctx context.Context, in journals.CreateInput) (journals.JournalEntry, error)
	ReverseJournalEntry(ctx context.Context, in journals.ReverseInput) (journals.JournalEntry, error)
}

// Locker serialises runs for the same date.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Dependencies wires the revaluation manager.
type Dependencies struct {
	Source   Source
	Rates    RateLookup
	Balances BalanceLookup
	System   SystemAccounts
	Ledger   Ledger
	Locker   Locker
	Logger   *slog.Logger
}

// Service computes and books unrealized exchange differences.
type Service struct {
	source   Source
	rates    RateLookup
	balances BalanceLookup
	system   SystemAccounts
	ledger   Ledger
	locker   Locker
	logger   *slog.Logger
	lockTTL  time.Duration
}

// NewService constructs the revaluation manager. Locker may be nil.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   deps.Source,
		rates:    deps.Rates,
		balances: deps.Balances,
		system:   deps.System,
		ledger:   deps.Ledger,
		locker:   deps.Locker,
		logger:   logger,
		lockTTL:  5 * time.Minute,
	}
}

// Compute values every open foreign position at the date's rates. A missing
// rate for any currency aborts the whole computation.
func (s *Service) Compute(ctx context.Context, date time.Time) (Preview, error) {
	date = shared.DateOnly(date)
	functional, err := s.system.FunctionalCurrency(ctx)
	if err != nil {
		return Preview{}, err
	}

	pos, err := s.loadPositions(ctx, functional)
	if err != nil {
		return Preview{}, err
	}
	receivables, payables, banks := pos.receivables, pos.payables, pos.banks

	preview := Preview{Date: date, FunctionalCurrency: functional, Rates: map[string]decimal.Decimal{}}
	for _, code := range pos.currencies() {
		rate, err := s.rates.RequireRate(ctx, code, functional, date)
		if err != nil {
			return Preview{}, err
		}
		preview.Rates[code] = rate
	}

	if len(receivables) > 0 {
		ar, err := s.system.ResolveAccount(ctx, settings.RoleAccountsReceivable)
		if err != nil {
			return Preview{}, err
		}
		for _, inv := range receivables {
			adj := invoiceAdjustment("sales_invoice", ar.ID, inv, preview.rate(inv.CurrencyCode))
			preview.Adjustments = append(preview.Adjustments, adj)
		}
	}
	if len(payables) > 0 {
		ap, err := s.system.ResolveAccount(ctx, settings.RoleAccountsPayable)
		if err != nil {
			return Preview{}, err
		}
		for _, inv := range payables {
			adj := invoiceAdjustment("purchase_invoice", ap.ID, inv, preview.rate(inv.CurrencyCode))
			adj.Amount = adj.Amount.Neg()
			preview.Adjustments = append(preview.Adjustments, adj)
		}
	}
	for _, bank := range banks {
		booked, err := s.balances.GetAccountBalance(ctx, bank.GLAccountID, date)
		if err != nil {
			return Preview{}, fmt.Errorf("forex: bank account %s balance: %w", bank.Name, err)
		}
		revalued := bank.Balance.Mul(preview.rate(bank.CurrencyCode)).Round(2)
		preview.Adjustments = append(preview.Adjustments, Adjustment{
			Source:       "bank_account",
			SourceID:     bank.ID,
			Reference:    bank.Name,
			AccountID:    bank.GLAccountID,
			CurrencyCode: strings.ToUpper(bank.CurrencyCode),
			Foreign:      bank.Balance,
			Booked:       booked,
			Revalued:     revalued,
			Amount:       revalued.Sub(booked),
		})
	}

	totals := map[int64]decimal.Decimal{}
	for _, adj := range preview.Adjustments {
		totals[adj.AccountID] = totals[adj.AccountID].Add(adj.Amount)
		preview.Total = preview.Total.Add(adj.Amount)
	}
	for id, amount := range totals {
		preview.Accounts = append(preview.Accounts, AccountTotal{AccountID: id, Amount: amount})
	}
	sort.Slice(preview.Accounts, func(i, j int) bool { return preview.Accounts[i].AccountID < preview.Accounts[j].AccountID })
	return preview, nil
}

// RequiredCurrencies lists the functional currency and every foreign
// currency an open position is held in, which is the set of rates a
// revaluation will need.
func (s *Service) RequiredCurrencies(ctx context.Context) (string, []string, error) {
	functional, err := s.system.FunctionalCurrency(ctx)
	if err != nil {
		return "", nil, err
	}
	pos, err := s.loadPositions(ctx, functional)
	if err != nil {
		return "", nil, err
	}
	return functional, pos.currencies(), nil
}

type positions struct {
	receivables []OpenInvoice
	payables    []OpenInvoice
	banks       []BankAccount
}

func (s *Service) loadPositions(ctx context.Context, functional string) (positions, error) {
	var pos positions
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pos.receivables, err = s.source.OpenReceivables(gctx, functional)
		return err
	})
	g.Go(func() error {
		var err error
		pos.payables, err = s.source.OpenPayables(gctx, functional)
		return err
	})
	g.Go(func() error {
		var err error
		pos.banks, err = s.source.ForeignBankAccounts(gctx, functional)
		return err
	})
	if err := g.Wait(); err != nil {
		return positions{}, fmt.Errorf("forex: load positions: %w", err)
	}
	return pos, nil
}

// currencies returns the distinct upper-cased codes, sorted.
func (p positions) currencies() []string {
	var codes []string
	seen := map[string]struct{}{}
	add := func(code string) {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	for _, inv := range p.receivables {
		add(inv.CurrencyCode)
	}
	for _, inv := range p.payables {
		add(inv.CurrencyCode)
	}
	for _, b := range p.banks {
		add(b.CurrencyCode)
	}
	sort.Strings(codes)
	return codes
}

func invoiceAdjustment(source string, accountID int64, inv OpenInvoice, rate decimal.Decimal) Adjustment {
	booked := inv.Outstanding.Mul(inv.BookedRate).Round(2)
	revalued := inv.Outstanding.Mul(rate).Round(2)
	return Adjustment{
		Source:       source,
		SourceID:     inv.ID,
		Reference:    inv.DocumentNo,
		AccountID:    accountID,
		CurrencyCode: strings.ToUpper(inv.CurrencyCode),
		Foreign:      inv.Outstanding,
		Booked:       booked,
		Revalued:     revalued,
		Amount:       revalued.Sub(booked),
	}
}

// CreateUnrealizedGainLossEntry books the revaluation for date and its
// reversal on the following day, both posted. It returns nil when the net
// adjustment is negligible.
func (s *Service) CreateUnrealizedGainLossEntry(ctx context.Context, date time.Time, userID int64) (*journals.JournalEntry, error) {
	const op = "forex.revalue"
	date = shared.DateOnly(date)
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, internalShared.RevaluationLockKey(date), s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	logger := s.logger.With(slog.String("run_id", uuid.NewString()), slog.Time("date", date))

	preview, err := s.Compute(ctx, date)
	if err != nil {
		return nil, err
	}
	if preview.Negligible() {
		logger.Info("forex revaluation negligible", slog.String("total", preview.Total.String()))
		return nil, nil
	}

	lines := make([]journals.LineInput, 0, len(preview.Accounts)+1)
	for _, acc := range preview.Accounts {
		if acc.Amount.IsZero() {
			continue
		}
		lines = append(lines, sideLine(acc.AccountID, acc.Amount, "Unrealized forex revaluation"))
	}
	role := settings.RoleForexGain
	if preview.Total.IsNegative() {
		role = settings.RoleForexLoss
	}
	counter, err := s.system.ResolveAccount(ctx, role)
	if err != nil {
		return nil, err
	}
	lines = append(lines, sideLine(counter.ID, preview.Total.Neg(), counter.Name))

	description := fmt.Sprintf("Unrealized forex revaluation as of %s", date.Format(time.DateOnly))
	entry, err := s.ledger.RecordJournalEntry(ctx, journals.CreateInput{
		JournalType: journals.JournalTypeAdjustment,
		EntryDate:   date,
		Description: description,
		Reference:   "FX-" + date.Format("20060102"),
		SourceType:  SourceTypeRevaluation,
		UserID:      userID,
		Lines:       lines,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: book adjustment: %w", op, err)
	}

	_, err = s.ledger.ReverseJournalEntry(ctx, journals.ReverseInput{
		EntryID:      entry.ID,
		ReversalDate: date.AddDate(0, 0, 1),
		Description:  fmt.Sprintf("Reversal of unrealized forex revaluation as of %s", date.Format(time.DateOnly)),
		UserID:       userID,
	})
	if err != nil {
		logger.Error("forex revaluation reversal failed",
			slog.String("severity", "manual_remediation"),
			slog.Int64("entry_id", entry.ID),
			slog.String("entry_no", entry.EntryNo),
			slog.Any("error", err))
		return nil, &PartialRevaluationError{EntryID: entry.ID, EntryNo: entry.EntryNo, Err: err}
	}

	logger.Info("forex revaluation booked",
		slog.String("entry_no", entry.EntryNo),
		slog.String("total", preview.Total.String()),
		slog.Int("accounts", len(preview.Accounts)))
	return &entry, nil
}

// sideLine places a debit-positive amount on the matching side.
func sideLine(accountID int64, amount decimal.Decimal, description string) journals.LineInput {
	line := journals.LineInput{AccountID: accountID, Description: description}
	if amount.IsNegative() {
		line.Credit = amount.Neg()
	} else {
		line.Debit = amount
	}
	return line
}
