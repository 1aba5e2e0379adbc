package forex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fxrates"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/settings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	arID   int64 = 1200
	apID   int64 = 2100
	bankID int64 = 1020
	gainID int64 = 7100
	lossID int64 = 7200
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type stubSource struct {
	receivables []OpenInvoice
	payables    []OpenInvoice
	banks       []BankAccount
}

func (s stubSource) OpenReceivables(context.Context, string) ([]OpenInvoice, error) {
	return s.receivables, nil
}

func (s stubSource) OpenPayables(context.Context, string) ([]OpenInvoice, error) {
	return s.payables, nil
}

func (s stubSource) ForeignBankAccounts(context.Context, string) ([]BankAccount, error) {
	return s.banks, nil
}

type stubRates map[string]decimal.Decimal

func (r stubRates) RequireRate(_ context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	rate, ok := r[from]
	if !ok {
		return decimal.Decimal{}, fxrates.MissingRate(from, to, date)
	}
	return rate, nil
}

type stubBalances map[int64]decimal.Decimal

func (b stubBalances) GetAccountBalance(_ context.Context, id int64, _ time.Time) (decimal.Decimal, error) {
	return b[id], nil
}

type stubSystem struct {
	missing settings.Role
}

func (s stubSystem) FunctionalCurrency(context.Context) (string, error) { return "SGD", nil }

func (s stubSystem) ResolveAccount(_ context.Context, role settings.Role) (accounts.Account, error) {
	if role == s.missing {
		return accounts.Account{}, shared.Precondition("settings.resolve", shared.ErrSystemAccountMissing)
	}
	ids := map[settings.Role]int64{
		settings.RoleAccountsReceivable: arID,
		settings.RoleAccountsPayable:    apID,
		settings.RoleForexGain:          gainID,
		settings.RoleForexLoss:          lossID,
	}
	return accounts.Account{ID: ids[role], Name: string(role), IsActive: true}, nil
}

type recordingLedger struct {
	recorded   []journals.CreateInput
	reversed   []journals.ReverseInput
	reverseErr error
}

func (l *recordingLedger) RecordJournalEntry(_ context.Context, in journals.CreateInput) (journals.JournalEntry, error) {
	l.recorded = append(l.recorded, in)
	return journals.JournalEntry{ID: int64(len(l.recorded)), EntryNo: "JE-000001", IsPosted: true, EntryDate: in.EntryDate}, nil
}

func (l *recordingLedger) ReverseJournalEntry(_ context.Context, in journals.ReverseInput) (journals.JournalEntry, error) {
	if l.reverseErr != nil {
		return journals.JournalEntry{}, l.reverseErr
	}
	l.reversed = append(l.reversed, in)
	return journals.JournalEntry{ID: 99, EntryNo: "JE-000002", IsPosted: true}, nil
}

func newTestService(source stubSource, rates stubRates, balances stubBalances) (*Service, *recordingLedger) {
	ledger := &recordingLedger{}
	svc := NewService(Dependencies{
		Source:   source,
		Rates:    rates,
		Balances: balances,
		System:   stubSystem{},
		Ledger:   ledger,
	})
	return svc, ledger
}

func lineFor(t *testing.T, lines []journals.LineInput, accountID int64) journals.LineInput {
	t.Helper()
	for _, l := range lines {
		if l.AccountID == accountID {
			return l
		}
	}
	t.Fatalf("no line for account %d", accountID)
	return journals.LineInput{}
}

func TestRevaluationReceivableGain(t *testing.T) {
	source := stubSource{receivables: []OpenInvoice{
		{ID: 1, DocumentNo: "INV-1", CurrencyCode: "USD", Outstanding: d("100"), BookedRate: d("1.30")},
	}}
	svc, ledger := newTestService(source, stubRates{"USD": d("1.35")}, nil)

	entry, err := svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 3, 31), 7)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Len(t, ledger.recorded, 1)

	in := ledger.recorded[0]
	require.Equal(t, journals.JournalTypeAdjustment, in.JournalType)
	require.Equal(t, SourceTypeRevaluation, in.SourceType)
	require.Len(t, in.Lines, 2)
	require.True(t, lineFor(t, in.Lines, arID).Debit.Equal(d("5.00")))
	require.True(t, lineFor(t, in.Lines, gainID).Credit.Equal(d("5.00")))

	require.Len(t, ledger.reversed, 1)
	require.Equal(t, entry.ID, ledger.reversed[0].EntryID)
	require.Equal(t, day(2025, 4, 1), ledger.reversed[0].ReversalDate)
}

func TestRevaluationPayableLossAndBank(t *testing.T) {
	source := stubSource{
		payables: []OpenInvoice{
			{ID: 2, DocumentNo: "PI-9", CurrencyCode: "eur", Outstanding: d("200"), BookedRate: d("1.45")},
		},
		banks: []BankAccount{
			{ID: 3, Name: "USD Operating", CurrencyCode: "USD", GLAccountID: bankID, Balance: d("1000")},
		},
	}
	rates := stubRates{"EUR": d("1.50"), "USD": d("1.32")}
	svc, ledger := newTestService(source, rates, stubBalances{bankID: d("1300")})

	preview, err := svc.Compute(context.Background(), day(2025, 6, 30))
	require.NoError(t, err)
	require.True(t, preview.Total.Equal(d("10")), preview.Total.String())
	require.Len(t, preview.Adjustments, 2)

	_, err = svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 6, 30), 7)
	require.NoError(t, err)
	lines := ledger.recorded[0].Lines
	require.Len(t, lines, 3)
	require.True(t, lineFor(t, lines, apID).Credit.Equal(d("10")))
	require.True(t, lineFor(t, lines, bankID).Debit.Equal(d("20")))
	require.True(t, lineFor(t, lines, gainID).Credit.Equal(d("10")))
}

func TestRevaluationLossUsesLossAccount(t *testing.T) {
	source := stubSource{receivables: []OpenInvoice{
		{ID: 1, DocumentNo: "INV-1", CurrencyCode: "USD", Outstanding: d("100"), BookedRate: d("1.35")},
	}}
	svc, ledger := newTestService(source, stubRates{"USD": d("1.30")}, nil)

	_, err := svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 3, 31), 7)
	require.NoError(t, err)
	lines := ledger.recorded[0].Lines
	require.True(t, lineFor(t, lines, arID).Credit.Equal(d("5")))
	require.True(t, lineFor(t, lines, lossID).Debit.Equal(d("5")))
}

func TestRevaluationMissingRateAborts(t *testing.T) {
	source := stubSource{receivables: []OpenInvoice{
		{ID: 1, CurrencyCode: "USD", Outstanding: d("100"), BookedRate: d("1.30")},
		{ID: 2, CurrencyCode: "JPY", Outstanding: d("5000"), BookedRate: d("0.009")},
	}}
	svc, ledger := newTestService(source, stubRates{"USD": d("1.35")}, nil)

	entry, err := svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 3, 31), 7)
	require.Nil(t, entry)
	require.Equal(t, shared.KindPrecondition, shared.KindOf(err))
	require.True(t, errors.Is(err, shared.ErrMissingRate))
	require.Empty(t, ledger.recorded)
}

func TestRevaluationNegligibleBooksNothing(t *testing.T) {
	source := stubSource{receivables: []OpenInvoice{
		{ID: 1, CurrencyCode: "USD", Outstanding: d("100"), BookedRate: d("1.3500")},
	}}
	svc, ledger := newTestService(source, stubRates{"USD": d("1.35004")}, nil)

	entry, err := svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 3, 31), 7)
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Empty(t, ledger.recorded)
}

func TestRevaluationMissingGainAccountAborts(t *testing.T) {
	source := stubSource{receivables: []OpenInvoice{
		{ID: 1, CurrencyCode: "USD", Outstanding: d("100"), BookedRate: d("1.30")},
	}}
	ledger := &recordingLedger{}
	svc := NewService(Dependencies{
		Source: source,
		Rates:  stubRates{"USD": d("1.35")},
		System: stubSystem{missing: settings.RoleForexGain},
		Ledger: ledger,
	})

	_, err := svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 3, 31), 7)
	require.True(t, errors.Is(err, shared.ErrSystemAccountMissing))
	require.Empty(t, ledger.recorded)
}

func TestRevaluationReversalFailureIsPartial(t *testing.T) {
	source := stubSource{receivables: []OpenInvoice{
		{ID: 1, CurrencyCode: "USD", Outstanding: d("100"), BookedRate: d("1.30")},
	}}
	svc, ledger := newTestService(source, stubRates{"USD": d("1.35")}, nil)
	boom := errors.New("no open fiscal period")
	ledger.reverseErr = boom

	entry, err := svc.CreateUnrealizedGainLossEntry(context.Background(), day(2025, 12, 31), 7)
	require.Nil(t, entry)
	require.True(t, errors.Is(err, ErrPartialRevaluation))
	require.True(t, errors.Is(err, boom))
	var partial *PartialRevaluationError
	require.True(t, errors.As(err, &partial))
	require.Equal(t, int64(1), partial.EntryID)
}

func TestRevaluationRunsAreSerialisedPerDate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := internalShared.NewLocker(client)
	date := day(2025, 3, 31)

	release, err := locker.Acquire(context.Background(), internalShared.RevaluationLockKey(date), time.Minute)
	require.NoError(t, err)
	defer release()

	svc := NewService(Dependencies{
		Source: stubSource{},
		Rates:  stubRates{},
		System: stubSystem{},
		Ledger: &recordingLedger{},
		Locker: locker,
	})
	_, err = svc.CreateUnrealizedGainLossEntry(context.Background(), date, 7)
	require.True(t, errors.Is(err, internalShared.ErrLockHeld))
}
