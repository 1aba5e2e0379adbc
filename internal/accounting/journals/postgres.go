package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed journal repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx      pgx.Tx
	periods periods.TxRepository
}

// NewTxRepository binds journal operations to a transaction the caller owns,
// letting another module's writes share the ledger's unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx, periods: periods.NewTxRepository(tx)}
}

const entryColumns = `id, entry_no, journal_type, entry_date, description, reference, is_posted, is_reversed,
reversing_entry_id, fiscal_period_id, source_type, source_id, created_by_user_id, updated_by_user_id, posted_at,
created_at, updated_at`

const lineColumns = `id, journal_entry_id, line_number, account_id, debit_amount, credit_amount, description, tax_code,
tax_amount, currency_code, exchange_rate, dimension1_id, dimension2_id`

const patternColumns = `id, name, template_entry_id, frequency, start_date, next_generation_date, end_date, is_active,
last_generated_entry_id, created_by_user_id, updated_at`

// WithTx executes fn within repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("journals repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.PeriodID != nil {
		add("fiscal_period_id=$%d", *filter.PeriodID)
	}
	if filter.Posted != nil {
		add("is_posted=$%d", *filter.Posted)
	}
	if filter.SourceType != "" {
		add("source_type=$%d", filter.SourceType)
	}
	if filter.From != nil {
		add("entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("entry_date <= $%d", *filter.To)
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY entry_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) DuePatterns(ctx context.Context, asOf time.Time) ([]RecurringPattern, error) {
	return queryPatterns(ctx, r.pool, `SELECT `+patternColumns+` FROM recurring_patterns
WHERE is_active AND next_generation_date <= $1 ORDER BY next_generation_date, id`, asOf)
}

func (r *repository) ListPatterns(ctx context.Context) ([]RecurringPattern, error) {
	return queryPatterns(ctx, r.pool, `SELECT `+patternColumns+` FROM recurring_patterns ORDER BY id`)
}

func (t *txRepository) FindOpenPeriodForDate(ctx context.Context, date time.Time) (*periods.FiscalPeriod, error) {
	return periods.FindOpenPeriod(ctx, t.tx, date)
}

func (t *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.FiscalPeriod, error) {
	return t.periods.GetPeriodForUpdate(ctx, periodID)
}

func (t *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_no, journal_type, entry_date, description, reference,
is_posted, is_reversed, fiscal_period_id, source_type, source_id, created_by_user_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,false,false,$6,NULLIF($7,''),$8,$9,$10,$10) RETURNING id`,
		entry.EntryNo, entry.JournalType, entry.EntryDate, entry.Description, entry.Reference, entry.FiscalPeriodID,
		entry.SourceType, entry.SourceID, entry.CreatedByUserID, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		err := t.tx.QueryRow(ctx, `INSERT INTO journal_entry_lines (journal_entry_id, line_number, account_id, debit_amount,
credit_amount, description, tax_code, tax_amount, currency_code, exchange_rate, dimension1_id, dimension2_id)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''),$10,$11,$12) RETURNING id`,
			entry.ID, line.LineNumber, line.AccountID, line.Debit, line.Credit, line.Description, line.TaxCode,
			line.TaxAmount, line.CurrencyCode, line.ExchangeRate, line.Dimension1ID, line.Dimension2ID).Scan(&line.ID)
		if err != nil {
			return JournalEntry{}, err
		}
	}
	return entry, nil
}

func (t *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, t.tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (t *txRepository) MarkPosted(ctx context.Context, id, userID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE journal_entries SET is_posted=true, posted_at=$2, updated_by_user_id=$3, updated_at=$2
WHERE id=$1 AND NOT is_posted`, id, at, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyPosted
	}
	return nil
}

func (t *txRepository) MarkReversed(ctx context.Context, id, reversingID, userID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE journal_entries SET is_reversed=true, reversing_entry_id=$2, updated_by_user_id=$3, updated_at=$4
WHERE id=$1 AND NOT is_reversed`, id, reversingID, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyReversed
	}
	return nil
}

func (t *txRepository) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM journal_entry_lines WHERE journal_entry_id=$1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND NOT is_posted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPostedImmutable
	}
	return nil
}

func (t *txRepository) InsertPattern(ctx context.Context, p RecurringPattern) (RecurringPattern, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO recurring_patterns (name, template_entry_id, frequency, start_date,
next_generation_date, end_date, is_active, created_by_user_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		p.Name, p.TemplateEntryID, p.Frequency, p.StartDate, p.NextGenerationDate, p.EndDate, p.IsActive,
		p.CreatedByUserID, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return RecurringPattern{}, err
	}
	return p, nil
}

func (t *txRepository) PatternsUsingTemplate(ctx context.Context, entryID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM recurring_patterns WHERE template_entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepository) GetPatternForUpdate(ctx context.Context, id int64) (RecurringPattern, error) {
	p, err := scanPattern(t.tx.QueryRow(ctx, `SELECT `+patternColumns+` FROM recurring_patterns WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecurringPattern{}, shared.ErrRecurringPatternNotFound
		}
		return RecurringPattern{}, err
	}
	return p, nil
}

func (t *txRepository) UpdatePattern(ctx context.Context, p RecurringPattern) error {
	_, err := t.tx.Exec(ctx, `UPDATE recurring_patterns SET next_generation_date=$2, is_active=$3,
last_generated_entry_id=$4, updated_at=$5 WHERE id=$1`, p.ID, p.NextGenerationDate, p.IsActive, p.LastGeneratedEntryID, p.UpdatedAt)
	return err
}

func loadLines(ctx context.Context, q periods.Querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM journal_entry_lines WHERE journal_entry_id=$1 ORDER BY line_number`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var (
			l                    JournalLine
			description, taxCode *string
			currency             *string
		)
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID, &l.Debit, &l.Credit, &description, &taxCode,
			&l.TaxAmount, &currency, &l.ExchangeRate, &l.Dimension1ID, &l.Dimension2ID); err != nil {
			return nil, err
		}
		l.Description = deref(description)
		l.TaxCode = deref(taxCode)
		l.CurrencyCode = deref(currency)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func queryPatterns(ctx context.Context, q periods.Querier, query string, args ...any) ([]RecurringPattern, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e                JournalEntry
		description, ref *string
		sourceType       *string
	)
	err := row.Scan(&e.ID, &e.EntryNo, &e.JournalType, &e.EntryDate, &description, &ref, &e.IsPosted, &e.IsReversed,
		&e.ReversingEntryID, &e.FiscalPeriodID, &sourceType, &e.SourceID, &e.CreatedByUserID, &e.UpdatedByUserID,
		&e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	e.Description = deref(description)
	e.Reference = deref(ref)
	e.SourceType = deref(sourceType)
	return e, err
}

func scanPattern(row pgx.Row) (RecurringPattern, error) {
	var p RecurringPattern
	err := row.Scan(&p.ID, &p.Name, &p.TemplateEntryID, &p.Frequency, &p.StartDate, &p.NextGenerationDate, &p.EndDate,
		&p.IsActive, &p.LastGeneratedEntryID, &p.CreatedByUserID, &p.UpdatedAt)
	return p, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
