package journals

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	periods  map[int64]periods.FiscalPeriod
	entries  map[int64]JournalEntry
	patterns map[int64]RecurringPattern
	nextID   int64
	dueErr   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		periods:  map[int64]periods.FiscalPeriod{},
		entries:  map[int64]JournalEntry{},
		patterns: map[int64]RecurringPattern{},
	}
}

func (m *memoryRepo) addPeriod(id int64, start, end time.Time, status periods.PeriodStatus) {
	m.periods[id] = periods.FiscalPeriod{
		ID:         id,
		Name:       start.Format("January 2006"),
		StartDate:  start,
		EndDate:    end,
		PeriodType: periods.PeriodTypeMonth,
		Status:     status,
	}
}

func (m *memoryRepo) setStatus(id int64, status periods.PeriodStatus) {
	p := m.periods[id]
	p.Status = status
	m.periods[id] = p
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entries := make(map[int64]JournalEntry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = v
	}
	patterns := make(map[int64]RecurringPattern, len(m.patterns))
	for k, v := range m.patterns {
		patterns[k] = v
	}
	next := m.nextID
	if err := fn(ctx, m); err != nil {
		m.entries, m.patterns, m.nextID = entries, patterns, next
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (JournalEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range m.sortedEntries() {
		if filter.Posted != nil && e.IsPosted != *filter.Posted {
			continue
		}
		if filter.SourceType != "" && e.SourceType != filter.SourceType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memoryRepo) DuePatterns(_ context.Context, asOf time.Time) ([]RecurringPattern, error) {
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var out []RecurringPattern
	for _, p := range m.sortedPatterns() {
		if p.IsActive && !p.NextGenerationDate.After(asOf) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListPatterns(context.Context) ([]RecurringPattern, error) {
	return m.sortedPatterns(), nil
}

func (m *memoryRepo) FindOpenPeriodForDate(_ context.Context, date time.Time) (*periods.FiscalPeriod, error) {
	ids := make([]int64, 0, len(m.periods))
	for id := range m.periods {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := m.periods[id]
		if p.IsOpen() && p.Contains(date) {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) GetPeriodForUpdate(_ context.Context, id int64) (periods.FiscalPeriod, error) {
	p, ok := m.periods[id]
	if !ok {
		return periods.FiscalPeriod{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryRepo) InsertEntry(_ context.Context, entry JournalEntry) (JournalEntry, error) {
	m.nextID++
	entry.ID = m.nextID
	lines := make([]JournalLine, len(entry.Lines))
	for i, l := range entry.Lines {
		m.nextID++
		l.ID = m.nextID
		l.EntryID = entry.ID
		lines[i] = l
	}
	entry.Lines = lines
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *memoryRepo) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) MarkPosted(_ context.Context, id, userID int64, at time.Time) error {
	e := m.entries[id]
	if e.IsPosted {
		return shared.ErrAlreadyPosted
	}
	e.IsPosted = true
	e.PostedAt = &at
	e.UpdatedByUserID = &userID
	m.entries[id] = e
	return nil
}

func (m *memoryRepo) MarkReversed(_ context.Context, id, reversingID, userID int64, at time.Time) error {
	e := m.entries[id]
	if e.IsReversed {
		return shared.ErrAlreadyReversed
	}
	e.IsReversed = true
	e.ReversingEntryID = &reversingID
	e.UpdatedByUserID = &userID
	e.UpdatedAt = at
	m.entries[id] = e
	return nil
}

func (m *memoryRepo) DeleteEntry(_ context.Context, id int64) error {
	if m.entries[id].IsPosted {
		return shared.ErrPostedImmutable
	}
	for pid, p := range m.patterns {
		if p.TemplateEntryID == id {
			return errors.New("recurring_patterns_template_entry_id_fkey")
		}
		if p.LastGeneratedEntryID != nil && *p.LastGeneratedEntryID == id {
			p.LastGeneratedEntryID = nil
			m.patterns[pid] = p
		}
	}
	delete(m.entries, id)
	return nil
}

func (m *memoryRepo) PatternsUsingTemplate(_ context.Context, entryID int64) ([]int64, error) {
	var ids []int64
	for _, p := range m.sortedPatterns() {
		if p.TemplateEntryID == entryID {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (m *memoryRepo) InsertPattern(_ context.Context, p RecurringPattern) (RecurringPattern, error) {
	m.nextID++
	p.ID = m.nextID
	m.patterns[p.ID] = p
	return p, nil
}

func (m *memoryRepo) GetPatternForUpdate(_ context.Context, id int64) (RecurringPattern, error) {
	p, ok := m.patterns[id]
	if !ok {
		return RecurringPattern{}, shared.ErrRecurringPatternNotFound
	}
	return p, nil
}

func (m *memoryRepo) UpdatePattern(_ context.Context, p RecurringPattern) error {
	m.patterns[p.ID] = p
	return nil
}

func (m *memoryRepo) sortedEntries() []JournalEntry {
	out := make([]JournalEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryRepo) sortedPatterns() []RecurringPattern {
	out := make([]RecurringPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
