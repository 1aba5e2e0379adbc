package periods

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	years      map[int64]FiscalYear
	periods    map[int64]FiscalPeriod
	nextID     int64
	failInsert bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{years: map[int64]FiscalYear{}, periods: map[int64]FiscalPeriod{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	years := make(map[int64]FiscalYear, len(m.years))
	for k, v := range m.years {
		years[k] = v
	}
	periods := make(map[int64]FiscalPeriod, len(m.periods))
	for k, v := range m.periods {
		periods[k] = v
	}
	next := m.nextID
	if err := fn(ctx, m); err != nil {
		m.years, m.periods, m.nextID = years, periods, next
		return err
	}
	return nil
}

func (m *memoryRepo) FindOpenPeriodForDate(_ context.Context, date time.Time) (*FiscalPeriod, error) {
	for _, p := range m.sortedPeriods() {
		if p.IsOpen() && p.Contains(date) {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) GetPeriod(_ context.Context, id int64) (FiscalPeriod, error) {
	p, ok := m.periods[id]
	if !ok {
		return FiscalPeriod{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetFiscalYear(_ context.Context, id int64) (FiscalYear, error) {
	y, ok := m.years[id]
	if !ok {
		return FiscalYear{}, shared.ErrFiscalYearNotFound
	}
	return y, nil
}

func (m *memoryRepo) ListFiscalYears(context.Context) ([]FiscalYear, error) {
	out := make([]FiscalYear, 0, len(m.years))
	for _, y := range m.years {
		out = append(out, y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memoryRepo) ListPeriods(ctx context.Context, yearID int64) ([]FiscalPeriod, error) {
	return m.ListPeriodsByYear(ctx, yearID)
}

func (m *memoryRepo) FiscalYearNameExists(_ context.Context, name string) (bool, error) {
	for _, y := range m.years {
		if y.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) OverlappingFiscalYear(_ context.Context, start, end time.Time) (*FiscalYear, error) {
	for _, y := range m.years {
		if !y.StartDate.After(end) && !y.EndDate.Before(start) {
			y := y
			return &y, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) InsertFiscalYear(_ context.Context, year FiscalYear) (FiscalYear, error) {
	m.nextID++
	year.ID = m.nextID
	m.years[year.ID] = year
	return year, nil
}

func (m *memoryRepo) InsertPeriods(_ context.Context, yearID int64, periods []FiscalPeriod) ([]FiscalPeriod, error) {
	if m.failInsert {
		return nil, errors.New("insert periods failed")
	}
	out := make([]FiscalPeriod, 0, len(periods))
	for _, p := range periods {
		m.nextID++
		p.ID = m.nextID
		p.FiscalYearID = yearID
		m.periods[p.ID] = p
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) GetFiscalYearForUpdate(ctx context.Context, id int64) (FiscalYear, error) {
	return m.GetFiscalYear(ctx, id)
}

func (m *memoryRepo) GetPeriodForUpdate(ctx context.Context, id int64) (FiscalPeriod, error) {
	return m.GetPeriod(ctx, id)
}

func (m *memoryRepo) ListPeriodsByYear(_ context.Context, yearID int64) ([]FiscalPeriod, error) {
	var out []FiscalPeriod
	for _, p := range m.sortedPeriods() {
		if p.FiscalYearID == yearID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdatePeriodStatus(_ context.Context, id int64, status PeriodStatus, userID int64, at time.Time) error {
	p := m.periods[id]
	p.Status = status
	p.UpdatedBy = &userID
	p.UpdatedAt = at
	m.periods[id] = p
	return nil
}

func (m *memoryRepo) CloseFiscalYear(_ context.Context, id int64, userID int64, at time.Time) error {
	y := m.years[id]
	y.IsClosed = true
	y.ClosedDate = &at
	y.ClosedByUserID = &userID
	m.years[id] = y
	return nil
}

func (m *memoryRepo) sortedPeriods() []FiscalPeriod {
	out := make([]FiscalPeriod, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
