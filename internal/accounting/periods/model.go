package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen     PeriodStatus = "Open"
	PeriodStatusClosed   PeriodStatus = "Closed"
	PeriodStatusArchived PeriodStatus = "Archived"
)

// PeriodType is the granularity of generated periods.
type PeriodType string

const (
	PeriodTypeMonth   PeriodType = "Month"
	PeriodTypeQuarter PeriodType = "Quarter"
)

// Valid reports whether t is a supported period type.
func (t PeriodType) Valid() bool {
	return t == PeriodTypeMonth || t == PeriodTypeQuarter
}

func (t PeriodType) months() int {
	if t == PeriodTypeQuarter {
		return 3
	}
	return 1
}

// FiscalYear is the outer accounting window.
type FiscalYear struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	StartDate       time.Time      `json:"start_date"`
	EndDate         time.Time      `json:"end_date"`
	IsClosed        bool           `json:"is_closed"`
	ClosedDate      *time.Time     `json:"closed_date,omitempty"`
	ClosedByUserID  *int64         `json:"closed_by_user_id,omitempty"`
	CreatedByUserID int64          `json:"created_by_user_id"`
	CreatedAt       time.Time      `json:"created_at"`
	Periods         []FiscalPeriod `json:"periods,omitempty"`
}

// FiscalPeriod is a month or quarter of a fiscal year gating entry dates.
type FiscalPeriod struct {
	ID           int64        `json:"id"`
	FiscalYearID int64        `json:"fiscal_year_id"`
	Name         string       `json:"name"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      time.Time    `json:"end_date"`
	PeriodType   PeriodType   `json:"period_type"`
	PeriodNumber int          `json:"period_number"`
	Status       PeriodStatus `json:"status"`
	UpdatedBy    *int64       `json:"updated_by,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Contains reports whether date falls inside the period (inclusive).
func (p FiscalPeriod) Contains(date time.Time) bool {
	d := shared.DateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// IsOpen reports whether the period accepts entries.
func (p FiscalPeriod) IsOpen() bool { return p.Status == PeriodStatusOpen }

// CreateFiscalYearInput carries fiscal year creation parameters. PeriodType is
// optional; when set the periods are generated with the year.
type CreateFiscalYearInput struct {
	Name       string
	StartDate  time.Time
	EndDate    time.Time
	PeriodType PeriodType
	UserID     int64
}

// GeneratePeriods carves [start, end] into consecutive month or quarter
// periods anchored on start. The final period is truncated to end.
func GeneratePeriods(yearName string, start, end time.Time, periodType PeriodType) ([]FiscalPeriod, error) {
	if !periodType.Valid() {
		return nil, shared.ErrInvalidPeriodType
	}
	start, end = shared.DateOnly(start), shared.DateOnly(end)
	if !start.Before(end) {
		return nil, shared.ErrInvalidDateRange
	}
	step := periodType.months()
	var out []FiscalPeriod
	for n := 1; ; n++ {
		periodStart := shared.AddMonthsClamped(start, (n-1)*step)
		if periodStart.After(end) {
			break
		}
		periodEnd := shared.AddMonthsClamped(start, n*step).AddDate(0, 0, -1)
		if periodEnd.After(end) {
			periodEnd = end
		}
		out = append(out, FiscalPeriod{
			Name:         periodName(yearName, periodType, n, periodStart),
			StartDate:    periodStart,
			EndDate:      periodEnd,
			PeriodType:   periodType,
			PeriodNumber: n,
			Status:       PeriodStatusOpen,
		})
		if !periodEnd.Before(end) {
			break
		}
	}
	return out, nil
}

func periodName(yearName string, periodType PeriodType, n int, start time.Time) string {
	if periodType == PeriodTypeQuarter {
		return fmt.Sprintf("Q%d %s", n, yearName)
	}
	return start.Format("January 2006")
}
