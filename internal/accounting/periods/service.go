package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records fiscal calendar events.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service owns fiscal year and period lifecycle.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the fiscal period manager. audit may be nil.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFiscalYearAndPeriods creates a fiscal year and, when a period type is
// given, all of its periods in the same transaction.
func (s *Service) CreateFiscalYearAndPeriods(ctx context.Context, in CreateFiscalYearInput) (FiscalYear, error) {
	const op = "periods.create_fiscal_year"
	name := strings.TrimSpace(in.Name)
	start, end := shared.DateOnly(in.StartDate), shared.DateOnly(in.EndDate)
	var (
		cause    error
		messages []string
	)
	if !start.Before(end) {
		cause = shared.ErrInvalidDateRange
		messages = append(messages, cause.Error())
	}
	if in.PeriodType != "" && !in.PeriodType.Valid() {
		if cause == nil {
			cause = shared.ErrInvalidPeriodType
		}
		messages = append(messages, shared.ErrInvalidPeriodType.Error())
	}
	if name == "" {
		if cause == nil {
			cause = errors.New("accounting: fiscal year name is required")
		}
		messages = append(messages, "fiscal year name is required")
	}
	if cause != nil {
		return FiscalYear{}, shared.Validation(op, cause, messages...)
	}

	var year FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.FiscalYearNameExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return shared.Validation(op, shared.ErrDuplicateFiscalYear, fmt.Sprintf("fiscal year %q already exists", name))
		}
		overlap, err := tx.OverlappingFiscalYear(ctx, start, end)
		if err != nil {
			return err
		}
		if overlap != nil {
			return shared.Validation(op, shared.ErrFiscalYearOverlap,
				fmt.Sprintf("dates overlap fiscal year %q (%s to %s)", overlap.Name,
					overlap.StartDate.Format(time.DateOnly), overlap.EndDate.Format(time.DateOnly)))
		}
		year, err = tx.InsertFiscalYear(ctx, FiscalYear{Name: name, StartDate: start, EndDate: end, CreatedByUserID: in.UserID})
		if err != nil {
			if errors.Is(err, shared.ErrDuplicateFiscalYear) {
				return shared.Validation(op, err)
			}
			return err
		}
		if in.PeriodType == "" {
			return nil
		}
		generated, err := GeneratePeriods(name, start, end, in.PeriodType)
		if err != nil {
			return shared.Validation(op, err)
		}
		year.Periods, err = tx.InsertPeriods(ctx, year.ID, generated)
		return err
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.record(ctx, in.UserID, "fiscal_year.create", "fiscal_year", year.ID, map[string]any{
		"name":        year.Name,
		"period_type": string(in.PeriodType),
		"periods":     len(year.Periods),
	})
	return year, nil
}

// GeneratePeriods adds periods of periodType to a year created without them.
func (s *Service) GeneratePeriods(ctx context.Context, yearID int64, periodType PeriodType, userID int64) ([]FiscalPeriod, error) {
	const op = "periods.generate"
	if !periodType.Valid() {
		return nil, shared.Validation(op, shared.ErrInvalidPeriodType)
	}
	var created []FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year, err := tx.GetFiscalYearForUpdate(ctx, yearID)
		if err != nil {
			return notFound(op, err)
		}
		if year.IsClosed {
			return shared.State(op, shared.ErrFiscalYearClosed)
		}
		existing, err := tx.ListPeriodsByYear(ctx, yearID)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.PeriodType == periodType {
				return shared.Validation(op, shared.ErrPeriodsExist,
					fmt.Sprintf("fiscal year %q already has %s periods", year.Name, periodType))
			}
		}
		generated, err := GeneratePeriods(year.Name, year.StartDate, year.EndDate, periodType)
		if err != nil {
			return shared.Validation(op, err)
		}
		created, err = tx.InsertPeriods(ctx, yearID, generated)
		if errors.Is(err, shared.ErrPeriodsExist) {
			return shared.Validation(op, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, "fiscal_year.generate_periods", "fiscal_year", yearID, map[string]any{
		"period_type": string(periodType),
		"periods":     len(created),
	})
	return created, nil
}

// ClosePeriod moves an open period to Closed.
func (s *Service) ClosePeriod(ctx context.Context, periodID, userID int64) (FiscalPeriod, error) {
	return s.transition(ctx, "periods.close", periodID, userID, func(_ context.Context, _ TxRepository, p FiscalPeriod) (PeriodStatus, error) {
		switch p.Status {
		case PeriodStatusClosed:
			return "", shared.ErrPeriodAlreadyClosed
		case PeriodStatusArchived:
			return "", shared.ErrPeriodArchived
		}
		return PeriodStatusClosed, nil
	})
}

// ReopenPeriod moves a closed period back to Open unless its year is closed.
func (s *Service) ReopenPeriod(ctx context.Context, periodID, userID int64) (FiscalPeriod, error) {
	return s.transition(ctx, "periods.reopen", periodID, userID, func(ctx context.Context, tx TxRepository, p FiscalPeriod) (PeriodStatus, error) {
		switch p.Status {
		case PeriodStatusOpen:
			return "", shared.ErrPeriodAlreadyOpen
		case PeriodStatusArchived:
			return "", shared.ErrPeriodArchived
		}
		year, err := tx.GetFiscalYearForUpdate(ctx, p.FiscalYearID)
		if err != nil {
			return "", err
		}
		if year.IsClosed {
			return "", shared.ErrFiscalYearClosed
		}
		return PeriodStatusOpen, nil
	})
}

// ArchivePeriod moves a closed period to the terminal Archived state.
func (s *Service) ArchivePeriod(ctx context.Context, periodID, userID int64) (FiscalPeriod, error) {
	return s.transition(ctx, "periods.archive", periodID, userID, func(_ context.Context, _ TxRepository, p FiscalPeriod) (PeriodStatus, error) {
		switch p.Status {
		case PeriodStatusArchived:
			return "", shared.ErrPeriodArchived
		case PeriodStatusOpen:
			return "", shared.ErrPeriodNotOpen
		}
		return PeriodStatusArchived, nil
	})
}

type transitionFunc func(ctx context.Context, tx TxRepository, p FiscalPeriod) (PeriodStatus, error)

func (s *Service) transition(ctx context.Context, op string, periodID, userID int64, next transitionFunc) (FiscalPeriod, error) {
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return notFound(op, err)
		}
		status, err := next(ctx, tx, p)
		if err != nil {
			if errors.Is(err, shared.ErrFiscalYearNotFound) {
				return notFound(op, err)
			}
			if isStateErr(err) {
				return shared.State(op, err, fmt.Sprintf("%s: %s", p.Name, err.Error()))
			}
			return err
		}
		now := s.now()
		if err := tx.UpdatePeriodStatus(ctx, p.ID, status, userID, now); err != nil {
			return err
		}
		p.Status = status
		p.UpdatedBy = &userID
		p.UpdatedAt = now
		period = p
		return nil
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	s.record(ctx, userID, strings.Replace(op, "periods.", "fiscal_period.", 1), "fiscal_period", period.ID, map[string]any{
		"name":   period.Name,
		"status": string(period.Status),
	})
	return period, nil
}

// CloseFiscalYear closes a year whose periods are all closed or archived.
func (s *Service) CloseFiscalYear(ctx context.Context, yearID, userID int64) (FiscalYear, error) {
	const op = "periods.close_fiscal_year"
	var year FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		y, err := tx.GetFiscalYearForUpdate(ctx, yearID)
		if err != nil {
			return notFound(op, err)
		}
		if y.IsClosed {
			return shared.State(op, shared.ErrFiscalYearClosed, fmt.Sprintf("fiscal year %q is already closed", y.Name))
		}
		periods, err := tx.ListPeriodsByYear(ctx, yearID)
		if err != nil {
			return err
		}
		var open []string
		for _, p := range periods {
			if p.Status == PeriodStatusOpen {
				open = append(open, p.Name)
			}
		}
		if len(open) > 0 {
			return shared.State(op, shared.ErrOpenPeriodsRemain,
				fmt.Sprintf("fiscal year %q has open periods: %s", y.Name, strings.Join(open, ", ")))
		}
		now := s.now()
		if err := tx.CloseFiscalYear(ctx, yearID, userID, now); err != nil {
			return err
		}
		y.IsClosed = true
		y.ClosedDate = &now
		y.ClosedByUserID = &userID
		y.Periods = periods
		year = y
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.record(ctx, userID, "fiscal_year.close", "fiscal_year", year.ID, map[string]any{"name": year.Name})
	s.logger.Info("fiscal year closed; year-end closing entries pending",
		slog.Int64("fiscal_year_id", year.ID), slog.String("name", year.Name))
	return year, nil
}

// GetCurrentPeriod returns the open period containing date, or nil when none
// is open. A zero date means today.
func (s *Service) GetCurrentPeriod(ctx context.Context, date time.Time) (*FiscalPeriod, error) {
	if date.IsZero() {
		date = s.now()
	}
	return s.repo.FindOpenPeriodForDate(ctx, shared.DateOnly(date))
}

// GetPeriod returns one period.
func (s *Service) GetPeriod(ctx context.Context, id int64) (FiscalPeriod, error) {
	p, err := s.repo.GetPeriod(ctx, id)
	if err != nil {
		return FiscalPeriod{}, notFound("periods.get", err)
	}
	return p, nil
}

// GetFiscalYear returns one year with its periods.
func (s *Service) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	y, err := s.repo.GetFiscalYear(ctx, id)
	if err != nil {
		return FiscalYear{}, notFound("periods.get_fiscal_year", err)
	}
	y.Periods, err = s.repo.ListPeriods(ctx, id)
	if err != nil {
		return FiscalYear{}, err
	}
	return y, nil
}

// ListPeriods returns the periods of a year in date order.
func (s *Service) ListPeriods(ctx context.Context, yearID int64) ([]FiscalPeriod, error) {
	if _, err := s.repo.GetFiscalYear(ctx, yearID); err != nil {
		return nil, notFound("periods.list", err)
	}
	return s.repo.ListPeriods(ctx, yearID)
}

// ListFiscalYears returns all fiscal years ordered by start date.
func (s *Service) ListFiscalYears(ctx context.Context) ([]FiscalYear, error) {
	return s.repo.ListFiscalYears(ctx)
}

func (s *Service) record(ctx context.Context, actor int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func notFound(op string, err error) error {
	if errors.Is(err, shared.ErrPeriodNotFound) || errors.Is(err, shared.ErrFiscalYearNotFound) {
		return shared.NotFound(op, err)
	}
	return err
}

func isStateErr(err error) bool {
	for _, target := range []error{
		shared.ErrPeriodAlreadyClosed, shared.ErrPeriodAlreadyOpen, shared.ErrPeriodArchived,
		shared.ErrFiscalYearClosed, shared.ErrPeriodNotOpen,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
