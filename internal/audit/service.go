package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxRange        = 366 * 24 * time.Hour
)

// ErrInvalidRange indicates a from/to window that is inverted or too wide.
var ErrInvalidRange = errors.New("audit: invalid time range")

// Repository reads the audit trail.
type Repository interface {
	Window(ctx context.Context, params WindowParams) ([]TimelineRow, error)
}

// Service pages through recorded ledger events.
type Service struct {
	repo Repository
}

// NewService creates the timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of events, newest first. One extra row is read
// to tell whether a further page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	const op = "audit.Timeline"
	if s.repo == nil {
		return Result{}, fmt.Errorf("%s: %w", op, shared.ErrNotConfigured)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if filters.To.Before(filters.From) {
			return Result{}, shared.Validation(op, ErrInvalidRange, "to must not be before from")
		}
		if filters.To.Sub(filters.From) > maxRange {
			return Result{}, shared.Validation(op, ErrInvalidRange, "time range must not exceed one year")
		}
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	rows, err := s.repo.Window(ctx, WindowParams{
		From:     filters.From,
		To:       filters.To,
		ActorID:  filters.ActorID,
		Entity:   strings.TrimSpace(filters.Entity),
		EntityID: strings.TrimSpace(filters.EntityID),
		Action:   strings.TrimSpace(filters.Action),
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize + 1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}
