package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Valid reports whether f is a supported cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Advance returns the occurrence after current. Month based cadences keep
// the anchor day, clamped to short months.
func (f Frequency) Advance(current time.Time, anchorDay int) time.Time {
	switch f {
	case FrequencyDaily:
		return current.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7)
	}
	months := 1
	switch f {
	case FrequencyQuarterly:
		months = 3
	case FrequencyYearly:
		months = 12
	}
	y, m, _ := current.Date()
	anchored := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	next := shared.AddMonthsClamped(anchored, months)
	last := next.AddDate(0, 1, -1).Day()
	if anchorDay > last {
		anchorDay = last
	}
	return time.Date(next.Year(), next.Month(), anchorDay, 0, 0, 0, 0, time.UTC)
}

// ExpansionResult reports what a recurring run produced.
type ExpansionResult struct {
	AsOf        time.Time        `json:"as_of"`
	Created     []JournalEntry   `json:"created"`
	Deactivated []int64          `json:"deactivated"`
	Failed      map[int64]string `json:"failed,omitempty"`
}

// CreateRecurringPattern registers a template entry for scheduled copying.
func (s *Service) CreateRecurringPattern(ctx context.Context, in CreatePatternInput) (RecurringPattern, error) {
	const op = "journals.create_pattern"
	var messages []string
	if !in.Frequency.Valid() {
		messages = append(messages, fmt.Sprintf("unsupported frequency %q", in.Frequency))
	}
	if in.StartDate.IsZero() {
		messages = append(messages, "start date is required")
	}
	if in.EndDate != nil && !in.StartDate.IsZero() && in.EndDate.Before(in.StartDate) {
		messages = append(messages, "end date must not precede start date")
	}
	if len(messages) > 0 {
		return RecurringPattern{}, shared.Validation(op, errors.New("accounting: invalid recurring pattern"), messages...)
	}
	var pattern RecurringPattern
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		template, err := tx.GetEntryForUpdate(ctx, in.TemplateEntryID)
		if err != nil {
			return notFound(op, err)
		}
		if len(template.Lines) == 0 {
			return shared.Validation(op, shared.ErrEmptyLines, "template entry has no lines")
		}
		start := shared.DateOnly(in.StartDate)
		var end *time.Time
		if in.EndDate != nil {
			e := shared.DateOnly(*in.EndDate)
			end = &e
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = template.Description
		}
		pattern, err = tx.InsertPattern(ctx, RecurringPattern{
			Name:               name,
			TemplateEntryID:    template.ID,
			Frequency:          in.Frequency,
			StartDate:          start,
			NextGenerationDate: start,
			EndDate:            end,
			IsActive:           true,
			CreatedByUserID:    in.UserID,
			UpdatedAt:          s.now(),
		})
		return err
	})
	if err != nil {
		return RecurringPattern{}, err
	}
	return pattern, nil
}

// ListRecurringPatterns returns every pattern.
func (s *Service) ListRecurringPatterns(ctx context.Context) ([]RecurringPattern, error) {
	return s.repo.ListPatterns(ctx)
}

// ExpandRecurring creates a draft for every due occurrence up to asOf.
// Each occurrence commits with its pattern advance; a failing pattern stops
// at its first failure while the others continue. Entries are never posted.
func (s *Service) ExpandRecurring(ctx context.Context, asOf time.Time, userID int64) (ExpansionResult, error) {
	asOf = shared.DateOnly(asOf)
	result := ExpansionResult{AsOf: asOf, Failed: map[int64]string{}}
	due, err := s.repo.DuePatterns(ctx, asOf)
	if err != nil {
		return result, fmt.Errorf("journals: load due patterns: %w", err)
	}
	var errs []error
	for _, p := range due {
		for {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			step, err := s.expandOnce(ctx, p.ID, asOf, userID)
			if err != nil {
				s.logger.Warn("recurring expansion failed",
					slog.Int64("pattern_id", p.ID), slog.Any("error", err))
				result.Failed[p.ID] = err.Error()
				errs = append(errs, fmt.Errorf("recurring pattern %d: %w", p.ID, err))
				break
			}
			if step.created != nil {
				result.Created = append(result.Created, *step.created)
			}
			if step.deactivated {
				result.Deactivated = append(result.Deactivated, p.ID)
			}
			if step.done {
				break
			}
		}
	}
	if len(result.Created) > 0 {
		s.logger.Info("recurring entries generated",
			slog.Int("created", len(result.Created)), slog.Time("as_of", asOf))
	}
	return result, errors.Join(errs...)
}

type expansionStep struct {
	created     *JournalEntry
	deactivated bool
	done        bool
}

func (s *Service) expandOnce(ctx context.Context, patternID int64, asOf time.Time, userID int64) (expansionStep, error) {
	var step expansionStep
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPatternForUpdate(ctx, patternID)
		if err != nil {
			return err
		}
		if !p.IsActive || p.NextGenerationDate.After(asOf) {
			step.done = true
			return nil
		}
		if p.EndDate != nil && p.NextGenerationDate.After(*p.EndDate) {
			p.IsActive = false
			p.UpdatedAt = s.now()
			step.deactivated, step.done = true, true
			return tx.UpdatePattern(ctx, p)
		}
		template, err := tx.GetEntryForUpdate(ctx, p.TemplateEntryID)
		if err != nil {
			return err
		}
		sourceID := p.ID
		entry, err := s.CreateJournalEntryTx(ctx, tx, CreateInput{
			JournalType: template.JournalType,
			EntryDate:   p.NextGenerationDate,
			Description: template.Description,
			Reference:   template.Reference,
			SourceType:  SourceTypeRecurringPattern,
			SourceID:    &sourceID,
			UserID:      userID,
			Lines:       linesToInput(template.Lines),
		})
		if err != nil {
			return err
		}
		p.NextGenerationDate = p.Frequency.Advance(p.NextGenerationDate, p.StartDate.Day())
		p.LastGeneratedEntryID = &entry.ID
		p.UpdatedAt = s.now()
		if p.EndDate != nil && p.NextGenerationDate.After(*p.EndDate) {
			p.IsActive = false
			step.deactivated = true
		}
		if err := tx.UpdatePattern(ctx, p); err != nil {
			return err
		}
		step.created = &entry
		step.done = !p.IsActive || p.NextGenerationDate.After(asOf)
		return nil
	})
	if err != nil {
		return expansionStep{}, err
	}
	if step.created != nil {
		s.record(ctx, userID, "journal.recurring_create", step.created.ID, map[string]any{
			"entry_no":   step.created.EntryNo,
			"pattern_id": patternID,
		})
	}
	return step, nil
}
