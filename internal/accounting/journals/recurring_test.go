package journals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestFrequencyAdvance(t *testing.T) {
	cases := []struct {
		freq   Frequency
		from   time.Time
		anchor int
		want   time.Time
	}{
		{FrequencyDaily, day(2025, 2, 28), 28, day(2025, 3, 1)},
		{FrequencyWeekly, day(2025, 12, 29), 29, day(2026, 1, 5)},
		{FrequencyMonthly, day(2025, 1, 31), 31, day(2025, 2, 28)},
		{FrequencyMonthly, day(2025, 2, 28), 31, day(2025, 3, 31)},
		{FrequencyQuarterly, day(2025, 11, 30), 30, day(2026, 2, 28)},
		{FrequencyYearly, day(2024, 2, 29), 29, day(2025, 2, 28)},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.freq.Advance(tc.from, tc.anchor), "%s from %s", tc.freq, tc.from.Format(time.DateOnly))
	}
}

func TestCreateRecurringPatternValidates(t *testing.T) {
	svc, _, _ := newTestService(t)
	end := day(2024, 1, 1)
	_, err := svc.CreateRecurringPattern(context.Background(), CreatePatternInput{
		TemplateEntryID: 1,
		Frequency:       "Hourly",
		StartDate:       day(2025, 1, 1),
		EndDate:         &end,
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
	require.Len(t, shared.MessagesOf(err), 2)

	_, err = svc.CreateRecurringPattern(context.Background(), CreatePatternInput{
		TemplateEntryID: 999,
		Frequency:       FrequencyMonthly,
		StartDate:       day(2025, 1, 1),
	})
	require.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestExpandRecurringCatchesUpWithMonthEndClamp(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	template, err := svc.CreateJournalEntry(ctx, saleInput(day(2025, 1, 31), "500"))
	require.NoError(t, err)
	pattern, err := svc.CreateRecurringPattern(ctx, CreatePatternInput{
		Name:            "Monthly rent",
		TemplateEntryID: template.ID,
		Frequency:       FrequencyMonthly,
		StartDate:       day(2025, 1, 31),
		UserID:          userID,
	})
	require.NoError(t, err)

	result, err := svc.ExpandRecurring(ctx, day(2025, 4, 30), userID)
	require.NoError(t, err)
	require.Len(t, result.Created, 4)
	want := []time.Time{day(2025, 1, 31), day(2025, 2, 28), day(2025, 3, 31), day(2025, 4, 30)}
	for i, entry := range result.Created {
		require.Equal(t, want[i], entry.EntryDate)
		require.False(t, entry.IsPosted)
		require.Equal(t, SourceTypeRecurringPattern, entry.SourceType)
		require.Equal(t, pattern.ID, *entry.SourceID)
		require.Len(t, entry.Lines, 2)
	}
	stored := repo.patterns[pattern.ID]
	require.Equal(t, day(2025, 5, 31), stored.NextGenerationDate)
	require.True(t, stored.IsActive)
	require.Equal(t, result.Created[3].ID, *stored.LastGeneratedEntryID)

	again, err := svc.ExpandRecurring(ctx, day(2025, 4, 30), userID)
	require.NoError(t, err)
	require.Empty(t, again.Created)
}

func TestExpandRecurringDeactivatesAfterEndDate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	template, err := svc.CreateJournalEntry(ctx, saleInput(day(2025, 1, 6), "20"))
	require.NoError(t, err)
	end := day(2025, 1, 20)
	pattern, err := svc.CreateRecurringPattern(ctx, CreatePatternInput{
		TemplateEntryID: template.ID,
		Frequency:       FrequencyWeekly,
		StartDate:       day(2025, 1, 6),
		EndDate:         &end,
		UserID:          userID,
	})
	require.NoError(t, err)
	require.Equal(t, template.Description, pattern.Name)

	result, err := svc.ExpandRecurring(ctx, day(2025, 2, 28), userID)
	require.NoError(t, err)
	require.Len(t, result.Created, 3)
	require.Equal(t, []int64{pattern.ID}, result.Deactivated)
	require.False(t, repo.patterns[pattern.ID].IsActive)
}

func TestExpandRecurringIsolatesFailingPattern(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	blocked, err := svc.CreateJournalEntry(ctx, saleInput(day(2025, 3, 15), "1"))
	require.NoError(t, err)
	healthy, err := svc.CreateJournalEntry(ctx, saleInput(day(2025, 4, 1), "1"))
	require.NoError(t, err)

	bad, err := svc.CreateRecurringPattern(ctx, CreatePatternInput{
		TemplateEntryID: blocked.ID, Frequency: FrequencyMonthly, StartDate: day(2025, 3, 15), UserID: userID,
	})
	require.NoError(t, err)
	good, err := svc.CreateRecurringPattern(ctx, CreatePatternInput{
		TemplateEntryID: healthy.ID, Frequency: FrequencyMonthly, StartDate: day(2025, 4, 1), UserID: userID,
	})
	require.NoError(t, err)
	repo.setStatus(3, periods.PeriodStatusClosed)

	result, err := svc.ExpandRecurring(ctx, day(2025, 4, 30), userID)
	require.Error(t, err)
	require.Contains(t, result.Failed, bad.ID)
	require.Len(t, result.Created, 1)
	require.Equal(t, good.ID, *result.Created[0].SourceID)
	require.Equal(t, day(2025, 3, 15), repo.patterns[bad.ID].NextGenerationDate)
}

func TestDeleteRecurringDraftsKeepsPatternUsable(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	template, err := svc.CreateJournalEntry(ctx, saleInput(day(2025, 1, 10), "75"))
	require.NoError(t, err)
	pattern, err := svc.CreateRecurringPattern(ctx, CreatePatternInput{
		TemplateEntryID: template.ID, Frequency: FrequencyMonthly, StartDate: day(2025, 1, 10), UserID: userID,
	})
	require.NoError(t, err)

	result, err := svc.ExpandRecurring(ctx, day(2025, 2, 10), userID)
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	latest := result.Created[1]
	require.Equal(t, latest.ID, *repo.patterns[pattern.ID].LastGeneratedEntryID)

	require.NoError(t, svc.DeleteJournalEntry(ctx, latest.ID, userID))
	require.Nil(t, repo.patterns[pattern.ID].LastGeneratedEntryID)

	err = svc.DeleteJournalEntry(ctx, template.ID, userID)
	require.Equal(t, shared.KindState, shared.KindOf(err))
	require.ErrorIs(t, err, shared.ErrTemplateInUse)
	_, ok := repo.entries[template.ID]
	require.True(t, ok)

	next, err := svc.ExpandRecurring(ctx, day(2025, 3, 10), userID)
	require.NoError(t, err)
	require.Len(t, next.Created, 1)
	require.Equal(t, day(2025, 3, 10), next.Created[0].EntryDate)
}
