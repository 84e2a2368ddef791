package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arka-labs/academy-api/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSessionDates(t *testing.T) {
	// Jan 6 2025 is a Monday.
	start := date(2025, time.January, 6)
	until := date(2025, time.January, 19)

	dates := SessionDates(start, []string{"Monday", "Wednesday"}, until)
	require.Len(t, dates, 4)
	assert.Equal(t, date(2025, time.January, 6), dates[0])
	assert.Equal(t, date(2025, time.January, 8), dates[1])
	assert.Equal(t, date(2025, time.January, 13), dates[2])
	assert.Equal(t, date(2025, time.January, 15), dates[3])
}

func TestSessionDatesInclusiveBounds(t *testing.T) {
	// Both endpoints land on scheduled weekdays and must be included.
	start := date(2025, time.January, 6)  // Monday
	until := date(2025, time.January, 13) // Monday

	dates := SessionDates(start, []string{"Monday"}, until)
	require.Len(t, dates, 2)
	assert.Equal(t, start, dates[0])
	assert.Equal(t, until, dates[1])
}

func TestSessionDatesEmptyWeekdays(t *testing.T) {
	dates := SessionDates(date(2025, time.January, 1), nil, date(2025, time.December, 31))
	assert.Empty(t, dates)
}

func TestSessionDatesStartAfterUntil(t *testing.T) {
	dates := SessionDates(date(2025, time.June, 1), []string{"Monday"}, date(2025, time.January, 1))
	assert.Empty(t, dates)
}

func TestSessionDatesDeterministic(t *testing.T) {
	start := date(2024, time.November, 4)
	until := date(2025, time.February, 28)
	weekdays := []string{"Tuesday", "Thursday", "Saturday"}

	first := SessionDates(start, weekdays, until)
	second := SessionDates(start, weekdays, until)
	assert.Equal(t, first, second)
}

type mockCalendarBatches struct {
	batches map[string]models.Batch
}

func (m *mockCalendarBatches) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func TestCalendarServiceBatchSessionDates(t *testing.T) {
	batches := &mockCalendarBatches{batches: map[string]models.Batch{
		"b1": {
			ID:         "b1",
			StartDate:  date(2025, time.January, 6),
			DaysOfWeek: pq.StringArray{"Monday"},
		},
	}}
	svc := NewCalendarService(batches, nil)
	svc.now = func() time.Time { return date(2025, time.January, 20) }

	dates, err := svc.BatchSessionDates(context.Background(), "b1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, dates, 3)
}

func TestCalendarServiceBatchNotFound(t *testing.T) {
	svc := NewCalendarService(&mockCalendarBatches{}, nil)
	_, err := svc.BatchSessionDates(context.Background(), "missing", time.Time{})
	require.Error(t, err)
}
