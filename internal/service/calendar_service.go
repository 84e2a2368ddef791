package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

// SessionDates returns every calendar date from start to until inclusive
// whose weekday name is in the given set, ascending. Pure: identical inputs
// always yield the identical sequence, so regeneration after a batch edit
// is safe. An empty weekday set or start after until yields an empty slice,
// not an error.
func SessionDates(start time.Time, weekdays []string, until time.Time) []time.Time {
	if len(weekdays) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(weekdays))
	for _, d := range weekdays {
		wanted[d] = struct{}{}
	}

	day := truncateToDay(start)
	end := truncateToDay(until)
	var dates []time.Time
	for !day.After(end) {
		if _, ok := wanted[day.Weekday().String()]; ok {
			dates = append(dates, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return dates
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type calendarBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

// CalendarService exposes the session calendar for batches.
type CalendarService struct {
	batches calendarBatchReader
	logger  *zap.Logger
	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

// NewCalendarService constructs the service.
func NewCalendarService(batches calendarBatchReader, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{batches: batches, logger: logger, now: time.Now}
}

// BatchSessionDates returns a batch's session dates from its start date up
// to today (or the provided until date when non-zero).
func (s *CalendarService) BatchSessionDates(ctx context.Context, batchID string, until time.Time) ([]time.Time, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if until.IsZero() {
		until = s.now()
	}
	return SessionDates(batch.StartDate, batch.DaysOfWeek, until), nil
}
