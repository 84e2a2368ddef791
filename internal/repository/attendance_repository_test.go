package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/arka-labs/academy-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	day := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "date", "present", "generated", "batch_id", "migrated_from", "created_at", "updated_at"}).
		AddRow("att-1", "stu-1", day, true, false, "batch-1", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, date)")).
		WithArgs(sqlmock.AnyArg(), "stu-1", day, true, false, sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	batchID := "batch-1"
	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		StudentID: "stu-1",
		Date:      day,
		Present:   true,
		BatchID:   &batchID,
	})
	require.NoError(t, err)
	require.Equal(t, "att-1", stored.ID)
	require.True(t, stored.Present)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertMissingCountsOnlyNewRows(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	insertPattern := regexp.QuoteMeta("ON CONFLICT (student_id, date) DO NOTHING")
	mock.ExpectBegin()
	mock.ExpectExec(insertPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertPattern).WillReturnResult(sqlmock.NewResult(0, 0)) // date already marked
	mock.ExpectCommit()

	records := []models.AttendanceRecord{
		{StudentID: "stu-1", Date: time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)},
		{StudentID: "stu-1", Date: time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)},
	}
	inserted, err := repo.InsertMissing(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertMissingEmpty(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	inserted, err := repo.InsertMissing(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBatchStats(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"total", "present"}).AddRow(10, 7)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("batch-1").
		WillReturnRows(rows)

	stats, err := repo.BatchStats(context.Background(), "batch-1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 10, stats.Total)
	require.Equal(t, 3, stats.Absent)
	require.InDelta(t, 70.0, stats.Percentage, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBatchStatsEmptyRange(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"total", "present"}).AddRow(0, 0)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("batch-1").
		WillReturnRows(rows)

	stats, err := repo.BatchStats(context.Background(), "batch-1", nil, nil)
	require.NoError(t, err)
	require.Zero(t, stats.Total)
	require.Zero(t, stats.Percentage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteGeneratedSkipsMarkedRows(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("generated = TRUE")).
		WithArgs("batch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	pruned, err := repo.DeleteGeneratedByBatchWeekdays(context.Background(), "batch-1", []string{"Friday"})
	require.NoError(t, err)
	require.Equal(t, 3, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteGeneratedBeforeStartDate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	cutoff := time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("date < $2 AND generated = TRUE")).
		WithArgs("batch-1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	pruned, err := repo.DeleteGeneratedByBatchBefore(context.Background(), "batch-1", cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteByBatchWeekdaysIgnoresUnknownDays(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	pruned, err := repo.DeleteByBatchWeekdays(context.Background(), "batch-1", []string{"Notaday"})
	require.NoError(t, err)
	require.Zero(t, pruned)
	require.NoError(t, mock.ExpectationsWereMet())
}
