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
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records map[string]models.AttendanceRecord // keyed by studentID|date
	stats   *models.BatchAttendanceStats
}

func attendanceKey(studentID string, d time.Time) string {
	return studentID + "|" + d.Format("2006-01-02")
}

func (m *mockAttendanceRepo) ListByStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	var out []models.AttendanceRecord
	for _, rec := range m.records {
		if rec.StudentID == studentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockAttendanceRepo) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if m.records == nil {
		m.records = make(map[string]models.AttendanceRecord)
	}
	key := attendanceKey(record.StudentID, record.Date)
	if existing, ok := m.records[key]; ok {
		existing.Present = record.Present
		existing.Generated = record.Generated
		m.records[key] = existing
		return &existing, nil
	}
	m.records[key] = *record
	return record, nil
}

func (m *mockAttendanceRepo) InsertMissing(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	if m.records == nil {
		m.records = make(map[string]models.AttendanceRecord)
	}
	inserted := 0
	for _, rec := range records {
		key := attendanceKey(rec.StudentID, rec.Date)
		if _, ok := m.records[key]; ok {
			continue
		}
		m.records[key] = rec
		inserted++
	}
	return inserted, nil
}

func (m *mockAttendanceRepo) ExistsForDate(ctx context.Context, studentID string, d time.Time) (bool, error) {
	_, ok := m.records[attendanceKey(studentID, d)]
	return ok, nil
}

func (m *mockAttendanceRepo) BatchStats(ctx context.Context, batchID string, from, to *time.Time) (*models.BatchAttendanceStats, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return &models.BatchAttendanceStats{BatchID: batchID}, nil
}

type mockAttendanceStudents struct {
	students map[string]models.StudentDetail
	legacy   map[string][]models.LegacyAttendanceEntry
	cleared  []string
}

func (m *mockAttendanceStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceStudents) LegacyAttendance(ctx context.Context, studentID string) ([]models.LegacyAttendanceEntry, error) {
	return m.legacy[studentID], nil
}

func (m *mockAttendanceStudents) ClearLegacyAttendance(ctx context.Context, studentID string) error {
	m.cleared = append(m.cleared, studentID)
	delete(m.legacy, studentID)
	return nil
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func newAttendanceFixture() (*AttendanceService, *mockAttendanceRepo, *mockAttendanceStudents) {
	repo := &mockAttendanceRepo{records: make(map[string]models.AttendanceRecord)}
	students := &mockAttendanceStudents{
		students: map[string]models.StudentDetail{
			"s1": {Student: models.Student{ID: "s1", RollNumber: "R1", FullName: "Asha", BatchID: strPtr("b1"), Active: true}},
		},
		legacy: make(map[string][]models.LegacyAttendanceEntry),
	}
	batches := &mockCalendarBatches{batches: map[string]models.Batch{
		"b1": {ID: "b1", StartDate: date(2025, time.January, 6), DaysOfWeek: pq.StringArray{"Monday", "Wednesday"}},
	}}
	svc := NewAttendanceService(repo, students, batches, nil, 0, nil, nil)
	svc.now = func() time.Time { return date(2025, time.January, 19) }
	return svc, repo, students
}

func TestAttendanceMarkReplacesExisting(t *testing.T) {
	svc, repo, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{StudentID: "s1", Date: "2025-01-06", Present: true})
	require.NoError(t, err)
	_, err = svc.Mark(context.Background(), MarkAttendanceRequest{StudentID: "s1", Date: "2025-01-06", Present: false})
	require.NoError(t, err)

	require.Len(t, repo.records, 1)
	rec := repo.records[attendanceKey("s1", date(2025, time.January, 6))]
	assert.False(t, rec.Present)
}

func TestAttendanceMarkUnknownStudent(t *testing.T) {
	svc, _, _ := newAttendanceFixture()
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{StudentID: "nope", Date: "2025-01-06", Present: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceMarkBadDate(t *testing.T) {
	svc, _, _ := newAttendanceFixture()
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{StudentID: "s1", Date: "06/01/2025", Present: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceReconcileFillsAbsentDefaults(t *testing.T) {
	svc, repo, _ := newAttendanceFixture()

	// Pre-existing explicit mark must survive reconciliation untouched.
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{StudentID: "s1", Date: "2025-01-08", Present: true})
	require.NoError(t, err)

	records, err := svc.Reconcile(context.Background(), "s1")
	require.NoError(t, err)

	// Mondays and Wednesdays between Jan 6 and Jan 19: 6, 8, 13, 15.
	assert.Len(t, records, 4)
	kept := repo.records[attendanceKey("s1", date(2025, time.January, 8))]
	assert.True(t, kept.Present)
	assert.False(t, kept.Generated)
	generated := repo.records[attendanceKey("s1", date(2025, time.January, 6))]
	assert.False(t, generated.Present)
	assert.True(t, generated.Generated)
}

func TestAttendanceExplicitAbsentClearsGeneratedFlag(t *testing.T) {
	svc, repo, _ := newAttendanceFixture()

	_, err := svc.Reconcile(context.Background(), "s1")
	require.NoError(t, err)

	// An explicit absent mark on a generated date replaces the generated
	// row, so schedule pruning can no longer remove it.
	_, err = svc.Mark(context.Background(), MarkAttendanceRequest{StudentID: "s1", Date: "2025-01-06", Present: false})
	require.NoError(t, err)

	rec := repo.records[attendanceKey("s1", date(2025, time.January, 6))]
	assert.False(t, rec.Present)
	assert.False(t, rec.Generated)
}

func TestAttendanceReconcileIdempotent(t *testing.T) {
	svc, repo, _ := newAttendanceFixture()

	_, err := svc.Reconcile(context.Background(), "s1")
	require.NoError(t, err)
	first := len(repo.records)

	_, err = svc.Reconcile(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, first, len(repo.records))
}

func TestAttendanceReconcileRequiresBatch(t *testing.T) {
	svc, _, students := newAttendanceFixture()
	students.students["s2"] = models.StudentDetail{Student: models.Student{ID: "s2", Active: true}}

	_, err := svc.Reconcile(context.Background(), "s2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestMigrateLegacySkipsMalformedAndClears(t *testing.T) {
	svc, repo, students := newAttendanceFixture()
	students.legacy["s1"] = []models.LegacyAttendanceEntry{
		{Date: "2025-01-06", Present: boolPtr(true)},
		{Date: "not-a-date", Present: boolPtr(true)},
		{Date: "2025-01-08", Present: nil},
		{Date: "2025-01-13", Present: boolPtr(false)},
	}

	migrated, err := svc.MigrateLegacy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)
	assert.Contains(t, students.cleared, "s1")

	rec := repo.records[attendanceKey("s1", date(2025, time.January, 6))]
	require.NotNil(t, rec.MigratedFrom)
	assert.Equal(t, models.MigratedFromLegacy, *rec.MigratedFrom)
}

func TestMigrateLegacyEmptyIsNoop(t *testing.T) {
	svc, _, students := newAttendanceFixture()

	migrated, err := svc.MigrateLegacy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, migrated)
	assert.Empty(t, students.cleared)
}

func TestMigrateLegacyRerunDoesNotDuplicate(t *testing.T) {
	svc, repo, students := newAttendanceFixture()
	entries := []models.LegacyAttendanceEntry{{Date: "2025-01-06", Present: boolPtr(true)}}
	students.legacy["s1"] = entries

	migrated, err := svc.MigrateLegacy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)

	// Simulate a re-run against restored legacy data: the date already has
	// a record, so nothing is inserted.
	students.legacy["s1"] = entries
	migrated, err = svc.MigrateLegacy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, migrated)
	assert.Len(t, repo.records, 1)
}

func TestBatchStatsSingleDateCollapsesRange(t *testing.T) {
	svc, repo, _ := newAttendanceFixture()
	repo.stats = &models.BatchAttendanceStats{BatchID: "b1", Total: 10, Present: 7, Absent: 3, Percentage: 70}

	d := date(2025, time.January, 6)
	stats, err := svc.BatchStats(context.Background(), "b1", BatchStatsRequest{Date: &d})
	require.NoError(t, err)
	assert.Equal(t, 70.0, stats.Percentage)
}
