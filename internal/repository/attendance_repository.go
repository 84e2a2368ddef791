package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/arka-labs/academy-api/internal/models"
)

// AttendanceRepository handles persistence for normalized attendance rows.
// The attendance table carries UNIQUE(student_id, date), which makes the
// at-most-one-record-per-date rule structural rather than procedural.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListByStudent returns a student's attendance sorted descending by date.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.Present != nil {
		where = append(where, fmt.Sprintf("present = $%d", len(args)+1))
		args = append(args, *filter.Present)
	}
	query := fmt.Sprintf(`SELECT id, student_id, date, present, generated, batch_id, migrated_from, created_at, updated_at
FROM attendance WHERE %s ORDER BY date DESC`, strings.Join(where, " AND "))
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}

// Upsert inserts or replaces the record for (student, date). A repeated
// mark on the same date overwrites present, never duplicates.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance (id, student_id, date, present, generated, batch_id, migrated_from, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id, date)
DO UPDATE SET present = EXCLUDED.present, generated = EXCLUDED.generated, batch_id = EXCLUDED.batch_id, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, date, present, generated, batch_id, migrated_from, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.StudentID, record.Date, record.Present, record.Generated, record.BatchID, record.MigratedFrom, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// InsertMissing adds records only for dates without an existing row.
// Existing marks are never touched, which keeps reconciliation and legacy
// migration idempotent. Returns the number of rows actually inserted.
func (r *AttendanceRepository) InsertMissing(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert attendance: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	query := `INSERT INTO attendance (id, student_id, date, present, generated, batch_id, migrated_from, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id, date) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		res, err := tx.ExecContext(ctx, query, rec.ID, rec.StudentID, rec.Date, rec.Present, rec.Generated, rec.BatchID, rec.MigratedFrom, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("insert attendance: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert attendance: %w", err)
	}
	committed = true
	return inserted, nil
}

// ExistsForDate reports whether the student has any record on the date.
func (r *AttendanceRepository) ExistsForDate(ctx context.Context, studentID string, date time.Time) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM attendance WHERE student_id = $1 AND date = $2)`, studentID, date); err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}

// BatchStats aggregates present/absent counts for a batch over a date range.
// The join to students excludes records orphaned by student deletion.
func (r *AttendanceRepository) BatchStats(ctx context.Context, batchID string, from, to *time.Time) (*models.BatchAttendanceStats, error) {
	where := []string{"a.batch_id = $1"}
	args := []interface{}{batchID}
	if from != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE a.present) AS present
FROM attendance a
JOIN students s ON s.id = a.student_id
WHERE %s`, strings.Join(where, " AND "))

	row := struct {
		Total   int `db:"total"`
		Present int `db:"present"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("batch attendance stats: %w", err)
	}

	stats := &models.BatchAttendanceStats{
		BatchID: batchID,
		Total:   row.Total,
		Present: row.Present,
		Absent:  row.Total - row.Present,
	}
	if stats.Total > 0 {
		stats.Percentage = float64(stats.Present) / float64(stats.Total) * 100
	}
	return stats, nil
}

// DeleteByBatchWeekdays removes a batch's records dated on the given
// weekdays, marked or not. Used when a batch is deleted: only its own
// scheduled weekdays are pruned, rows on other days stay.
func (r *AttendanceRepository) DeleteByBatchWeekdays(ctx context.Context, batchID string, weekdays []string) (int, error) {
	if len(weekdays) == 0 {
		return 0, nil
	}
	numbers := make([]int64, 0, len(weekdays))
	for _, day := range weekdays {
		if n, ok := models.WeekdayNumber(day); ok {
			numbers = append(numbers, int64(n))
		}
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	query := `DELETE FROM attendance WHERE batch_id = $1 AND EXTRACT(DOW FROM date) = ANY($2)`
	res, err := r.db.ExecContext(ctx, query, batchID, pq.Array(numbers))
	if err != nil {
		return 0, fmt.Errorf("prune batch attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// DeleteGeneratedByBatchWeekdays removes only reconciliation-generated
// records for a batch on the given weekdays. Explicit marks, including
// explicit absents, survive a schedule edit.
func (r *AttendanceRepository) DeleteGeneratedByBatchWeekdays(ctx context.Context, batchID string, weekdays []string) (int, error) {
	if len(weekdays) == 0 {
		return 0, nil
	}
	numbers := make([]int64, 0, len(weekdays))
	for _, day := range weekdays {
		if n, ok := models.WeekdayNumber(day); ok {
			numbers = append(numbers, int64(n))
		}
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	query := `DELETE FROM attendance
WHERE batch_id = $1 AND EXTRACT(DOW FROM date) = ANY($2) AND generated = TRUE`
	res, err := r.db.ExecContext(ctx, query, batchID, pq.Array(numbers))
	if err != nil {
		return 0, fmt.Errorf("prune generated attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// DeleteGeneratedByBatchBefore removes a batch's generated records dated
// before the cutoff. Used when a batch's start date moves forward: dates
// that are no longer session dates lose their absent-by-default rows while
// explicit marks stay.
func (r *AttendanceRepository) DeleteGeneratedByBatchBefore(ctx context.Context, batchID string, before time.Time) (int, error) {
	query := `DELETE FROM attendance WHERE batch_id = $1 AND date < $2 AND generated = TRUE`
	res, err := r.db.ExecContext(ctx, query, batchID, before)
	if err != nil {
		return 0, fmt.Errorf("prune attendance before start date: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}
