package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arka-labs/academy-api/internal/models"
)

// StudentRepository handles persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s LEFT JOIN batches b ON b.id = s.batch_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(s.full_name ILIKE $%d OR s.roll_number ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("s.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Unassigned {
		where = append(where, "s.batch_id IS NULL")
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"name":        "s.full_name",
		"roll_number": "s.roll_number",
		"created_at":  "s.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.roll_number, s.full_name, s.email, s.phone, s.batch_id, s.active, s.created_at, s.updated_at,
        b.name AS batch_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.StudentDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return rows, total, nil
}

// FindByID loads one student with batch metadata.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := `SELECT s.id, s.roll_number, s.full_name, s.email, s.phone, s.batch_id, s.active, s.created_at, s.updated_at,
        b.name AS batch_name
        FROM students s LEFT JOIN batches b ON b.id = s.batch_id
        WHERE s.id = $1`
	var row models.StudentDetail
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// ExistsByRollNumber reports whether a roll number is already used by
// another student.
func (r *StudentRepository) ExistsByRollNumber(ctx context.Context, rollNumber, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM students WHERE roll_number = $1 AND ($2 = '' OR id <> $2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, rollNumber, excludeID); err != nil {
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return exists, nil
}

// Create inserts a new student row.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	query := `INSERT INTO students (id, roll_number, full_name, email, phone, batch_id, legacy_attendance, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, '[]'::jsonb, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.RollNumber, student.FullName, student.Email, student.Phone, student.BatchID, student.Active, student.CreatedAt, student.UpdatedAt); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update rewrites student attributes.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	query := `UPDATE students SET roll_number = $2, full_name = $3, email = $4, phone = $5, batch_id = $6, active = $7, updated_at = $8
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, student.ID, student.RollNumber, student.FullName, student.Email, student.Phone, student.BatchID, student.Active, student.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AssignBatch sets the student's batch reference.
func (r *StudentRepository) AssignBatch(ctx context.Context, studentID string, batchID *string) error {
	query := `UPDATE students SET batch_id = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, studentID, batchID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign batch: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UnassignBatch strips the batch reference from every student of a batch.
func (r *StudentRepository) UnassignBatch(ctx context.Context, batchID string) error {
	query := `UPDATE students SET batch_id = NULL, updated_at = $2 WHERE batch_id = $1`
	if _, err := r.db.ExecContext(ctx, query, batchID, time.Now().UTC()); err != nil {
		return fmt.Errorf("unassign batch students: %w", err)
	}
	return nil
}

// ListIDsByBatch returns the ids of all students assigned to a batch.
func (r *StudentRepository) ListIDsByBatch(ctx context.Context, batchID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM students WHERE batch_id = $1`, batchID); err != nil {
		return nil, fmt.Errorf("list batch students: %w", err)
	}
	return ids, nil
}

// Delete removes a student together with its attendance and score rows so
// aggregates never see orphaned records.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete student: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete student attendance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mock_scores WHERE student_id = $1`, id); err != nil {
		return fmt.Errorf("delete student scores: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete student: %w", err)
	}
	committed = true
	return nil
}

// LegacyAttendance reads the embedded legacy attendance array.
func (r *StudentRepository) LegacyAttendance(ctx context.Context, studentID string) ([]models.LegacyAttendanceEntry, error) {
	var raw []byte
	if err := r.db.GetContext(ctx, &raw, `SELECT legacy_attendance FROM students WHERE id = $1`, studentID); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []models.LegacyAttendanceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode legacy attendance: %w", err)
	}
	return entries, nil
}

// ClearLegacyAttendance empties the embedded array. Clearing is the
// migration-completion marker, so a re-run becomes a no-op.
func (r *StudentRepository) ClearLegacyAttendance(ctx context.Context, studentID string) error {
	query := `UPDATE students SET legacy_attendance = '[]'::jsonb, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear legacy attendance: %w", err)
	}
	return nil
}
