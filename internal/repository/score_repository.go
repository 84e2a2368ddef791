package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arka-labs/academy-api/internal/models"
)

// ScoreRepository handles persistence for mock score entries. The table
// carries UNIQUE(student_id, mock_id): re-scoring the same test replaces
// the prior entry instead of accumulating attempts.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs the repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// ListByStudent returns all score entries for a student, oldest first.
func (r *ScoreRepository) ListByStudent(ctx context.Context, studentID string) ([]models.MockScore, error) {
	query := `SELECT id, student_id, mock_id, score, absent, test_date, submitted_by, submitted_at
FROM mock_scores WHERE student_id = $1 ORDER BY submitted_at ASC`
	var rows []models.MockScore
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student scores: %w", err)
	}
	return rows, nil
}

// ListByMock returns entries of existing students for one mock test.
// The join excludes rows orphaned by student deletion.
func (r *ScoreRepository) ListByMock(ctx context.Context, mockID string) ([]models.MockScore, error) {
	query := `SELECT ms.id, ms.student_id, ms.mock_id, ms.score, ms.absent, ms.test_date, ms.submitted_by, ms.submitted_at
FROM mock_scores ms
JOIN students s ON s.id = ms.student_id
WHERE ms.mock_id = $1 ORDER BY ms.submitted_at ASC`
	var rows []models.MockScore
	if err := r.db.SelectContext(ctx, &rows, query, mockID); err != nil {
		return nil, fmt.Errorf("list mock scores: %w", err)
	}
	return rows, nil
}

// Upsert inserts or replaces the entry for (student, mock test).
func (r *ScoreRepository) Upsert(ctx context.Context, entry *models.MockScore) (*models.MockScore, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.SubmittedAt = time.Now().UTC()
	query := `INSERT INTO mock_scores (id, student_id, mock_id, score, absent, test_date, submitted_by, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, mock_id)
DO UPDATE SET score = EXCLUDED.score, absent = EXCLUDED.absent, test_date = EXCLUDED.test_date,
    submitted_by = EXCLUDED.submitted_by, submitted_at = EXCLUDED.submitted_at
RETURNING id, student_id, mock_id, score, absent, test_date, submitted_by, submitted_at`
	var stored models.MockScore
	if err := r.db.GetContext(ctx, &stored, query, entry.ID, entry.StudentID, entry.MockID, entry.Score, entry.Absent, entry.TestDate, entry.SubmittedBy, entry.SubmittedAt); err != nil {
		return nil, fmt.Errorf("upsert mock score: %w", err)
	}
	return &stored, nil
}
