package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/arka-labs/academy-api/internal/models"
)

// MockTestRepository handles persistence for mock tests.
type MockTestRepository struct {
	db *sqlx.DB
}

// NewMockTestRepository constructs the repository.
func NewMockTestRepository(db *sqlx.DB) *MockTestRepository {
	return &MockTestRepository{db: db}
}

// List returns mock tests matching the filter.
func (r *MockTestRepository) List(ctx context.Context, filter models.MockTestFilter) ([]models.MockTest, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("$%d = ANY(batch_ids)", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.DefaultsOnly {
		where = append(where, "is_default_level = TRUE")
	}
	if filter.CustomOnly {
		where = append(where, "is_default_level = FALSE")
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, test_date, max_score, description, batch_ids, is_default_level, level, status, created_at
FROM mock_tests WHERE %s
ORDER BY is_default_level DESC, level ASC NULLS LAST, created_at DESC
LIMIT %d OFFSET %d`, whereClause, size, offset)

	var rows []models.MockTest
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list mock tests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM mock_tests WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count mock tests: %w", err)
	}
	return rows, total, nil
}

// FindByID loads one mock test.
func (r *MockTestRepository) FindByID(ctx context.Context, id string) (*models.MockTest, error) {
	query := `SELECT id, name, test_date, max_score, description, batch_ids, is_default_level, level, status, created_at
FROM mock_tests WHERE id = $1`
	var row models.MockTest
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// FindDefaultByLevel returns the canonical test for a ladder level.
func (r *MockTestRepository) FindDefaultByLevel(ctx context.Context, level int) (*models.MockTest, error) {
	query := `SELECT id, name, test_date, max_score, description, batch_ids, is_default_level, level, status, created_at
FROM mock_tests WHERE is_default_level = TRUE AND level = $1`
	var row models.MockTest
	if err := r.db.GetContext(ctx, &row, query, level); err != nil {
		return nil, err
	}
	return &row, nil
}

// EnsureDefaultLevels provisions the ten singleton level tests. The partial
// unique index on level (WHERE is_default_level) makes re-provisioning a
// no-op, so startup can call this unconditionally.
func (r *MockTestRepository) EnsureDefaultLevels(ctx context.Context) (int, error) {
	query := `INSERT INTO mock_tests (id, name, max_score, description, batch_ids, is_default_level, level, status, created_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8)
ON CONFLICT (level) WHERE is_default_level DO NOTHING`
	now := time.Now().UTC()
	created := 0
	for level := 1; level <= models.NumLevels; level++ {
		res, err := r.db.ExecContext(ctx, query,
			uuid.NewString(),
			fmt.Sprintf("Level %d Mock Test", level),
			models.MockTestMaxScore,
			fmt.Sprintf("Canonical certification test for level %d", level),
			pq.StringArray{},
			level,
			models.MockTestStatusScheduled,
			now,
		)
		if err != nil {
			return created, fmt.Errorf("ensure default level %d: %w", level, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			created += int(affected)
		}
	}
	return created, nil
}

// Create inserts a custom mock test.
func (r *MockTestRepository) Create(ctx context.Context, test *models.MockTest) error {
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	test.CreatedAt = time.Now().UTC()
	query := `INSERT INTO mock_tests (id, name, test_date, max_score, description, batch_ids, is_default_level, level, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, test.ID, test.Name, test.TestDate, test.MaxScore, test.Description, test.BatchIDs, test.IsDefaultLevel, test.Level, test.Status, test.CreatedAt); err != nil {
		return fmt.Errorf("create mock test: %w", err)
	}
	return nil
}

// Update rewrites a mock test's mutable attributes.
func (r *MockTestRepository) Update(ctx context.Context, test *models.MockTest) error {
	query := `UPDATE mock_tests SET name = $2, test_date = $3, description = $4, batch_ids = $5, status = $6 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, test.ID, test.Name, test.TestDate, test.Description, test.BatchIDs, test.Status)
	if err != nil {
		return fmt.Errorf("update mock test: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a custom mock test and its score entries. Default level
// tests are protected at the service layer.
func (r *MockTestRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete mock test: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM mock_scores WHERE mock_id = $1`, id); err != nil {
		return fmt.Errorf("delete mock test scores: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM mock_tests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mock test: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete mock test: %w", err)
	}
	committed = true
	return nil
}
