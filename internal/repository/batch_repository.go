package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arka-labs/academy-api/internal/models"
)

// BatchRepository handles persistence for batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches matching the filter.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Trainer != "" {
		where = append(where, fmt.Sprintf("trainer = $%d", len(args)+1))
		args = append(args, filter.Trainer)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "created_at"
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

	query := fmt.Sprintf(`SELECT id, name, start_date, start_time, end_time, days_of_week, trainer, created_at, updated_at
        FROM batches WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, whereClause, sortColumn, order, size, offset)

	var rows []models.Batch
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM batches WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return rows, total, nil
}

// FindByID loads one batch.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	query := `SELECT id, name, start_date, start_time, end_time, days_of_week, trainer, created_at, updated_at
        FROM batches WHERE id = $1`
	var row models.Batch
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a new batch row.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	now := time.Now().UTC()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.CreatedAt = now
	batch.UpdatedAt = now
	query := `INSERT INTO batches (id, name, start_date, start_time, end_time, days_of_week, trainer, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, batch.ID, batch.Name, batch.StartDate, batch.StartTime, batch.EndTime, batch.DaysOfWeek, batch.Trainer, batch.CreatedAt, batch.UpdatedAt); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update rewrites batch attributes.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	query := `UPDATE batches SET name = $2, start_date = $3, start_time = $4, end_time = $5, days_of_week = $6, trainer = $7, updated_at = $8
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, batch.ID, batch.Name, batch.StartDate, batch.StartTime, batch.EndTime, batch.DaysOfWeek, batch.Trainer, batch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a batch row. Student unassignment and attendance pruning
// are orchestrated by the service layer.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
