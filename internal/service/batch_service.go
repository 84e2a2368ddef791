package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	Delete(ctx context.Context, id string) error
}

type batchStudentWriter interface {
	UnassignBatch(ctx context.Context, batchID string) error
	ListIDsByBatch(ctx context.Context, batchID string) ([]string, error)
}

type batchAttendancePruner interface {
	DeleteByBatchWeekdays(ctx context.Context, batchID string, weekdays []string) (int, error)
	DeleteGeneratedByBatchWeekdays(ctx context.Context, batchID string, weekdays []string) (int, error)
	DeleteGeneratedByBatchBefore(ctx context.Context, batchID string, before time.Time) (int, error)
}

// BatchService manages batches and the attendance consequences of schedule
// changes and batch deletion.
type BatchService struct {
	repo       batchRepository
	students   batchStudentWriter
	attendance batchAttendancePruner
	cache      statsCache
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewBatchService constructs the batch service.
func NewBatchService(repo batchRepository, students batchStudentWriter, attendance batchAttendancePruner, cache statsCache, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{
		repo:       repo,
		students:   students,
		attendance: attendance,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// List returns batches matching the filter with the total count.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, total, nil
}

// Get loads one batch.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// CreateBatchRequest is the payload for creating a batch.
type CreateBatchRequest struct {
	Name       string   `json:"name" validate:"required,min=2,max=120"`
	StartDate  string   `json:"start_date" validate:"required"`
	StartTime  string   `json:"start_time" validate:"required"`
	EndTime    string   `json:"end_time" validate:"required"`
	DaysOfWeek []string `json:"days_of_week" validate:"required,min=1"`
	Trainer    string   `json:"trainer" validate:"max=120"`
}

// Create adds a batch. Weekday names are canonicalised and deduplicated.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start date format, expected YYYY-MM-DD")
	}
	days, ok := models.NormalizeWeekdays(req.DaysOfWeek)
	if !ok || len(days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "days_of_week must contain valid weekday names")
	}
	if !validClockTime(req.StartTime) || !validClockTime(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start and end time must be in HH:MM format")
	}

	batch := &models.Batch{
		Name:       req.Name,
		StartDate:  startDate,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		DaysOfWeek: pq.StringArray(days),
		Trainer:    req.Trainer,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.String("name", batch.Name))
	return batch, nil
}

// UpdateBatchRequest is the payload for updating a batch. Nil fields are
// left unchanged.
type UpdateBatchRequest struct {
	Name       *string   `json:"name" validate:"omitempty,min=2,max=120"`
	StartDate  *string   `json:"start_date"`
	StartTime  *string   `json:"start_time"`
	EndTime    *string   `json:"end_time"`
	DaysOfWeek *[]string `json:"days_of_week" validate:"omitempty,min=1"`
	Trainer    *string   `json:"trainer" validate:"omitempty,max=120"`
}

// Update modifies a batch. When the weekday schedule shrinks, generated
// records on the removed weekdays are pruned; when the start date moves
// forward, generated records before the new start are pruned. Explicit
// marks and migrated rows are kept either way.
func (s *BatchService) Update(ctx context.Context, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousDays := append([]string(nil), batch.DaysOfWeek...)
	previousStart := batch.StartDate

	if req.Name != nil {
		batch.Name = *req.Name
	}
	if req.StartDate != nil {
		startDate, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start date format, expected YYYY-MM-DD")
		}
		batch.StartDate = startDate
	}
	if req.StartTime != nil {
		if !validClockTime(*req.StartTime) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be in HH:MM format")
		}
		batch.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		if !validClockTime(*req.EndTime) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be in HH:MM format")
		}
		batch.EndTime = *req.EndTime
	}
	if req.DaysOfWeek != nil {
		days, ok := models.NormalizeWeekdays(*req.DaysOfWeek)
		if !ok || len(days) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "days_of_week must contain valid weekday names")
		}
		batch.DaysOfWeek = pq.StringArray(days)
	}
	if req.Trainer != nil {
		batch.Trainer = *req.Trainer
	}

	if err := s.repo.Update(ctx, batch); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}

	if removed := removedWeekdays(previousDays, batch.DaysOfWeek); len(removed) > 0 {
		pruned, err := s.attendance.DeleteGeneratedByBatchWeekdays(ctx, batch.ID, removed)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prune attendance after schedule change")
		}
		s.logger.Info("schedule shrunk, generated attendance pruned",
			zap.String("batch_id", batch.ID),
			zap.Strings("removed_days", removed),
			zap.Int("pruned", pruned),
		)
		s.invalidateStats(ctx)
	}
	if batch.StartDate.After(previousStart) {
		pruned, err := s.attendance.DeleteGeneratedByBatchBefore(ctx, batch.ID, batch.StartDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prune attendance before new start date")
		}
		s.logger.Info("start date moved forward, generated attendance pruned",
			zap.String("batch_id", batch.ID),
			zap.Time("new_start", batch.StartDate),
			zap.Int("pruned", pruned),
		)
		s.invalidateStats(ctx)
	}
	return batch, nil
}

// Delete removes a batch. Its students become unassigned and the batch's
// attendance rows dated on its scheduled weekdays are deleted.
func (s *BatchService) Delete(ctx context.Context, id string) error {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pruned, err := s.attendance.DeleteByBatchWeekdays(ctx, id, batch.DaysOfWeek)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prune batch attendance")
	}
	if err := s.students.UnassignBatch(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign batch students")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}

	s.logger.Info("batch deleted",
		zap.String("batch_id", id),
		zap.Int("attendance_pruned", pruned),
	)
	s.invalidateStats(ctx)
	return nil
}

// StudentIDs returns the ids of the batch's assigned students.
func (s *BatchService) StudentIDs(ctx context.Context, batchID string) ([]string, error) {
	if _, err := s.Get(ctx, batchID); err != nil {
		return nil, err
	}
	ids, err := s.students.ListIDsByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	return ids, nil
}

func (s *BatchService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "stats:attendance:*"); err != nil {
		s.logger.Warn("failed to invalidate attendance stats cache", zap.Error(err))
	}
}

func removedWeekdays(before, after []string) []string {
	kept := make(map[string]struct{}, len(after))
	for _, d := range after {
		kept[d] = struct{}{}
	}
	var removed []string
	for _, d := range before {
		if _, ok := kept[d]; !ok {
			removed = append(removed, d)
		}
	}
	return removed
}

func validClockTime(v string) bool {
	_, err := time.Parse("15:04", v)
	return err == nil
}
