package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByRollNumber(ctx context.Context, rollNumber, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	AssignBatch(ctx context.Context, studentID string, batchID *string) error
	Delete(ctx context.Context, id string) error
}

type studentBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type assignmentNotifier interface {
	NotifyBatchAssigned(student *models.Student, batch *models.Batch)
}

// StudentService manages student records and batch assignment.
type StudentService struct {
	repo      studentRepository
	batches   studentBatchReader
	notifier  assignmentNotifier
	cache     statsCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service. The notifier may be
// nil, in which case assignment emails are skipped.
func NewStudentService(repo studentRepository, batches studentBatchReader, notifier assignmentNotifier, cache statsCache, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		batches:   batches,
		notifier:  notifier,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns students matching the filter with the total count.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

// Get loads one student with batch metadata.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// CreateStudentRequest is the payload for enrolling a student.
type CreateStudentRequest struct {
	RollNumber string  `json:"roll_number" validate:"required,min=1,max=40"`
	FullName   string  `json:"full_name" validate:"required,min=2,max=120"`
	Email      string  `json:"email" validate:"omitempty,email"`
	Phone      string  `json:"phone" validate:"omitempty,max=20"`
	BatchID    *string `json:"batch_id"`
}

// Create enrolls a student. Roll numbers are unique across the academy.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	taken, err := s.repo.ExistsByRollNumber(ctx, req.RollNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already in use")
	}

	var batch *models.Batch
	if req.BatchID != nil {
		batch, err = s.loadBatch(ctx, *req.BatchID)
		if err != nil {
			return nil, err
		}
	}

	student := &models.Student{
		RollNumber: req.RollNumber,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		BatchID:    req.BatchID,
		Active:     true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("roll_number", student.RollNumber))

	if batch != nil && s.notifier != nil {
		s.notifier.NotifyBatchAssigned(student, batch)
	}
	return student, nil
}

// UpdateStudentRequest is the payload for editing a student. Nil fields are
// left unchanged; batch assignment goes through AssignBatch.
type UpdateStudentRequest struct {
	RollNumber *string `json:"roll_number" validate:"omitempty,min=1,max=40"`
	FullName   *string `json:"full_name" validate:"omitempty,min=2,max=120"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Active     *bool   `json:"active"`
}

// Update edits a student's own attributes.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.RollNumber != nil && *req.RollNumber != detail.RollNumber {
		taken, err := s.repo.ExistsByRollNumber(ctx, *req.RollNumber, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "roll number already in use")
		}
		detail.RollNumber = *req.RollNumber
	}
	if req.FullName != nil {
		detail.FullName = *req.FullName
	}
	if req.Email != nil {
		detail.Email = *req.Email
	}
	if req.Phone != nil {
		detail.Phone = *req.Phone
	}
	if req.Active != nil {
		detail.Active = *req.Active
	}

	if err := s.repo.Update(ctx, &detail.Student); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return detail, nil
}

// AssignBatch moves a student into a batch. Moving from unassigned into a
// batch triggers an assignment notification; moving between batches does
// not re-notify.
func (s *StudentService) AssignBatch(ctx context.Context, studentID, batchID string) (*models.StudentDetail, error) {
	detail, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	wasUnassigned := detail.BatchID == nil
	if err := s.repo.AssignBatch(ctx, studentID, &batch.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign batch")
	}
	s.logger.Info("student assigned to batch",
		zap.String("student_id", studentID),
		zap.String("batch_id", batch.ID),
	)

	if wasUnassigned && s.notifier != nil {
		s.notifier.NotifyBatchAssigned(&detail.Student, batch)
	}
	return s.Get(ctx, studentID)
}

// UnassignBatch removes a student from their batch. Attendance already
// recorded stays.
func (s *StudentService) UnassignBatch(ctx context.Context, studentID string) (*models.StudentDetail, error) {
	if _, err := s.Get(ctx, studentID); err != nil {
		return nil, err
	}
	if err := s.repo.AssignBatch(ctx, studentID, nil); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign batch")
	}
	return s.Get(ctx, studentID)
}

// Delete removes a student and all their attendance and score rows.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("student_id", id))
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "stats:*"); err != nil {
			s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
		}
	}
	return nil
}

func (s *StudentService) loadBatch(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}
