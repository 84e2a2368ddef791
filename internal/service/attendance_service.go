package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type attendanceRepository interface {
	ListByStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	InsertMissing(ctx context.Context, records []models.AttendanceRecord) (int, error)
	ExistsForDate(ctx context.Context, studentID string, date time.Time) (bool, error)
	BatchStats(ctx context.Context, batchID string, from, to *time.Time) (*models.BatchAttendanceStats, error)
}

type attendanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	LegacyAttendance(ctx context.Context, studentID string) ([]models.LegacyAttendanceEntry, error)
	ClearLegacyAttendance(ctx context.Context, studentID string) error
}

type attendanceBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AttendanceService owns the attendance calendar: reconciliation of
// generated session dates, explicit marks and the one-way migration of the
// legacy embedded representation.
type AttendanceService struct {
	repo      attendanceRepository
	students  attendanceStudentReader
	batches   attendanceBatchReader
	cache     statsCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service. The cache may be
// nil, in which case stats are always computed from the store.
func NewAttendanceService(repo attendanceRepository, students attendanceStudentReader, batches attendanceBatchReader, cache statsCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		batches:   batches,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// MarkAttendanceRequest is the payload for a single attendance mark.
type MarkAttendanceRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Present   bool   `json:"present"`
}

// List returns a student's attendance records, most recent first.
func (s *AttendanceService) List(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	records, err := s.repo.ListByStudent(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// Mark records a student's attendance for one date, replacing any prior
// mark on that date. The date does not have to be a generated session date;
// manual overrides are allowed.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Distinct from a save failure: the caller is likely holding
			// stale state and should refresh.
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	record := &models.AttendanceRecord{
		StudentID: student.ID,
		Date:      date,
		Present:   req.Present,
		BatchID:   student.BatchID,
	}
	stored, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	s.invalidateStats(ctx)
	return stored, nil
}

// Reconcile fills in absent-by-default records for every generated session
// date the student has no record for. Existing marks are never mutated, so
// the operation can be re-run at any time without duplicating dates.
func (s *AttendanceService) Reconcile(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.BatchID == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not assigned to a batch")
	}
	batch, err := s.batches.FindByID(ctx, *student.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	sessionDates := SessionDates(batch.StartDate, batch.DaysOfWeek, s.now())
	missing := make([]models.AttendanceRecord, 0, len(sessionDates))
	for _, date := range sessionDates {
		missing = append(missing, models.AttendanceRecord{
			StudentID: student.ID,
			Date:      date,
			Present:   false,
			Generated: true,
			BatchID:   student.BatchID,
		})
	}
	inserted, err := s.repo.InsertMissing(ctx, missing)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile attendance")
	}
	if inserted > 0 {
		s.logger.Info("attendance reconciled",
			zap.String("student_id", student.ID),
			zap.String("batch_id", batch.ID),
			zap.Int("added", inserted),
		)
		s.invalidateStats(ctx)
	}

	records, err := s.repo.ListByStudent(ctx, studentID, models.AttendanceFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// MigrateLegacy moves the student's embedded attendance array into
// normalized rows and clears the array. Malformed entries are dropped
// silently. Idempotent: an empty array is a no-op and re-running against
// already-migrated data cannot duplicate rows because inserts skip dates
// that already have a record.
func (s *AttendanceService) MigrateLegacy(ctx context.Context, studentID string) (int, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	entries, err := s.students.LegacyAttendance(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read legacy attendance")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	migratedFrom := models.MigratedFromLegacy
	seen := map[string]struct{}{}
	records := make([]models.AttendanceRecord, 0, len(entries))
	dropped := 0
	for _, entry := range entries {
		date, err := time.Parse(dateLayout, entry.Date)
		if err != nil || entry.Present == nil {
			dropped++
			continue
		}
		key := date.Format(dateLayout)
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		records = append(records, models.AttendanceRecord{
			StudentID:    student.ID,
			Date:         date,
			Present:      *entry.Present,
			BatchID:      student.BatchID,
			MigratedFrom: &migratedFrom,
		})
	}

	migrated, err := s.repo.InsertMissing(ctx, records)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to migrate attendance")
	}
	if err := s.students.ClearLegacyAttendance(ctx, studentID); err != nil {
		return migrated, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear legacy attendance")
	}
	s.logger.Info("legacy attendance migrated",
		zap.String("student_id", student.ID),
		zap.Int("migrated", migrated),
		zap.Int("dropped", dropped),
	)
	if migrated > 0 {
		s.invalidateStats(ctx)
	}
	return migrated, nil
}

// BatchStatsRequest scopes a batch attendance aggregation: either a single
// date or a from/to range; all fields optional.
type BatchStatsRequest struct {
	Date     *time.Time
	DateFrom *time.Time
	DateTo   *time.Time
}

// BatchStats aggregates attendance for a batch over the requested dates.
// Percentage is 0 when no records match.
func (s *AttendanceService) BatchStats(ctx context.Context, batchID string, req BatchStatsRequest) (*models.BatchAttendanceStats, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	from, to := req.DateFrom, req.DateTo
	if req.Date != nil {
		from, to = req.Date, req.Date
	}

	key := batchStatsKey(batchID, from, to)
	if s.cache != nil {
		var cached models.BatchAttendanceStats
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	stats, err := s.repo.BatchStats(ctx, batchID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute batch stats")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache batch stats", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *AttendanceService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "stats:attendance:*"); err != nil {
		s.logger.Warn("failed to invalidate attendance stats cache", zap.Error(err))
	}
}

func batchStatsKey(batchID string, from, to *time.Time) string {
	f, t := "", ""
	if from != nil {
		f = from.Format(dateLayout)
	}
	if to != nil {
		t = to.Format(dateLayout)
	}
	return fmt.Sprintf("stats:attendance:%s:%s:%s", batchID, f, t)
}
