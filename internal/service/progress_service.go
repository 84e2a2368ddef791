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

type progressScoreRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.MockScore, error)
	Upsert(ctx context.Context, entry *models.MockScore) (*models.MockScore, error)
}

type progressMockReader interface {
	FindByID(ctx context.Context, id string) (*models.MockTest, error)
	List(ctx context.Context, filter models.MockTestFilter) ([]models.MockTest, int, error)
}

type progressStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type progressAttendanceReader interface {
	ExistsForDate(ctx context.Context, studentID string, date time.Time) (bool, error)
}

// ProgressService derives level progression from score entries and gates
// new level-test scores. Progress is never stored; it is recomputed from
// the score entries on every read.
type ProgressService struct {
	scores     progressScoreRepository
	mocks      progressMockReader
	students   progressStudentReader
	attendance progressAttendanceReader
	cache      statsCache
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProgressService constructs the progress service.
func NewProgressService(scores progressScoreRepository, mocks progressMockReader, students progressStudentReader, attendance progressAttendanceReader, cache statsCache, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		scores:     scores,
		mocks:      mocks,
		students:   students,
		attendance: attendance,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// Passed reports whether a score entry clears a level: present and scoring
// at least the passing mark. Absent and pending entries never pass.
func Passed(entry models.MockScore) bool {
	outcome := entry.Outcome()
	return outcome.Kind == models.OutcomeScored && outcome.Score >= models.PassingScore
}

// CurrentLevel returns the lowest level in 1..NumLevels not yet passed, or
// 0 when every level is passed. This is the strict sequential rule: passing
// a later level out of order does not advance the current level.
func CurrentLevel(passed map[int]bool) int {
	for level := 1; level <= models.NumLevels; level++ {
		if !passed[level] {
			return level
		}
	}
	return 0
}

// LevelStates derives the per-level state vector. A level is reachable
// (OPEN) when the level below it is passed even if it is not the current
// level, which only happens when passes are non-contiguous.
func LevelStates(passed map[int]bool) []models.LevelState {
	current := CurrentLevel(passed)
	states := make([]models.LevelState, models.NumLevels)
	for level := 1; level <= models.NumLevels; level++ {
		switch {
		case passed[level]:
			states[level-1] = models.LevelPassed
		case level == current:
			states[level-1] = models.LevelCurrent
		case level == 1 || passed[level-1]:
			states[level-1] = models.LevelOpen
		default:
			states[level-1] = models.LevelLocked
		}
	}
	return states
}

// GetProgress computes the full progression snapshot for a student.
// LatestAttempt is the most recent entry on the level just below the
// current one: the attempt that got the student here. It is nil for a
// student still on level 1.
func (s *ProgressService) GetProgress(ctx context.Context, studentID string) (*models.LevelProgress, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	levelOf, err := s.defaultLevelIndex(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.scores.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}

	passed := make(map[int]bool, models.NumLevels)
	for i := range entries {
		level, ok := levelOf[entries[i].MockID]
		if !ok {
			continue
		}
		if Passed(entries[i]) {
			passed[level] = true
		}
	}

	completed := 0
	for level := 1; level <= models.NumLevels; level++ {
		if passed[level] {
			completed++
		}
	}

	current := CurrentLevel(passed)
	previous := current - 1
	if current == 0 {
		previous = models.NumLevels
	}
	var latest *models.MockScore
	if previous >= 1 {
		for i := range entries {
			if levelOf[entries[i].MockID] != previous {
				continue
			}
			if latest == nil || entries[i].TestDate.After(latest.TestDate) {
				latest = &entries[i]
			}
		}
	}

	return &models.LevelProgress{
		StudentID:       studentID,
		CurrentLevel:    current,
		CompletedLevels: completed,
		Levels:          LevelStates(passed),
		LatestAttempt:   latest,
	}, nil
}

// RecordScoreRequest is the payload for recording one score entry.
type RecordScoreRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	MockID      string `json:"mock_id" validate:"required"`
	Score       *int   `json:"score"`
	Absent      bool   `json:"absent"`
	TestDate    string `json:"test_date" validate:"required"`
	SubmittedBy string `json:"submitted_by" validate:"required"`
}

// RecordScore saves a score entry, replacing any earlier entry for the same
// (student, test) pair. For default level tests attendance on the test date
// must already be marked, and the level must be reachable: recording against
// a locked level is rejected rather than silently creating an unreachable
// pass.
func (s *ProgressService) RecordScore(ctx context.Context, req RecordScoreRequest) (*models.MockScore, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if !req.Absent && req.Score == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score is required unless the student was absent")
	}
	if req.Absent && req.Score != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an absent entry cannot carry a score")
	}
	testDate, err := time.Parse(dateLayout, req.TestDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid test date format, expected YYYY-MM-DD")
	}

	test, err := s.mocks.FindByID(ctx, req.MockID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mock test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mock test")
	}
	if req.Score != nil && (*req.Score < 0 || *req.Score > test.MaxScore) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score must be between 0 and %d", test.MaxScore))
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if test.IsDefaultLevel && test.Level != nil {
		marked, err := s.attendance.ExistsForDate(ctx, req.StudentID, testDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
		}
		if !marked {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "mark attendance first")
		}
		if err := s.checkLevelReachable(ctx, req.StudentID, *test.Level); err != nil {
			return nil, err
		}
	}

	entry := &models.MockScore{
		StudentID:   req.StudentID,
		MockID:      req.MockID,
		Score:       req.Score,
		Absent:      req.Absent,
		TestDate:    testDate,
		SubmittedBy: req.SubmittedBy,
	}
	stored, err := s.scores.Upsert(ctx, entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save score")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "stats:mock:*"); err != nil {
			s.logger.Warn("failed to invalidate mock stats cache", zap.Error(err))
		}
	}
	s.logger.Info("score recorded",
		zap.String("student_id", req.StudentID),
		zap.String("mock_id", req.MockID),
		zap.Bool("absent", req.Absent),
	)
	return stored, nil
}

// StudentScores lists a student's score entries, oldest first.
func (s *ProgressService) StudentScores(ctx context.Context, studentID string) ([]models.MockScore, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	entries, err := s.scores.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}
	return entries, nil
}

func (s *ProgressService) checkLevelReachable(ctx context.Context, studentID string, level int) error {
	if level < 1 || level > models.NumLevels {
		return appErrors.Clone(appErrors.ErrValidation, "level out of range")
	}
	progress, err := s.GetProgress(ctx, studentID)
	if err != nil {
		return err
	}
	if progress.Levels[level-1] == models.LevelLocked {
		return appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("level %d is locked, student is at level %d", level, progress.CurrentLevel))
	}
	return nil
}

// defaultLevelIndex maps default test ids to their ladder level.
func (s *ProgressService) defaultLevelIndex(ctx context.Context) (map[string]int, error) {
	tests, _, err := s.mocks.List(ctx, models.MockTestFilter{DefaultsOnly: true, PageSize: models.NumLevels})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list level tests")
	}
	index := make(map[string]int, len(tests))
	for _, test := range tests {
		if test.Level != nil {
			index[test.ID] = *test.Level
		}
	}
	return index, nil
}
