package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type mockTestRepository interface {
	List(ctx context.Context, filter models.MockTestFilter) ([]models.MockTest, int, error)
	FindByID(ctx context.Context, id string) (*models.MockTest, error)
	FindDefaultByLevel(ctx context.Context, level int) (*models.MockTest, error)
	EnsureDefaultLevels(ctx context.Context) (int, error)
	Create(ctx context.Context, test *models.MockTest) error
	Update(ctx context.Context, test *models.MockTest) error
	Delete(ctx context.Context, id string) error
}

type mockScoreReader interface {
	ListByMock(ctx context.Context, mockID string) ([]models.MockScore, error)
}

// MockTestService manages the test catalogue: the ten singleton level
// tests plus admin-created custom tests, and per-test statistics.
type MockTestService struct {
	repo      mockTestRepository
	scores    mockScoreReader
	cache     statsCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMockTestService constructs the mock test service.
func NewMockTestService(repo mockTestRepository, scores mockScoreReader, cache statsCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *MockTestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockTestService{
		repo:      repo,
		scores:    scores,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// EnsureDefaultLevels provisions missing level tests. Called at startup;
// returns how many tests were created.
func (s *MockTestService) EnsureDefaultLevels(ctx context.Context) (int, error) {
	created, err := s.repo.EnsureDefaultLevels(ctx)
	if err != nil {
		return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision level tests")
	}
	if created > 0 {
		s.logger.Info("level tests provisioned", zap.Int("created", created))
	}
	return created, nil
}

// List returns mock tests matching the filter with the total count.
func (s *MockTestService) List(ctx context.Context, filter models.MockTestFilter) ([]models.MockTest, int, error) {
	tests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list mock tests")
	}
	return tests, total, nil
}

// Get loads one mock test.
func (s *MockTestService) Get(ctx context.Context, id string) (*models.MockTest, error) {
	test, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mock test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mock test")
	}
	return test, nil
}

// CreateMockTestRequest is the payload for creating a custom mock test.
type CreateMockTestRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=120"`
	TestDate    string   `json:"test_date"`
	Description string   `json:"description" validate:"max=500"`
	BatchIDs    []string `json:"batch_ids"`
}

// Create adds a custom mock test. Level tests are never created through
// this path; they only come from EnsureDefaultLevels.
func (s *MockTestService) Create(ctx context.Context, req CreateMockTestRequest) (*models.MockTest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	var testDate *time.Time
	if req.TestDate != "" {
		parsed, err := time.Parse(dateLayout, req.TestDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid test date format, expected YYYY-MM-DD")
		}
		testDate = &parsed
	}

	test := &models.MockTest{
		Name:        req.Name,
		TestDate:    testDate,
		MaxScore:    models.MockTestMaxScore,
		Description: req.Description,
		BatchIDs:    pq.StringArray(req.BatchIDs),
		Status:      models.MockTestStatusScheduled,
	}
	if err := s.repo.Create(ctx, test); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create mock test")
	}
	s.logger.Info("mock test created", zap.String("mock_id", test.ID), zap.String("name", test.Name))
	return test, nil
}

// UpdateMockTestRequest is the payload for updating a mock test. Nil fields
// are left unchanged.
type UpdateMockTestRequest struct {
	Name        *string   `json:"name" validate:"omitempty,min=2,max=120"`
	TestDate    *string   `json:"test_date"`
	Description *string   `json:"description" validate:"omitempty,max=500"`
	BatchIDs    *[]string `json:"batch_ids"`
	Status      *string   `json:"status"`
}

// Update modifies a mock test. Default level tests accept date, description
// and batch assignment changes but keep their name, level and max score.
func (s *MockTestService) Update(ctx context.Context, id string, req UpdateMockTestRequest) (*models.MockTest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	test, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if test.IsDefaultLevel {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "level tests cannot be renamed")
		}
		test.Name = *req.Name
	}
	if req.TestDate != nil {
		if *req.TestDate == "" {
			test.TestDate = nil
		} else {
			parsed, err := time.Parse(dateLayout, *req.TestDate)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "invalid test date format, expected YYYY-MM-DD")
			}
			test.TestDate = &parsed
		}
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.BatchIDs != nil {
		test.BatchIDs = pq.StringArray(*req.BatchIDs)
	}
	if req.Status != nil {
		status := models.MockTestStatus(*req.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status")
		}
		test.Status = status
	}

	if err := s.repo.Update(ctx, test); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mock test not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mock test")
	}
	return test, nil
}

// Delete removes a custom mock test and its score entries. Level tests are
// singletons and cannot be deleted.
func (s *MockTestService) Delete(ctx context.Context, id string) error {
	test, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if test.IsDefaultLevel {
		return appErrors.Clone(appErrors.ErrInvalidState, "level tests cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "mock test not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete mock test")
	}
	s.logger.Info("mock test deleted", zap.String("mock_id", id))
	s.invalidateStats(ctx)
	return nil
}

// Stats aggregates score entries for one mock test. Entries of deleted
// students are already excluded by the score reader.
func (s *MockTestService) Stats(ctx context.Context, mockID string) (*models.MockTestStats, error) {
	if _, err := s.Get(ctx, mockID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("stats:mock:%s", mockID)
	if s.cache != nil {
		var cached models.MockTestStats
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	entries, err := s.scores.ListByMock(ctx, mockID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}
	stats := ComputeMockTestStats(mockID, entries)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache mock stats", zap.Error(err))
		}
	}
	return stats, nil
}

// ComputeMockTestStats aggregates score entries. Absent and pending entries
// count toward totals but not toward average, high, low, pass or fail. All
// numeric fields stay 0 when no scored entries exist.
func ComputeMockTestStats(mockID string, entries []models.MockScore) *models.MockTestStats {
	stats := &models.MockTestStats{MockID: mockID, TotalStudents: len(entries)}
	sum, scored := 0, 0
	for _, entry := range entries {
		outcome := entry.Outcome()
		switch outcome.Kind {
		case models.OutcomeAbsent:
			stats.AbsentCount++
		case models.OutcomeScored:
			score := outcome.Score
			sum += score
			scored++
			if scored == 1 || score > stats.HighestScore {
				stats.HighestScore = score
			}
			if scored == 1 || score < stats.LowestScore {
				stats.LowestScore = score
			}
			if score >= models.PassingScore {
				stats.PassCount++
			} else {
				stats.FailCount++
			}
		}
	}
	if scored > 0 {
		stats.AverageScore = float64(sum) / float64(scored)
	}
	return stats
}

func (s *MockTestService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "stats:mock:*"); err != nil {
		s.logger.Warn("failed to invalidate mock stats cache", zap.Error(err))
	}
}
