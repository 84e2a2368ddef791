package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type mockMockTestRepo struct {
	mockMockRepo
	ensured int
	deleted []string
}

func (m *mockMockTestRepo) FindDefaultByLevel(ctx context.Context, level int) (*models.MockTest, error) {
	for _, t := range m.tests {
		if t.IsDefaultLevel && t.Level != nil && *t.Level == level {
			return &t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockMockTestRepo) EnsureDefaultLevels(ctx context.Context) (int, error) {
	created := 0
	for level := 1; level <= models.NumLevels; level++ {
		if _, err := m.FindDefaultByLevel(ctx, level); err == nil {
			continue
		}
		lv := level
		id := fmt.Sprintf("L%d", level)
		m.tests[id] = models.MockTest{ID: id, IsDefaultLevel: true, Level: &lv, MaxScore: models.MockTestMaxScore}
		created++
	}
	m.ensured++
	return created, nil
}

func (m *mockMockTestRepo) Create(ctx context.Context, test *models.MockTest) error {
	if test.ID == "" {
		test.ID = "generated"
	}
	m.tests[test.ID] = *test
	return nil
}

func (m *mockMockTestRepo) Update(ctx context.Context, test *models.MockTest) error {
	if _, ok := m.tests[test.ID]; !ok {
		return sql.ErrNoRows
	}
	m.tests[test.ID] = *test
	return nil
}

func (m *mockMockTestRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.tests[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.tests, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newMockTestFixture() (*MockTestService, *mockMockTestRepo, *mockScoreRepo) {
	repo := &mockMockTestRepo{mockMockRepo: *levelTestsFixture()}
	scores := &mockScoreRepo{entries: make(map[string]models.MockScore)}
	return NewMockTestService(repo, scores, nil, 0, nil, nil), repo, scores
}

func TestComputeMockTestStats(t *testing.T) {
	entries := []models.MockScore{
		{StudentID: "a", Score: intPtr(8)},
		{StudentID: "b", Score: intPtr(4)},
		{StudentID: "c", Score: intPtr(6)},
		{StudentID: "d", Absent: true},
	}
	stats := ComputeMockTestStats("m1", entries)

	assert.Equal(t, 4, stats.TotalStudents)
	assert.Equal(t, 1, stats.AbsentCount)
	assert.Equal(t, 2, stats.PassCount)
	assert.Equal(t, 1, stats.FailCount)
	assert.Equal(t, 8, stats.HighestScore)
	assert.Equal(t, 4, stats.LowestScore)
	assert.InDelta(t, 6.0, stats.AverageScore, 0.001)
}

func TestComputeMockTestStatsNoScoredEntries(t *testing.T) {
	stats := ComputeMockTestStats("m1", []models.MockScore{{StudentID: "a", Absent: true}})
	assert.Equal(t, 1, stats.TotalStudents)
	assert.Equal(t, 1, stats.AbsentCount)
	assert.Zero(t, stats.AverageScore)
	assert.Zero(t, stats.HighestScore)
	assert.Zero(t, stats.LowestScore)
	assert.Zero(t, stats.PassCount)
}

func TestComputeMockTestStatsEmpty(t *testing.T) {
	stats := ComputeMockTestStats("m1", nil)
	assert.Zero(t, stats.TotalStudents)
	assert.Zero(t, stats.AverageScore)
}

func TestMockTestDeleteProtectsLevelTests(t *testing.T) {
	svc, repo, _ := newMockTestFixture()

	err := svc.Delete(context.Background(), "L1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestMockTestDeleteCustom(t *testing.T) {
	svc, repo, _ := newMockTestFixture()
	repo.tests["c1"] = models.MockTest{ID: "c1", Name: "Custom", Status: models.MockTestStatusScheduled}

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Contains(t, repo.deleted, "c1")
}

func TestMockTestUpdateProtectsLevelTestName(t *testing.T) {
	svc, _, _ := newMockTestFixture()

	name := "Renamed"
	_, err := svc.Update(context.Background(), "L1", UpdateMockTestRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestMockTestCreateUsesFixedMaxScore(t *testing.T) {
	svc, repo, _ := newMockTestFixture()

	test, err := svc.Create(context.Background(), CreateMockTestRequest{Name: "Midterm Mock"})
	require.NoError(t, err)
	assert.Equal(t, models.MockTestMaxScore, test.MaxScore)
	assert.False(t, test.IsDefaultLevel)
	assert.Equal(t, models.MockTestStatusScheduled, repo.tests[test.ID].Status)
}

func TestMockTestStatsFromScores(t *testing.T) {
	svc, _, scores := newMockTestFixture()
	scores.entries[scoreKey("a", "L1")] = models.MockScore{StudentID: "a", MockID: "L1", Score: intPtr(10)}
	scores.entries[scoreKey("b", "L1")] = models.MockScore{StudentID: "b", MockID: "L1", Absent: true}

	stats, err := svc.Stats(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalStudents)
	assert.Equal(t, 1, stats.PassCount)
	assert.Equal(t, 1, stats.AbsentCount)
}

func TestEnsureDefaultLevelsIdempotent(t *testing.T) {
	repo := &mockMockTestRepo{mockMockRepo: mockMockRepo{tests: make(map[string]models.MockTest)}}
	scores := &mockScoreRepo{}
	svc := NewMockTestService(repo, scores, nil, 0, nil, nil)

	created, err := svc.EnsureDefaultLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.NumLevels, created)

	created, err = svc.EnsureDefaultLevels(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
}
