package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arka-labs/academy-api/internal/models"
	appErrors "github.com/arka-labs/academy-api/pkg/errors"
)

type mockBatchRepo struct {
	batches map[string]models.Batch
	nextID  int
}

func (m *mockBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	var out []models.Batch
	for _, b := range m.batches {
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *mockBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	if m.batches == nil {
		m.batches = make(map[string]models.Batch)
	}
	m.nextID++
	batch.ID = fmt.Sprintf("b%d", m.nextID)
	m.batches[batch.ID] = *batch
	return nil
}

func (m *mockBatchRepo) Update(ctx context.Context, batch *models.Batch) error {
	if _, ok := m.batches[batch.ID]; !ok {
		return sql.ErrNoRows
	}
	m.batches[batch.ID] = *batch
	return nil
}

func (m *mockBatchRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.batches[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.batches, id)
	return nil
}

type mockBatchStudents struct {
	byBatch    map[string][]string
	unassigned []string
}

func (m *mockBatchStudents) UnassignBatch(ctx context.Context, batchID string) error {
	m.unassigned = append(m.unassigned, batchID)
	delete(m.byBatch, batchID)
	return nil
}

func (m *mockBatchStudents) ListIDsByBatch(ctx context.Context, batchID string) ([]string, error) {
	return m.byBatch[batchID], nil
}

type pruneCall struct {
	batchID  string
	weekdays []string
}

type beforeCall struct {
	batchID string
	before  time.Time
}

type mockAttendancePruner struct {
	allCalls       []pruneCall
	generatedCalls []pruneCall
	beforeCalls    []beforeCall
}

func (m *mockAttendancePruner) DeleteByBatchWeekdays(ctx context.Context, batchID string, weekdays []string) (int, error) {
	m.allCalls = append(m.allCalls, pruneCall{batchID: batchID, weekdays: weekdays})
	return len(weekdays), nil
}

func (m *mockAttendancePruner) DeleteGeneratedByBatchWeekdays(ctx context.Context, batchID string, weekdays []string) (int, error) {
	m.generatedCalls = append(m.generatedCalls, pruneCall{batchID: batchID, weekdays: weekdays})
	return len(weekdays), nil
}

func (m *mockAttendancePruner) DeleteGeneratedByBatchBefore(ctx context.Context, batchID string, before time.Time) (int, error) {
	m.beforeCalls = append(m.beforeCalls, beforeCall{batchID: batchID, before: before})
	return 1, nil
}

func newBatchFixture() (*BatchService, *mockBatchRepo, *mockBatchStudents, *mockAttendancePruner) {
	repo := &mockBatchRepo{batches: map[string]models.Batch{
		"b1": {
			ID:         "b1",
			Name:       "Morning Batch",
			StartDate:  date(2025, time.January, 6),
			StartTime:  "07:00",
			EndTime:    "08:30",
			DaysOfWeek: pq.StringArray{"Monday", "Wednesday", "Friday"},
		},
	}}
	students := &mockBatchStudents{byBatch: map[string][]string{"b1": {"s1", "s2"}}}
	pruner := &mockAttendancePruner{}
	return NewBatchService(repo, students, pruner, nil, nil, nil), repo, students, pruner
}

func TestBatchCreateNormalizesWeekdays(t *testing.T) {
	svc, repo, _, _ := newBatchFixture()

	batch, err := svc.Create(context.Background(), CreateBatchRequest{
		Name:       "Evening Batch",
		StartDate:  "2025-02-03",
		StartTime:  "18:00",
		EndTime:    "19:30",
		DaysOfWeek: []string{"monday", "TUESDAY", "Monday"},
	})
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"Monday", "Tuesday"}, batch.DaysOfWeek)
	assert.Contains(t, repo.batches, batch.ID)
}

func TestBatchCreateRejectsBadInput(t *testing.T) {
	svc, _, _, _ := newBatchFixture()

	_, err := svc.Create(context.Background(), CreateBatchRequest{
		Name: "Evening Batch", StartDate: "2025-02-03", StartTime: "18:00", EndTime: "19:30",
		DaysOfWeek: []string{"Funday"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateBatchRequest{
		Name: "Evening Batch", StartDate: "2025-02-03", StartTime: "6pm", EndTime: "19:30",
		DaysOfWeek: []string{"Monday"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchUpdateSchedulePrunesRemovedDays(t *testing.T) {
	svc, _, _, pruner := newBatchFixture()

	days := []string{"Monday", "Wednesday"}
	batch, err := svc.Update(context.Background(), "b1", UpdateBatchRequest{DaysOfWeek: &days})
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"Monday", "Wednesday"}, batch.DaysOfWeek)

	// Only the generated still-absent rows on Friday go; explicit marks stay.
	require.Len(t, pruner.generatedCalls, 1)
	assert.Equal(t, "b1", pruner.generatedCalls[0].batchID)
	assert.Equal(t, []string{"Friday"}, pruner.generatedCalls[0].weekdays)
	assert.Empty(t, pruner.allCalls)
}

func TestBatchUpdateScheduleGrowDoesNotPrune(t *testing.T) {
	svc, _, _, pruner := newBatchFixture()

	days := []string{"Monday", "Wednesday", "Friday", "Saturday"}
	_, err := svc.Update(context.Background(), "b1", UpdateBatchRequest{DaysOfWeek: &days})
	require.NoError(t, err)
	assert.Empty(t, pruner.generatedCalls)
	assert.Empty(t, pruner.allCalls)
}

func TestBatchUpdateStartDateForwardPrunesEarlierGenerated(t *testing.T) {
	svc, _, _, pruner := newBatchFixture()

	start := "2025-02-03"
	_, err := svc.Update(context.Background(), "b1", UpdateBatchRequest{StartDate: &start})
	require.NoError(t, err)

	// Generated rows before the new start are no longer session dates.
	require.Len(t, pruner.beforeCalls, 1)
	assert.Equal(t, "b1", pruner.beforeCalls[0].batchID)
	assert.Equal(t, date(2025, time.February, 3), pruner.beforeCalls[0].before)
	assert.Empty(t, pruner.allCalls)
}

func TestBatchUpdateStartDateBackwardDoesNotPrune(t *testing.T) {
	svc, _, _, pruner := newBatchFixture()

	start := "2024-12-01"
	_, err := svc.Update(context.Background(), "b1", UpdateBatchRequest{StartDate: &start})
	require.NoError(t, err)
	assert.Empty(t, pruner.beforeCalls)
}

func TestBatchUpdateNameOnlyLeavesAttendanceAlone(t *testing.T) {
	svc, repo, _, pruner := newBatchFixture()

	name := "Morning Batch A"
	batch, err := svc.Update(context.Background(), "b1", UpdateBatchRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, batch.Name)
	assert.Equal(t, name, repo.batches["b1"].Name)
	assert.Empty(t, pruner.generatedCalls)
}

func TestBatchDeletePrunesAndUnassigns(t *testing.T) {
	svc, repo, students, pruner := newBatchFixture()

	require.NoError(t, svc.Delete(context.Background(), "b1"))

	assert.NotContains(t, repo.batches, "b1")
	assert.Contains(t, students.unassigned, "b1")
	require.Len(t, pruner.allCalls, 1)
	assert.Equal(t, []string{"Monday", "Wednesday", "Friday"}, pruner.allCalls[0].weekdays)
}

func TestBatchDeleteUnknown(t *testing.T) {
	svc, _, _, _ := newBatchFixture()
	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBatchStudentIDs(t *testing.T) {
	svc, _, _, _ := newBatchFixture()
	ids, err := svc.StudentIDs(context.Background(), "b1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
}
