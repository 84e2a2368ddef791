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

type mockStudentRepo struct {
	students map[string]models.Student
	nextID   int
	deleted  []string
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, s := range m.students {
		if filter.BatchID != "" && (s.BatchID == nil || *s.BatchID != filter.BatchID) {
			continue
		}
		out = append(out, models.StudentDetail{Student: s})
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &models.StudentDetail{Student: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByRollNumber(ctx context.Context, rollNumber, excludeID string) (bool, error) {
	for _, s := range m.students {
		if s.RollNumber == rollNumber && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	m.nextID++
	student.ID = fmt.Sprintf("s%d", m.nextID)
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) AssignBatch(ctx context.Context, studentID string, batchID *string) error {
	s, ok := m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	s.BatchID = batchID
	m.students[studentID] = s
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockNotifier struct {
	assigned []string // "studentID->batchID"
}

func (m *mockNotifier) NotifyBatchAssigned(student *models.Student, batch *models.Batch) {
	m.assigned = append(m.assigned, student.ID+"->"+batch.ID)
}

func newStudentFixture() (*StudentService, *mockStudentRepo, *mockNotifier) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", RollNumber: "R1", FullName: "Asha Rao", Active: true},
		"s2": {ID: "s2", RollNumber: "R2", FullName: "Vikram Shetty", BatchID: strPtr("b1"), Active: true},
	}, nextID: 2}
	batches := &mockCalendarBatches{batches: map[string]models.Batch{
		"b1": {ID: "b1", Name: "Morning Batch", StartDate: date(2025, time.January, 6), DaysOfWeek: pq.StringArray{"Monday"}},
		"b2": {ID: "b2", Name: "Evening Batch", StartDate: date(2025, time.January, 6), DaysOfWeek: pq.StringArray{"Tuesday"}},
	}}
	notifier := &mockNotifier{}
	return NewStudentService(repo, batches, notifier, nil, nil, nil), repo, notifier
}

func TestStudentCreateRejectsDuplicateRoll(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), CreateStudentRequest{RollNumber: "R1", FullName: "Someone Else"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateWithBatchNotifies(t *testing.T) {
	svc, repo, notifier := newStudentFixture()

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		RollNumber: "R3", FullName: "Meera Iyer", Email: "meera@example.com", BatchID: strPtr("b1"),
	})
	require.NoError(t, err)
	assert.True(t, student.Active)
	assert.Contains(t, repo.students, student.ID)
	assert.Equal(t, []string{student.ID + "->b1"}, notifier.assigned)
}

func TestStudentCreateWithoutBatchSkipsNotification(t *testing.T) {
	svc, _, notifier := newStudentFixture()

	_, err := svc.Create(context.Background(), CreateStudentRequest{RollNumber: "R3", FullName: "Meera Iyer"})
	require.NoError(t, err)
	assert.Empty(t, notifier.assigned)
}

func TestStudentCreateUnknownBatch(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		RollNumber: "R3", FullName: "Meera Iyer", BatchID: strPtr("missing"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdateRollConflict(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.Update(context.Background(), "s1", UpdateStudentRequest{RollNumber: strPtr("R2")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdateKeepOwnRoll(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	detail, err := svc.Update(context.Background(), "s1", UpdateStudentRequest{
		RollNumber: strPtr("R1"), FullName: strPtr("Asha R Rao"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha R Rao", detail.FullName)
	assert.Equal(t, "Asha R Rao", repo.students["s1"].FullName)
}

func TestAssignBatchNotifiesOnlyWhenPreviouslyUnassigned(t *testing.T) {
	svc, repo, notifier := newStudentFixture()

	detail, err := svc.AssignBatch(context.Background(), "s1", "b1")
	require.NoError(t, err)
	require.NotNil(t, detail.BatchID)
	assert.Equal(t, "b1", *detail.BatchID)
	assert.Equal(t, []string{"s1->b1"}, notifier.assigned)

	// Batch-to-batch move does not re-notify.
	_, err = svc.AssignBatch(context.Background(), "s1", "b2")
	require.NoError(t, err)
	assert.Len(t, notifier.assigned, 1)
	require.NotNil(t, repo.students["s1"].BatchID)
	assert.Equal(t, "b2", *repo.students["s1"].BatchID)
}

func TestUnassignBatchKeepsAttendanceUntouched(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	detail, err := svc.UnassignBatch(context.Background(), "s2")
	require.NoError(t, err)
	assert.Nil(t, detail.BatchID)
	assert.Nil(t, repo.students["s2"].BatchID)
}

func TestStudentDelete(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Contains(t, repo.deleted, "s1")

	err := svc.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
