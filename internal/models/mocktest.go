package models

import (
	"time"

	"github.com/lib/pq"
)

// MockTestMaxScore is the fixed maximum score for every mock test.
const MockTestMaxScore = 10

// MockTestStatus represents the lifecycle state of a mock test.
type MockTestStatus string

const (
	MockTestStatusScheduled MockTestStatus = "SCHEDULED"
	MockTestStatusCompleted MockTestStatus = "COMPLETED"
	MockTestStatusCancelled MockTestStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s MockTestStatus) Valid() bool {
	switch s {
	case MockTestStatusScheduled, MockTestStatusCompleted, MockTestStatusCancelled:
		return true
	default:
		return false
	}
}

// MockTest is either one of the ten canonical level tests
// (IsDefaultLevel=true, Level set) or an admin-created custom test.
type MockTest struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	TestDate       *time.Time     `db:"test_date" json:"test_date,omitempty"`
	MaxScore       int            `db:"max_score" json:"max_score"`
	Description    string         `db:"description" json:"description"`
	BatchIDs       pq.StringArray `db:"batch_ids" json:"batch_ids"`
	IsDefaultLevel bool           `db:"is_default_level" json:"is_default_level"`
	Level          *int           `db:"level" json:"level,omitempty"`
	Status         MockTestStatus `db:"status" json:"status"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// MockTestFilter scopes mock test listing queries.
type MockTestFilter struct {
	BatchID      string
	DefaultsOnly bool
	CustomOnly   bool
	Status       *MockTestStatus
	Page         int
	PageSize     int
}

// MockScore is a student's score entry for one mock test: at most one per
// (student, mock test), enforced by a unique constraint. Score is null when
// the student was absent.
type MockScore struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	MockID      string    `db:"mock_id" json:"mock_id"`
	Score       *int      `db:"score" json:"score,omitempty"`
	Absent      bool      `db:"absent" json:"absent"`
	TestDate    time.Time `db:"test_date" json:"test_date"`
	SubmittedBy string    `db:"submitted_by" json:"submitted_by"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
}

// Outcome classifies the entry as Scored, Absent or Pending.
func (s MockScore) Outcome() ScoreOutcome {
	switch {
	case s.Absent:
		return ScoreOutcome{Kind: OutcomeAbsent}
	case s.Score != nil:
		return ScoreOutcome{Kind: OutcomeScored, Score: *s.Score}
	default:
		return ScoreOutcome{Kind: OutcomePending}
	}
}

// OutcomeKind discriminates ScoreOutcome variants.
type OutcomeKind string

const (
	OutcomeScored  OutcomeKind = "SCORED"
	OutcomeAbsent  OutcomeKind = "ABSENT"
	OutcomePending OutcomeKind = "PENDING"
)

// ScoreOutcome is the tagged-variant view of a score entry. Score is only
// meaningful when Kind is OutcomeScored.
type ScoreOutcome struct {
	Kind  OutcomeKind `json:"kind"`
	Score int         `json:"score,omitempty"`
}

// MockTestStats aggregates score entries for one mock test. All numeric
// fields are 0 when no valid scores exist.
type MockTestStats struct {
	MockID        string  `json:"mock_id"`
	AverageScore  float64 `json:"average_score"`
	HighestScore  int     `json:"highest_score"`
	LowestScore   int     `json:"lowest_score"`
	TotalStudents int     `json:"total_students"`
	AbsentCount   int     `json:"absent_count"`
	PassCount     int     `json:"pass_count"`
	FailCount     int     `json:"fail_count"`
}
