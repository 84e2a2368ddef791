package models

// Level ladder constants. Passing requires a non-absent score of at least
// PassingScore; progression through the ten levels is strictly sequential.
const (
	NumLevels    = 10
	PassingScore = 6
)

// LevelState is the derived state of one ladder level for a student.
type LevelState string

const (
	LevelLocked  LevelState = "LOCKED"
	LevelCurrent LevelState = "CURRENT"
	LevelPassed  LevelState = "PASSED"
	// LevelOpen marks a level that is reachable but neither current nor
	// passed. Only possible for levels below a non-contiguous pass.
	LevelOpen LevelState = "OPEN"
)

// LevelProgress is the derived progress snapshot for a student. It is
// recomputed from score entries on every read and never stored.
type LevelProgress struct {
	StudentID string `json:"student_id"`
	// CurrentLevel is the lowest level not yet passed (strict sequential
	// rule); 0 once all ten levels are passed.
	CurrentLevel int `json:"current_level"`
	// CompletedLevels counts levels passed anywhere in 1..10, contiguous
	// or not. Display metric only; it never drives gating.
	CompletedLevels int        `json:"completed_levels"`
	Levels          []LevelState `json:"levels"`
	LatestAttempt   *MockScore   `json:"latest_attempt,omitempty"`
}
