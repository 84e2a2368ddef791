package models

import "time"

// MigratedFromLegacy tags attendance rows produced by the legacy migration.
const MigratedFromLegacy = "legacy"

// AttendanceRecord is the normalized attendance row: at most one per
// (student, date), enforced by a unique constraint so a new mark replaces
// rather than duplicates. Generated distinguishes absent-by-default rows
// produced by reconciliation from explicit marks: a manual mark on the
// same date clears the flag, so an explicit "absent" is never mistaken
// for a generated row when schedules are pruned.
type AttendanceRecord struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Date         time.Time `db:"date" json:"date"`
	Present      bool      `db:"present" json:"present"`
	Generated    bool      `db:"generated" json:"generated"`
	BatchID      *string   `db:"batch_id" json:"batch_id,omitempty"`
	MigratedFrom *string   `db:"migrated_from" json:"migrated_from,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter scopes attendance listing queries.
type AttendanceFilter struct {
	StudentID string
	BatchID   string
	DateFrom  *time.Time
	DateTo    *time.Time
	Present   *bool
}

// BatchAttendanceStats summarises attendance for a batch over a date range.
// Percentage is 0 when Total is 0.
type BatchAttendanceStats struct {
	BatchID    string  `json:"batch_id"`
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Percentage float64 `json:"percentage"`
}
