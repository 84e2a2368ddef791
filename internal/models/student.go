package models

import "time"

// Student represents a student enrolled at the academy.
type Student struct {
	ID         string    `db:"id" json:"id"`
	RollNumber string    `db:"roll_number" json:"roll_number"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      string    `db:"email" json:"email"`
	Phone      string    `db:"phone" json:"phone"`
	BatchID    *string   `db:"batch_id" json:"batch_id,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail extends a student row with batch metadata.
type StudentDetail struct {
	Student
	BatchName *string `db:"batch_name" json:"batch_name,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Search     string
	BatchID    string
	Unassigned bool
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// LegacyAttendanceEntry is one element of the embedded attendance array
// carried over from the legacy data model. Entries may be malformed:
// Date empty or Present missing. Malformed entries are dropped during
// migration, never surfaced as errors.
type LegacyAttendanceEntry struct {
	Date    string `json:"date"`
	Present *bool  `json:"present"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
