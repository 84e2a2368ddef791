package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Weekday names accepted in a batch schedule, as stored in days_of_week.
var weekdayNumbers = map[string]int{
	"Sunday":    0,
	"Monday":    1,
	"Tuesday":   2,
	"Wednesday": 3,
	"Thursday":  4,
	"Friday":    5,
	"Saturday":  6,
}

// ValidWeekday reports whether name is one of the seven weekday names.
func ValidWeekday(name string) bool {
	_, ok := weekdayNumbers[name]
	return ok
}

// WeekdayNumber returns the Postgres DOW number (Sunday=0) for a weekday
// name and false when the name is not a weekday.
func WeekdayNumber(name string) (int, bool) {
	n, ok := weekdayNumbers[name]
	return n, ok
}

var canonicalWeekdays = map[string]string{
	"sunday":    "Sunday",
	"monday":    "Monday",
	"tuesday":   "Tuesday",
	"wednesday": "Wednesday",
	"thursday":  "Thursday",
	"friday":    "Friday",
	"saturday":  "Saturday",
}

// NormalizeWeekdays canonicalises, validates and deduplicates a weekday list
// preserving first-seen order. Unknown names are reported via ok=false.
func NormalizeWeekdays(days []string) ([]string, bool) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(days))
	for _, d := range days {
		name, known := canonicalWeekdays[strings.ToLower(strings.TrimSpace(d))]
		if !known {
			return nil, false
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, true
}

// Batch is a cohort of students sharing a fixed weekly class schedule.
type Batch struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	StartDate  time.Time      `db:"start_date" json:"start_date"`
	StartTime  string         `db:"start_time" json:"start_time"`
	EndTime    string         `db:"end_time" json:"end_time"`
	DaysOfWeek pq.StringArray `db:"days_of_week" json:"days_of_week"`
	Trainer    string         `db:"trainer" json:"trainer"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// HasWeekday reports whether the batch holds sessions on the given weekday.
func (b Batch) HasWeekday(name string) bool {
	for _, d := range b.DaysOfWeek {
		if d == name {
			return true
		}
	}
	return false
}

// BatchFilter scopes batch listing queries.
type BatchFilter struct {
	Search    string
	Trainer   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
