package models

import "time"

// Term models an academic term within the institution calendar. GradeDeadline
// is the cutoff after which ordinary grade submission is closed and only the
// change-request approval path may alter a grade.
type Term struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	AcademicYear  string     `db:"academic_year" json:"academic_year"`
	StartDate     time.Time  `db:"start_date" json:"start_date"`
	EndDate       time.Time  `db:"end_date" json:"end_date"`
	GradeDeadline *time.Time `db:"grade_deadline" json:"grade_deadline,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Ended reports whether the term has ended at the given instant.
func (t *Term) Ended(now time.Time) bool {
	return t != nil && now.After(t.EndDate)
}

// GradingClosed reports whether the ordinary grade submission window is shut.
func (t *Term) GradingClosed(now time.Time) bool {
	return t != nil && t.GradeDeadline != nil && now.After(*t.GradeDeadline)
}

// TermFilter defines filters supported by term list endpoints.
type TermFilter struct {
	AcademicYear string
	Page         int
	PageSize     int
}
