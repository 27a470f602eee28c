package models

import "time"

// CourseSection is a scheduled offering of a course within a term with a
// fixed seat capacity. Capacity may be raised by an approved scheduling
// override, which frees seats for waitlist promotion.
type CourseSection struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	TermID       string    `db:"term_id" json:"term_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	Capacity     int       `db:"capacity" json:"capacity"`
	Schedule     string    `db:"schedule" json:"schedule"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail extends CourseSection with catalog and occupancy context.
type SectionDetail struct {
	CourseSection
	CourseCode     string `db:"course_code" json:"course_code"`
	CourseTitle    string `db:"course_title" json:"course_title"`
	Credits        int    `db:"credits" json:"credits"`
	TermName       string `db:"term_name" json:"term_name"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
	WaitlistCount  int    `db:"waitlist_count" json:"waitlist_count"`
}

// SectionFilter defines filters for listing sections.
type SectionFilter struct {
	CourseID     string
	TermID       string
	InstructorID string
	Page         int
	PageSize     int
}
