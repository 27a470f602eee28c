package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. COMPLETED and WITHDRAWN are terminal for the
// capacity engine; grading still acts on COMPLETED enrollments.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
)

// Active reports whether the status counts against the one-active-enrollment
// uniqueness rule for a (student, section) pair.
func (s EnrollmentStatus) Active() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusWaitlisted
}

// Enrollment joins a student to a course section. EnrolledAt is the FIFO
// ordering key for waitlist promotion. CompletedAt is set once, the first
// time the enrollment transitions to COMPLETED, and never moves afterwards.
// Enrollments are never physically deleted; withdrawal is a status change.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Grade       *Grade           `db:"grade" json:"grade,omitempty"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	WithdrawnAt *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and section context.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentNo   string `db:"student_no" json:"student_no"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	TermName    string `db:"term_name" json:"term_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	TermID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// GradedCredit pairs a completed enrollment's grade with the course credits
// it carries. It is the input row for the GPA aggregator.
type GradedCredit struct {
	Grade   Grade `db:"grade"`
	Credits int   `db:"credits"`
}

// TranscriptRow is one completed, graded enrollment on a transcript.
type TranscriptRow struct {
	CourseCode  string     `db:"course_code" json:"course_code"`
	CourseTitle string     `db:"course_title" json:"course_title"`
	TermName    string     `db:"term_name" json:"term_name"`
	Credits     int        `db:"credits" json:"credits"`
	Grade       *Grade     `db:"grade" json:"grade,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Transcript aggregates a student's academic record.
type Transcript struct {
	StudentID   string          `json:"student_id"`
	StudentNo   string          `json:"student_no"`
	StudentName string          `json:"student_name"`
	GPA         float64         `json:"gpa"`
	Rows        []TranscriptRow `json:"rows"`
	GeneratedAt time.Time       `json:"generated_at"`
}
