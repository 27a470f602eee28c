package models

import "time"

// StudentStatus describes a student's administrative standing.
type StudentStatus string

// Student standings. Only ACTIVE students may enroll.
const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusSuspended StudentStatus = "SUSPENDED"
	StudentStatusGraduated StudentStatus = "GRADUATED"
)

// Student represents a learner registered with the institution. The GPA
// field is a derived aggregate; it is written only by the GPA recalculation
// path, never by profile updates.
type Student struct {
	ID        string        `db:"id" json:"id"`
	StudentNo string        `db:"student_no" json:"student_no"`
	FullName  string        `db:"full_name" json:"full_name"`
	Email     string        `db:"email" json:"email"`
	Status    StudentStatus `db:"status" json:"status"`
	GPA       float64       `db:"gpa" json:"gpa"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the student may create new enrollments.
func (s *Student) Eligible() bool {
	return s != nil && s.Status == StudentStatusActive
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
