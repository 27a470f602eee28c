package models

import "time"

// Grade is a symbol from the institutional grading scale.
type Grade string

// Grade symbols recognised by the default scale.
const (
	GradeA          Grade = "A"
	GradeAMinus     Grade = "A-"
	GradeBPlus      Grade = "B+"
	GradeB          Grade = "B"
	GradeBMinus     Grade = "B-"
	GradeCPlus      Grade = "C+"
	GradeC          Grade = "C"
	GradeCMinus     Grade = "C-"
	GradeDPlus      Grade = "D+"
	GradeD          Grade = "D"
	GradeF          Grade = "F"
	GradeWithdrawal Grade = "W"
	GradeIncomplete Grade = "I"
	GradePass       Grade = "P"
	GradeNoPass     Grade = "NP"
)

// GradeScale maps grade symbols to optional GPA point values. A nil point
// value marks the symbol as GPA-neutral (withdrawal, incomplete, pass/no-pass).
// The scale is an immutable value injected into the grading and GPA services
// rather than a package-level singleton, so institutions can swap scales.
type GradeScale map[Grade]*float64

// DefaultGradeScale returns the standard 4.0 letter-grade scale.
func DefaultGradeScale() GradeScale {
	points := func(v float64) *float64 { return &v }
	return GradeScale{
		GradeA:          points(4.0),
		GradeAMinus:     points(3.7),
		GradeBPlus:      points(3.3),
		GradeB:          points(3.0),
		GradeBMinus:     points(2.7),
		GradeCPlus:      points(2.3),
		GradeC:          points(2.0),
		GradeCMinus:     points(1.7),
		GradeDPlus:      points(1.3),
		GradeD:          points(1.0),
		GradeF:          points(0.0),
		GradeWithdrawal: nil,
		GradeIncomplete: nil,
		GradePass:       nil,
		GradeNoPass:     nil,
	}
}

// Valid reports whether the symbol is part of the scale.
func (s GradeScale) Valid(g Grade) bool {
	_, ok := s[g]
	return ok
}

// Points returns the GPA point value for the symbol. The second return is
// false for unknown or GPA-neutral symbols.
func (s GradeScale) Points(g Grade) (float64, bool) {
	p, ok := s[g]
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}

// GradeChangeStatus is the lifecycle state of a grade change request.
type GradeChangeStatus string

// Grade change request statuses.
const (
	GradeChangePending  GradeChangeStatus = "PENDING"
	GradeChangeApproved GradeChangeStatus = "APPROVED"
	GradeChangeDenied   GradeChangeStatus = "DENIED"
)

// GradeChangeRequest is an audited proposal to alter an already submitted
// grade after the ordinary submission window has closed.
type GradeChangeRequest struct {
	ID           string            `db:"id" json:"id"`
	EnrollmentID string            `db:"enrollment_id" json:"enrollment_id"`
	OldGrade     Grade             `db:"old_grade" json:"old_grade"`
	NewGrade     Grade             `db:"new_grade" json:"new_grade"`
	Reason       string            `db:"reason" json:"reason"`
	Status       GradeChangeStatus `db:"status" json:"status"`
	RequestedBy  string            `db:"requested_by" json:"requested_by"`
	ApprovedBy   *string           `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	DenialReason *string           `db:"denial_reason" json:"denial_reason,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}
