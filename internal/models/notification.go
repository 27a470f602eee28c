package models

import "time"

// EventKind labels a registrar notification event.
type EventKind string

// Event kinds emitted by the enrollment and grading engines.
const (
	EventEnrolled            EventKind = "enrolled"
	EventWaitlisted          EventKind = "waitlisted"
	EventPromoted            EventKind = "promoted"
	EventGradeSubmitted      EventKind = "grade_submitted"
	EventGradeChangeApproved EventKind = "grade_change_approved"
)

// Event is a fire-and-forget notification fact. The engines emit it and do
// not wait for delivery confirmation; delivery channels live outside this
// service.
type Event struct {
	Kind         EventKind `json:"kind"`
	EnrollmentID string    `json:"enrollment_id"`
	StudentID    string    `json:"student_id"`
	SectionID    string    `json:"section_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}
