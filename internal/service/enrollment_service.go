package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/internal/repository"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, enrollment *models.Enrollment, requested models.EnrollmentStatus) (*models.Enrollment, error)
	PromoteFromWaitlist(ctx context.Context, sectionID string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Withdraw(ctx context.Context, id string, withdrawnAt time.Time) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListWaitlist(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
}

type termBySectionReader interface {
	FindBySection(ctx context.Context, sectionID string) (*models.Term, error)
}

type enrollmentMetrics interface {
	RecordEnrollment(status models.EnrollmentStatus)
	RecordPromotion()
}

// EnrollRequest describes an enrollment creation request. RequestedStatus is
// optional; when set it must be ENROLLED or WAITLISTED.
type EnrollRequest struct {
	StudentID       string `json:"student_id" validate:"required"`
	SectionID       string `json:"section_id" validate:"required"`
	RequestedStatus string `json:"requested_status" validate:"omitempty,oneof=ENROLLED WAITLISTED"`
}

// EnrollmentService is the capacity engine. It owns the enrolled/waitlisted
// state of (student, section) pairs; the capacity arbitration itself runs
// under a section lock inside the repository so concurrent requests for the
// last seat serialize.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	sections  sectionReader
	terms     termBySectionReader
	notifier  Notifier
	metrics   enrollmentMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, sections sectionReader, terms termBySectionReader, notifier Notifier, metrics enrollmentMetrics, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &EnrollmentService{repo: repo, students: students, sections: sections, terms: terms, notifier: notifier, metrics: metrics, validator: validate, logger: logger}
}

// Enroll registers a student into a section, assigning ENROLLED or WAITLISTED
// according to seat availability and the caller's requested status.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotEligible, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Eligible() {
		return nil, appErrors.Clone(appErrors.ErrStudentNotEligible, fmt.Sprintf("student standing %s does not permit enrollment", student.Status))
	}

	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	term, err := s.terms.FindBySection(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "section has no term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.Ended(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "term has ended")
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, SectionID: req.SectionID}
	requested := models.EnrollmentStatus(strings.ToUpper(req.RequestedStatus))
	created, err := s.repo.Enroll(ctx, enrollment, requested)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateActive):
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		case errors.Is(err, repository.ErrSectionFull):
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "")
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrSectionUnavailable, "section not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
	}

	kind := models.EventEnrolled
	if created.Status == models.EnrollmentStatusWaitlisted {
		kind = models.EventWaitlisted
	}
	s.notifier.Emit(models.Event{Kind: kind, EnrollmentID: created.ID, StudentID: created.StudentID, SectionID: created.SectionID})
	if s.metrics != nil {
		s.metrics.RecordEnrollment(created.Status)
	}

	detail, err := s.repo.FindDetailByID(ctx, created.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Promote flips the oldest waitlisted enrollment for a section to ENROLLED
// when a seat is free. It promotes at most one enrollment; callers filling
// multiple freed seats invoke it once per seat. A nil result with nil error
// means nothing was promoted.
func (s *EnrollmentService) Promote(ctx context.Context, sectionID string) (*models.EnrollmentDetail, error) {
	promoted, err := s.repo.PromoteFromWaitlist(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote from waitlist")
	}
	if promoted == nil {
		return nil, nil
	}

	s.notifier.Emit(models.Event{Kind: models.EventPromoted, EnrollmentID: promoted.ID, StudentID: promoted.StudentID, SectionID: promoted.SectionID})
	if s.metrics != nil {
		s.metrics.RecordPromotion()
	}

	detail, err := s.repo.FindDetailByID(ctx, promoted.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Withdraw marks an enrollment WITHDRAWN. Valid only from ENROLLED or
// WAITLISTED. The second return reports whether a seat was freed; the caller
// decides when to trigger waitlist promotion so bulk withdrawals don't
// thrash the waitlist.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.EnrollmentDetail, bool, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Status.Active() {
		return nil, false, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot withdraw enrollment in status %s", enrollment.Status))
	}

	freedSeat := enrollment.Status == models.EnrollmentStatusEnrolled
	withdrawnAt := time.Now().UTC()
	if err := s.repo.Withdraw(ctx, id, withdrawnAt); err != nil {
		if errors.Is(err, repository.ErrNotWithdrawable) {
			return nil, false, appErrors.Clone(appErrors.ErrConflict, "enrollment status changed; withdrawal no longer applies")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, freedSeat, nil
}

// Detail returns an enrollment with student and section context.
func (s *EnrollmentService) Detail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Waitlist returns a section's waitlist in promotion order.
func (s *EnrollmentService) Waitlist(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.sections.FindByID(ctx, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	waitlist, err := s.repo.ListWaitlist(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	return waitlist, nil
}
