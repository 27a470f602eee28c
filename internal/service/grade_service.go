package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/internal/repository"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type gradeApplier interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ApplyGrade(ctx context.Context, params repository.ApplyGradeParams) (*models.Enrollment, float64, error)
}

type gradeChangeRepository interface {
	Create(ctx context.Context, request *models.GradeChangeRequest) error
	FindByID(ctx context.Context, id string) (*models.GradeChangeRequest, error)
	HasPending(ctx context.Context, enrollmentID string) (bool, error)
	SetDenied(ctx context.Context, id, deniedBy, reason string, at time.Time) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeChangeRequest, error)
}

type gradeAuthorizer interface {
	CanOverrideGradingDeadline(actor Actor) bool
	IsInstructorOfRecord(ctx context.Context, actor Actor, sectionID string) (bool, error)
}

type transcriptInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type gradeMetrics interface {
	RecordGradeSubmission()
	RecordGradeChange(status models.GradeChangeStatus)
}

// GradeSubmission is a single grade submitted for an enrollment.
type GradeSubmission struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	Grade        string `json:"grade" validate:"required"`
}

// BulkGradeRequest submits grades for several enrollments of one section.
type BulkGradeRequest struct {
	SectionID string            `json:"section_id" validate:"required"`
	Grades    []GradeSubmission `json:"grades" validate:"required,min=1,dive"`
}

// BulkGradeFailure reports one rejected row of a bulk submission.
type BulkGradeFailure struct {
	EnrollmentID string `json:"enrollment_id"`
	Reason       string `json:"reason"`
}

// BulkGradeResult summarises a bulk submission. Row failures never abort the
// rest of the batch.
type BulkGradeResult struct {
	SuccessCount int                `json:"success_count"`
	Failures     []BulkGradeFailure `json:"failures"`
}

// GradeChangeInput creates a grade change request for an already graded
// enrollment.
type GradeChangeInput struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	NewGrade     string `json:"new_grade" validate:"required"`
	Reason       string `json:"reason" validate:"required,min=5"`
}

// GradeService is the grade lifecycle engine: submission, the post-deadline
// change-request flow, and the GPA recomputation that rides along with every
// grade write. The grade update and the GPA write commit in one transaction,
// so a stored grade is never observable without its matching GPA.
type GradeService struct {
	enrollments gradeApplier
	changes     gradeChangeRepository
	terms       termBySectionReader
	authz       gradeAuthorizer
	notifier    Notifier
	cache       transcriptInvalidator
	audits      auditRecorder
	metrics     gradeMetrics
	scale       models.GradeScale
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(enrollments gradeApplier, changes gradeChangeRepository, terms termBySectionReader, authz gradeAuthorizer, notifier Notifier, cache transcriptInvalidator, audits auditRecorder, metrics gradeMetrics, scale models.GradeScale, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if scale == nil {
		scale = models.DefaultGradeScale()
	}
	return &GradeService{
		enrollments: enrollments,
		changes:     changes,
		terms:       terms,
		authz:       authz,
		notifier:    notifier,
		cache:       cache,
		audits:      audits,
		metrics:     metrics,
		scale:       scale,
		validator:   validate,
		logger:      logger,
	}
}

// SubmitGrade records a grade for a single enrollment. Precondition order:
// grade symbol, enrollment state, grading authority, term deadline. The
// deadline check is skipped for actors holding the override capability.
func (s *GradeService) SubmitGrade(ctx context.Context, actor Actor, sub GradeSubmission) (*models.Enrollment, float64, error) {
	if err := s.validator.Struct(sub); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	grade := models.Grade(sub.Grade)
	if !s.scale.Valid(grade) {
		return nil, 0, appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("unknown grade symbol %q", sub.Grade))
	}

	enrollment, err := s.enrollments.FindByID(ctx, sub.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.checkGradable(enrollment); err != nil {
		return nil, 0, err
	}
	if err := s.checkGradingWindow(ctx, actor, enrollment.SectionID); err != nil {
		return nil, 0, err
	}

	updated, gpa, err := s.enrollments.ApplyGrade(ctx, repository.ApplyGradeParams{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		Grade:        grade,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotGradable) {
			return nil, 0, appErrors.Clone(appErrors.ErrInvalidGrade, "enrollment status changed; it can no longer be graded")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply grade")
	}

	s.notifier.Emit(models.Event{Kind: models.EventGradeSubmitted, EnrollmentID: updated.ID, StudentID: updated.StudentID, SectionID: updated.SectionID})
	s.invalidateTranscript(ctx, updated.StudentID)
	if s.metrics != nil {
		s.metrics.RecordGradeSubmission()
	}
	return updated, gpa, nil
}

// BulkSubmitGrades grades a batch of enrollments in one section. Authority
// and the deadline are checked once for the whole batch; each row is then
// applied independently and row failures are collected, not fatal.
func (s *GradeService) BulkSubmitGrades(ctx context.Context, actor Actor, req BulkGradeRequest) (*BulkGradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grade payload")
	}
	if err := s.checkGradingWindow(ctx, actor, req.SectionID); err != nil {
		return nil, err
	}

	result := &BulkGradeResult{Failures: []BulkGradeFailure{}}
	for _, sub := range req.Grades {
		if err := s.applyBulkRow(ctx, req.SectionID, sub); err != nil {
			result.Failures = append(result.Failures, BulkGradeFailure{EnrollmentID: sub.EnrollmentID, Reason: appErrors.FromError(err).Message})
			continue
		}
		result.SuccessCount++
	}
	s.logger.Info("bulk grade submission processed",
		zap.String("section_id", req.SectionID),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}

func (s *GradeService) applyBulkRow(ctx context.Context, sectionID string, sub GradeSubmission) error {
	grade := models.Grade(sub.Grade)
	if !s.scale.Valid(grade) {
		return appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("unknown grade symbol %q", sub.Grade))
	}
	enrollment, err := s.enrollments.FindByID(ctx, sub.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.SectionID != sectionID {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment does not belong to this section")
	}
	if err := s.checkGradable(enrollment); err != nil {
		return err
	}

	updated, _, err := s.enrollments.ApplyGrade(ctx, repository.ApplyGradeParams{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		Grade:        grade,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotGradable) {
			return appErrors.Clone(appErrors.ErrInvalidGrade, "enrollment status changed; it can no longer be graded")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply grade")
	}

	s.notifier.Emit(models.Event{Kind: models.EventGradeSubmitted, EnrollmentID: updated.ID, StudentID: updated.StudentID, SectionID: updated.SectionID})
	s.invalidateTranscript(ctx, updated.StudentID)
	if s.metrics != nil {
		s.metrics.RecordGradeSubmission()
	}
	return nil
}

// RequestGradeChange opens a change request for an already graded enrollment.
// At most one request per enrollment may be pending at a time.
func (s *GradeService) RequestGradeChange(ctx context.Context, actor Actor, input GradeChangeInput) (*models.GradeChangeRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade change payload")
	}
	newGrade := models.Grade(input.NewGrade)
	if !s.scale.Valid(newGrade) {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("unknown grade symbol %q", input.NewGrade))
	}

	enrollment, err := s.enrollments.FindByID(ctx, input.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Grade == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment has no grade to change")
	}
	if *enrollment.Grade == newGrade {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "new grade equals the current grade")
	}

	ok, err := s.authz.IsInstructorOfRecord(ctx, actor, enrollment.SectionID)
	if err != nil {
		return nil, err
	}
	if !ok && !s.authz.CanOverrideGradingDeadline(actor) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedGrade, "")
	}

	pending, err := s.changes.HasPending(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a grade change request is already pending for this enrollment")
	}

	request := &models.GradeChangeRequest{
		ID:           uuid.NewString(),
		EnrollmentID: enrollment.ID,
		OldGrade:     *enrollment.Grade,
		NewGrade:     newGrade,
		Reason:       input.Reason,
		RequestedBy:  actor.UserID,
	}
	if err := s.changes.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade change request")
	}
	s.logger.Info("grade change requested",
		zap.String("request_id", request.ID),
		zap.String("enrollment_id", request.EnrollmentID),
		zap.String("requested_by", actor.UserID))
	return request, nil
}

// ApproveGradeChange applies a pending request. The approval flip, the grade
// update and the GPA recomputation are one transaction; if any leg fails the
// request stays pending and the grade is untouched.
func (s *GradeService) ApproveGradeChange(ctx context.Context, actor Actor, requestID string) (*models.Enrollment, float64, error) {
	if !s.authz.CanOverrideGradingDeadline(actor) {
		return nil, 0, appErrors.Clone(appErrors.ErrUnauthorizedGrade, "approving grade changes requires registrar authority")
	}

	request, err := s.changes.FindByID(ctx, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "grade change request not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade change request")
	}
	if request.Status != models.GradeChangePending {
		return nil, 0, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request is already %s", request.Status))
	}

	enrollment, err := s.enrollments.FindByID(ctx, request.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Grade == nil || *enrollment.Grade != request.OldGrade {
		return nil, 0, appErrors.Clone(appErrors.ErrConflict, "enrollment grade changed since the request was filed")
	}

	// ExpectedGrade makes the repository re-check the equality under the row
	// lock; the read above may already be stale
	updated, gpa, err := s.enrollments.ApplyGrade(ctx, repository.ApplyGradeParams{
		EnrollmentID:    request.EnrollmentID,
		StudentID:       enrollment.StudentID,
		Grade:           request.NewGrade,
		ChangeRequestID: request.ID,
		ExpectedGrade:   request.OldGrade,
		ApprovedBy:      actor.UserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, 0, appErrors.Clone(appErrors.ErrConflict, "request was resolved concurrently")
		case errors.Is(err, repository.ErrGradeChanged):
			return nil, 0, appErrors.Clone(appErrors.ErrConflict, "enrollment grade changed since the request was filed")
		case errors.Is(err, repository.ErrNotGradable):
			return nil, 0, appErrors.Clone(appErrors.ErrConflict, "enrollment is no longer gradable")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply grade change")
	}

	s.notifier.Emit(models.Event{Kind: models.EventGradeChangeApproved, EnrollmentID: updated.ID, StudentID: updated.StudentID, SectionID: updated.SectionID})
	s.invalidateTranscript(ctx, updated.StudentID)
	s.recordRuling(ctx, actor, models.AuditActionGradeChangeApprove, request)
	if s.metrics != nil {
		s.metrics.RecordGradeChange(models.GradeChangeApproved)
	}
	return updated, gpa, nil
}

// DenyGradeChange rejects a pending request with a reason. The stored grade
// is untouched.
func (s *GradeService) DenyGradeChange(ctx context.Context, actor Actor, requestID, reason string) (*models.GradeChangeRequest, error) {
	if !s.authz.CanOverrideGradingDeadline(actor) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedGrade, "denying grade changes requires registrar authority")
	}
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a denial reason is required")
	}

	if err := s.changes.SetDenied(ctx, requestID, actor.UserID, reason, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request is not pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deny grade change request")
	}

	request, err := s.changes.FindByID(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade change request")
	}

	s.recordRuling(ctx, actor, models.AuditActionGradeChangeDeny, request)
	if s.metrics != nil {
		s.metrics.RecordGradeChange(models.GradeChangeDenied)
	}
	return request, nil
}

// ListGradeChanges returns the change history for an enrollment.
func (s *GradeService) ListGradeChanges(ctx context.Context, enrollmentID string) ([]models.GradeChangeRequest, error) {
	requests, err := s.changes.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade change requests")
	}
	return requests, nil
}

func (s *GradeService) checkGradable(enrollment *models.Enrollment) error {
	if enrollment.Status != models.EnrollmentStatusEnrolled && enrollment.Status != models.EnrollmentStatusCompleted {
		return appErrors.Clone(appErrors.ErrInvalidGrade, fmt.Sprintf("cannot grade enrollment in status %s", enrollment.Status))
	}
	return nil
}

func (s *GradeService) checkGradingWindow(ctx context.Context, actor Actor, sectionID string) error {
	override := s.authz.CanOverrideGradingDeadline(actor)
	if !override {
		ok, err := s.authz.IsInstructorOfRecord(ctx, actor, sectionID)
		if err != nil {
			return err
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrUnauthorizedGrade, "")
		}
	}

	term, err := s.terms.FindBySection(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "section has no term")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !override && term.GradingClosed(time.Now().UTC()) {
		return appErrors.Clone(appErrors.ErrGradingDeadlinePassed, "")
	}
	return nil
}

func (s *GradeService) invalidateTranscript(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "transcript:"+studentID+":*"); err != nil {
		s.logger.Warn("transcript cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *GradeService) recordRuling(ctx context.Context, actor Actor, action string, request *models.GradeChangeRequest) {
	if s.audits == nil {
		return
	}
	values, _ := json.Marshal(request)
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "grade_change_requests",
		ResourceID: &request.ID,
		NewValues:  values,
	}
	if err := s.audits.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
