package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type sectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	Create(ctx context.Context, section *models.CourseSection) error
	UpdateCapacity(ctx context.Context, id string, capacity int) error
}

type enrolledCounter interface {
	CountEnrolled(ctx context.Context, sectionID string) (int, error)
}

type waitlistPromoter interface {
	Promote(ctx context.Context, sectionID string) (*models.EnrollmentDetail, error)
}

// CreateSectionRequest is the payload for scheduling a section.
type CreateSectionRequest struct {
	CourseID     string `json:"course_id" validate:"required"`
	TermID       string `json:"term_id" validate:"required"`
	InstructorID string `json:"instructor_id" validate:"required"`
	Capacity     int    `json:"capacity" validate:"required,min=1"`
	Schedule     string `json:"schedule" validate:"required"`
}

// UpdateCapacityRequest raises or lowers a section's seat capacity.
type UpdateCapacityRequest struct {
	Capacity int `json:"capacity" validate:"required,min=1"`
}

// SectionService manages course sections. Raising capacity drains the
// waitlist one promotion per freed seat.
type SectionService struct {
	repo        sectionRepository
	enrollments enrolledCounter
	promoter    waitlistPromoter
	audits      auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSectionService constructs SectionService.
func NewSectionService(repo sectionRepository, enrollments enrolledCounter, promoter waitlistPromoter, audits auditRecorder, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, enrollments: enrollments, promoter: promoter, audits: audits, validator: validate, logger: logger}
}

// Get returns a section with occupancy counts.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	section, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// List returns sections matching the filter.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create schedules a new section.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	section := &models.CourseSection{
		ID:           uuid.NewString(),
		CourseID:     req.CourseID,
		TermID:       req.TermID,
		InstructorID: req.InstructorID,
		Capacity:     req.Capacity,
		Schedule:     req.Schedule,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// UpdateCapacity changes a section's seat count. Lowering capacity below the
// current enrolled count is rejected; raising it promotes waitlisted
// students, one per freed seat, oldest first.
func (s *SectionService) UpdateCapacity(ctx context.Context, actor Actor, id string, req UpdateCapacityRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	enrolled, err := s.enrollments.CountEnrolled(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrolled students")
	}
	if req.Capacity < enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("capacity %d is below the current enrolled count %d", req.Capacity, enrolled))
	}

	oldCapacity := section.Capacity
	if err := s.repo.UpdateCapacity(ctx, id, req.Capacity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update capacity")
	}

	freed := req.Capacity - oldCapacity
	for i := 0; i < freed; i++ {
		promoted, err := s.promoter.Promote(ctx, id)
		if err != nil {
			s.logger.Warn("waitlist promotion after capacity change failed", zap.String("section_id", id), zap.Error(err))
			break
		}
		if promoted == nil {
			break
		}
	}

	if s.audits != nil {
		values := []byte(fmt.Sprintf(`{"old_capacity":%d,"new_capacity":%d}`, oldCapacity, req.Capacity))
		if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionCapacityOverride,
			Resource:   "course_sections",
			ResourceID: &section.ID,
			OldValues:  []byte(fmt.Sprintf(`{"capacity":%d}`, oldCapacity)),
			NewValues:  values,
		}); err != nil {
			s.logger.Warn("audit write failed", zap.String("section_id", id), zap.Error(err))
		}
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section detail")
	}
	return detail, nil
}
