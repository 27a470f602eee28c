package service

import (
	"context"
	"database/sql"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type sectionInstructorReader interface {
	InstructorOf(ctx context.Context, sectionID string) (string, error)
}

// Actor identifies the authenticated user performing an operation, as carried
// by the request context.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// AuthzService answers capability questions for the grading engine. Grading
// authority is expressed as explicit predicates instead of scattered role
// string comparisons, so policy changes live in one place.
type AuthzService struct {
	sections sectionInstructorReader
}

// NewAuthzService constructs AuthzService.
func NewAuthzService(sections sectionInstructorReader) *AuthzService {
	return &AuthzService{sections: sections}
}

// CanOverrideGradingDeadline reports whether the actor holds the
// administrative capability to submit grades past the term deadline and to
// rule on grade change requests.
func (s *AuthzService) CanOverrideGradingDeadline(actor Actor) bool {
	return actor.Role == models.RoleAdmin || actor.Role == models.RoleRegistrar
}

// IsInstructorOfRecord reports whether the actor teaches the section.
func (s *AuthzService) IsInstructorOfRecord(ctx context.Context, actor Actor, sectionID string) (bool, error) {
	if actor.Role != models.RoleInstructor {
		return false, nil
	}
	instructorID, err := s.sections.InstructorOf(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve section instructor")
	}
	return instructorID == actor.UserID, nil
}

// CanGrade reports whether the actor may submit grades for the section at
// all, regardless of deadlines.
func (s *AuthzService) CanGrade(ctx context.Context, actor Actor, sectionID string) (bool, error) {
	if s.CanOverrideGradingDeadline(actor) {
		return true, nil
	}
	return s.IsInstructorOfRecord(ctx, actor, sectionID)
}
