package service

import (
	"context"
	"database/sql"
	"math"

	"go.uber.org/zap"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

// GPACalculator folds graded credits into a cumulative GPA. It holds the
// grading scale as an injected immutable value so the scale is configurable
// per deployment and per test.
type GPACalculator struct {
	scale models.GradeScale
}

// NewGPACalculator constructs a calculator for the given scale.
func NewGPACalculator(scale models.GradeScale) *GPACalculator {
	if scale == nil {
		scale = models.DefaultGradeScale()
	}
	return &GPACalculator{scale: scale}
}

// Compute returns the credit-weighted GPA over the provided rows, rounded to
// two decimals. GPA-neutral symbols contribute neither points nor credits.
// A student with no countable credits has a GPA of 0.0.
func (c *GPACalculator) Compute(rows []models.GradedCredit) float64 {
	var pointSum, creditSum float64
	for _, row := range rows {
		points, counted := c.scale.Points(row.Grade)
		if !counted {
			continue
		}
		pointSum += points * float64(row.Credits)
		creditSum += float64(row.Credits)
	}
	if creditSum == 0 {
		return 0.0
	}
	return math.Round(pointSum/creditSum*100) / 100
}

type gradedCreditReader interface {
	GradedCredits(ctx context.Context, studentID string) ([]models.GradedCredit, error)
}

type gpaWriter interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateGPA(ctx context.Context, id string, gpa float64) error
}

// GPAService performs full on-demand GPA recomputation for a student. The
// ordinary path recomputes inside the grade transaction; this service backs
// the administrative recalculate endpoint and repair jobs.
type GPAService struct {
	enrollments gradedCreditReader
	students    gpaWriter
	calc        *GPACalculator
	logger      *zap.Logger
}

// NewGPAService constructs GPAService.
func NewGPAService(enrollments gradedCreditReader, students gpaWriter, calc *GPACalculator, logger *zap.Logger) *GPAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if calc == nil {
		calc = NewGPACalculator(nil)
	}
	return &GPAService{enrollments: enrollments, students: students, calc: calc, logger: logger}
}

// Recalculate scans the student's completed graded enrollments, recomputes
// the cumulative GPA and writes it onto the student aggregate.
func (s *GPAService) Recalculate(ctx context.Context, studentID string) (float64, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rows, err := s.enrollments.GradedCredits(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graded enrollments")
	}

	gpa := s.calc.Compute(rows)
	if err := s.students.UpdateGPA(ctx, studentID, gpa); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write gpa")
	}

	s.logger.Debug("gpa recalculated", zap.String("student_id", studentID), zap.Float64("gpa", gpa))
	return gpa, nil
}
