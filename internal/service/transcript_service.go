package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
	"github.com/openuni/registrar-api/pkg/export"
)

type transcriptRowReader interface {
	TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error)
}

type transcriptCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var transcriptHeaders = []string{"Course", "Title", "Term", "Credits", "Grade", "Completed"}

// TranscriptService assembles a student's academic record. Assembled
// transcripts are cached; every grade write invalidates the student's cache
// entries, so a cache hit is never stale with respect to committed grades.
type TranscriptService struct {
	enrollments transcriptRowReader
	students    studentReader
	cache       transcriptCache
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(enrollments transcriptRowReader, students studentReader, cache transcriptCache, cacheTTL time.Duration, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &TranscriptService{
		enrollments: enrollments,
		students:    students,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Get returns the student's transcript, serving from cache when possible.
func (s *TranscriptService) Get(ctx context.Context, studentID string) (*models.Transcript, error) {
	key := "transcript:" + studentID + ":full"
	if s.cache != nil {
		var cached models.Transcript
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("transcript cache read failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	rows, err := s.enrollments.TranscriptRows(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript rows")
	}

	transcript := &models.Transcript{
		StudentID:   student.ID,
		StudentNo:   student.StudentNo,
		StudentName: student.FullName,
		GPA:         student.GPA,
		Rows:        rows,
		GeneratedAt: time.Now().UTC(),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, transcript, s.cacheTTL); err != nil {
			s.logger.Warn("transcript cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return transcript, nil
}

// ExportCSV renders the transcript as CSV bytes.
func (s *TranscriptService) ExportCSV(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(s.dataset(transcript))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript csv")
	}
	return data, nil
}

// ExportPDF renders the transcript as PDF bytes.
func (s *TranscriptService) ExportPDF(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Academic Transcript - %s (%s)", transcript.StudentName, transcript.StudentNo)
	data, err := s.pdf.Render(s.dataset(transcript), title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript pdf")
	}
	return data, nil
}

func (s *TranscriptService) dataset(transcript *models.Transcript) export.Dataset {
	rows := make([]map[string]string, 0, len(transcript.Rows))
	for _, row := range transcript.Rows {
		grade := ""
		if row.Grade != nil {
			grade = string(*row.Grade)
		}
		completed := ""
		if row.CompletedAt != nil {
			completed = row.CompletedAt.Format("2006-01-02")
		}
		rows = append(rows, map[string]string{
			"Course":    row.CourseCode,
			"Title":     row.CourseTitle,
			"Term":      row.TermName,
			"Credits":   strconv.Itoa(row.Credits),
			"Grade":     grade,
			"Completed": completed,
		})
	}
	return export.Dataset{
		Headers: transcriptHeaders,
		Rows:    rows,
		Summary: []string{fmt.Sprintf("Cumulative GPA: %.2f", transcript.GPA)},
	}
}
