package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openuni/registrar-api/internal/models"
)

// SectionRepository handles persistence of course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	const query = `SELECT id, course_id, term_id, instructor_id, capacity, schedule, created_at, updated_at
        FROM course_sections WHERE id = $1`
	var section models.CourseSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with catalog and occupancy context.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT cs.id, cs.course_id, cs.term_id, cs.instructor_id, cs.capacity, cs.schedule, cs.created_at, cs.updated_at,
        c.code AS course_code, c.title AS course_title, c.credits, t.name AS term_name, u.full_name AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id AND e.status = 'ENROLLED') AS enrolled_count,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id AND e.status = 'WAITLISTED') AS waitlist_count
        FROM course_sections cs
        LEFT JOIN courses c ON c.id = cs.course_id
        LEFT JOIN terms t ON t.id = cs.term_id
        LEFT JOIN users u ON u.id = cs.instructor_id
        WHERE cs.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns sections matching the filter.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM course_sections cs
LEFT JOIN courses c ON c.id = cs.course_id
LEFT JOIN terms t ON t.id = cs.term_id
LEFT JOIN users u ON u.id = cs.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cs.id, cs.course_id, cs.term_id, cs.instructor_id, cs.capacity, cs.schedule, cs.created_at, cs.updated_at,
        c.code AS course_code, c.title AS course_title, c.credits, t.name AS term_name, u.full_name AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id AND e.status = 'ENROLLED') AS enrolled_count,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = cs.id AND e.status = 'WAITLISTED') AS waitlist_count
        %s ORDER BY c.code ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// Create persists a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.CourseSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	const query = `INSERT INTO course_sections (id, course_id, term_id, instructor_id, capacity, schedule, created_at, updated_at)
        VALUES (:id, :course_id, :term_id, :instructor_id, :capacity, :schedule, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// UpdateCapacity sets a new seat capacity for the section.
func (r *SectionRepository) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	const query = `UPDATE course_sections SET capacity = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, capacity, time.Now().UTC()); err != nil {
		return fmt.Errorf("update section capacity: %w", err)
	}
	return nil
}

// InstructorOf returns the instructor of record for a section.
func (r *SectionRepository) InstructorOf(ctx context.Context, sectionID string) (string, error) {
	const query = `SELECT instructor_id FROM course_sections WHERE id = $1`
	var instructorID string
	if err := r.db.GetContext(ctx, &instructorID, query, sectionID); err != nil {
		return "", err
	}
	return instructorID, nil
}
