package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openuni/registrar-api/internal/models"
)

// TermRepository handles persistence of academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID returns a term by identifier.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT id, name, academic_year, start_date, end_date, grade_deadline, created_at, updated_at
        FROM terms WHERE id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindBySection returns the term the given section belongs to.
func (r *TermRepository) FindBySection(ctx context.Context, sectionID string) (*models.Term, error) {
	const query = `SELECT t.id, t.name, t.academic_year, t.start_date, t.end_date, t.grade_deadline, t.created_at, t.updated_at
        FROM terms t JOIN course_sections cs ON cs.term_id = t.id WHERE cs.id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, sectionID); err != nil {
		return nil, err
	}
	return &term, nil
}

// List returns terms matching the filter.
func (r *TermRepository) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	base := `FROM terms`
	clause := ""
	var args []interface{}
	if filter.AcademicYear != "" {
		clause = " WHERE academic_year = $1"
		args = append(args, filter.AcademicYear)
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

	query := fmt.Sprintf(`SELECT id, name, academic_year, start_date, end_date, grade_deadline, created_at, updated_at
        %s ORDER BY start_date DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list terms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count terms: %w", err)
	}
	return terms, total, nil
}

// Create persists a new term.
func (r *TermRepository) Create(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = now
	}
	term.UpdatedAt = now
	const query = `INSERT INTO terms (id, name, academic_year, start_date, end_date, grade_deadline, created_at, updated_at)
        VALUES (:id, :name, :academic_year, :start_date, :end_date, :grade_deadline, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("create term: %w", err)
	}
	return nil
}

// Update persists term fields including the grade deadline.
func (r *TermRepository) Update(ctx context.Context, term *models.Term) error {
	const query = `UPDATE terms SET name = $2, academic_year = $3, start_date = $4, end_date = $5, grade_deadline = $6, updated_at = $7
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, term.ID, term.Name, term.AcademicYear, term.StartDate, term.EndDate, term.GradeDeadline, time.Now().UTC()); err != nil {
		return fmt.Errorf("update term: %w", err)
	}
	return nil
}
