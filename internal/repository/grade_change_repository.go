package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openuni/registrar-api/internal/models"
)

// GradeChangeRepository persists grade change requests.
type GradeChangeRepository struct {
	db *sqlx.DB
}

// NewGradeChangeRepository constructs the repository.
func NewGradeChangeRepository(db *sqlx.DB) *GradeChangeRepository {
	return &GradeChangeRepository{db: db}
}

// Create persists a new pending request.
func (r *GradeChangeRepository) Create(ctx context.Context, request *models.GradeChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	request.Status = models.GradeChangePending
	const query = `INSERT INTO grade_change_requests (id, enrollment_id, old_grade, new_grade, reason, status, requested_by, created_at)
        VALUES (:id, :enrollment_id, :old_grade, :new_grade, :reason, :status, :requested_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create grade change request: %w", err)
	}
	return nil
}

// FindByID returns a request by identifier.
func (r *GradeChangeRepository) FindByID(ctx context.Context, id string) (*models.GradeChangeRequest, error) {
	const query = `SELECT id, enrollment_id, old_grade, new_grade, reason, status, requested_by, approved_by, approved_at, denial_reason, created_at
        FROM grade_change_requests WHERE id = $1`
	var request models.GradeChangeRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// HasPending reports whether a pending request exists for the enrollment.
// Only one pending request per enrollment is actionable at a time.
func (r *GradeChangeRepository) HasPending(ctx context.Context, enrollmentID string) (bool, error) {
	const query = `SELECT 1 FROM grade_change_requests WHERE enrollment_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID, models.GradeChangePending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending grade change: %w", err)
	}
	return true, nil
}

// SetDenied marks a pending request as denied. It returns sql.ErrNoRows when
// the request is not pending, so a decided request cannot be re-decided.
func (r *GradeChangeRepository) SetDenied(ctx context.Context, id, deniedBy, reason string, at time.Time) error {
	const query = `UPDATE grade_change_requests
        SET status = $2, approved_by = $3, approved_at = $4, denial_reason = $5
        WHERE id = $1 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, id, models.GradeChangeDenied, deniedBy, at, reason, models.GradeChangePending)
	if err != nil {
		return fmt.Errorf("deny grade change request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByEnrollment returns the audit trail of requests for an enrollment.
func (r *GradeChangeRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeChangeRequest, error) {
	const query = `SELECT id, enrollment_id, old_grade, new_grade, reason, status, requested_by, approved_by, approved_at, denial_reason, created_at
        FROM grade_change_requests WHERE enrollment_id = $1 ORDER BY created_at DESC`
	var requests []models.GradeChangeRequest
	if err := r.db.SelectContext(ctx, &requests, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grade change requests: %w", err)
	}
	return requests, nil
}
