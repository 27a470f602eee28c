package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openuni/registrar-api/internal/models"
)

// Sentinel errors surfaced by the capacity-controlled write paths. The
// service layer maps them onto the user-facing error taxonomy.
var (
	ErrDuplicateActive = errors.New("active enrollment already exists for student and section")
	ErrSectionFull     = errors.New("section has no free seats")
	ErrNotGradable     = errors.New("enrollment is not in a gradable status")
	ErrGradeChanged    = errors.New("enrollment grade does not match the change request")
	ErrNotWithdrawable = errors.New("enrollment is not in a withdrawable status")
)

// gpaCalculator folds graded credits into a cumulative GPA. Injected so the
// repository can recompute the student aggregate inside the same transaction
// as a grade write.
type gpaCalculator interface {
	Compute(rows []models.GradedCredit) float64
}

// EnrollmentRepository handles persistence of enrollments, including the
// section-serialized capacity arbitration and the atomic grade+GPA write.
type EnrollmentRepository struct {
	db   *sqlx.DB
	calc gpaCalculator
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, calc gpaCalculator) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, calc: calc}
}

// arbitrateStatus decides the status a new enrollment receives given the
// requested status and current occupancy. requested == "" means the caller
// accepts either outcome; an explicit ENROLLED request fails rather than
// silently downgrading to the waitlist.
func arbitrateStatus(requested models.EnrollmentStatus, enrolled, capacity int) (models.EnrollmentStatus, error) {
	seatFree := enrolled < capacity
	switch requested {
	case "":
		if seatFree {
			return models.EnrollmentStatusEnrolled, nil
		}
		return models.EnrollmentStatusWaitlisted, nil
	case models.EnrollmentStatusEnrolled:
		if !seatFree {
			return "", ErrSectionFull
		}
		return models.EnrollmentStatusEnrolled, nil
	case models.EnrollmentStatusWaitlisted:
		return models.EnrollmentStatusWaitlisted, nil
	default:
		return "", fmt.Errorf("status %q cannot be requested", requested)
	}
}

// Enroll atomically arbitrates capacity and inserts the enrollment row. The
// section row is locked FOR UPDATE for the duration of the count-then-insert
// sequence so concurrent Enroll/Promote calls on the same section serialize;
// a plain count-then-insert would let two callers claim the last seat.
func (r *EnrollmentRepository) Enroll(ctx context.Context, enrollment *models.Enrollment, requested models.EnrollmentStatus) (result *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	const lockQuery = `SELECT capacity FROM course_sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &capacity, lockQuery, enrollment.SectionID); err != nil {
		return nil, err
	}

	var exists int
	const dupQuery = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ($3, $4) LIMIT 1`
	err = tx.GetContext(ctx, &exists, dupQuery, enrollment.StudentID, enrollment.SectionID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted)
	if err == nil {
		return nil, ErrDuplicateActive
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check duplicate enrollment: %w", err)
	}

	var enrolled int
	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	if err = tx.GetContext(ctx, &enrolled, countQuery, enrollment.SectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}

	status, err := arbitrateStatus(requested, enrolled, capacity)
	if err != nil {
		return nil, err
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	enrollment.Status = status

	const insertQuery = `INSERT INTO enrollments (id, student_id, section_id, status, grade, enrolled_at, completed_at, withdrawn_at)
        VALUES (:id, :student_id, :section_id, :status, :grade, :enrolled_at, :completed_at, :withdrawn_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}
	return enrollment, nil
}

// PromoteFromWaitlist flips the oldest waitlisted enrollment for the section
// to ENROLLED, provided a seat is free. It promotes at most one enrollment
// per call and returns nil without error when there is nothing to do. The
// count and the update run under the same section lock as Enroll.
func (r *EnrollmentRepository) PromoteFromWaitlist(ctx context.Context, sectionID string) (promoted *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin promote transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	const lockQuery = `SELECT capacity FROM course_sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &capacity, lockQuery, sectionID); err != nil {
		return nil, err
	}

	var enrolled int
	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	if err = tx.GetContext(ctx, &enrolled, countQuery, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}
	if enrolled >= capacity {
		err = tx.Commit()
		return nil, err
	}

	var next models.Enrollment
	const nextQuery = `SELECT id, student_id, section_id, status, grade, enrolled_at, completed_at, withdrawn_at
        FROM enrollments WHERE section_id = $1 AND status = $2
        ORDER BY enrolled_at ASC, id ASC LIMIT 1`
	if err = tx.GetContext(ctx, &next, nextQuery, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		if err == sql.ErrNoRows {
			err = tx.Commit()
			return nil, err
		}
		return nil, fmt.Errorf("select waitlist head: %w", err)
	}

	const updateQuery = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, next.ID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("promote enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", err)
	}
	next.Status = models.EnrollmentStatusEnrolled
	return &next, nil
}

// ApplyGradeParams carries a validated grade mutation. When ChangeRequestID
// is set, the referenced grade change request is marked approved inside the
// same transaction so the approval and the grade write land or fail together,
// and the locked row must still carry ExpectedGrade for the write to proceed.
type ApplyGradeParams struct {
	EnrollmentID    string
	StudentID       string
	Grade           models.Grade
	ChangeRequestID string
	ExpectedGrade   models.Grade
	ApprovedBy      string
}

// ApplyGrade persists a grade, transitions the enrollment to COMPLETED, sets
// the completion date once, recomputes the student's GPA from all completed
// graded enrollments, and writes the aggregate back, all in one transaction.
// A failure at any step leaves the enrollment untouched.
func (r *EnrollmentRepository) ApplyGrade(ctx context.Context, params ApplyGradeParams) (updated *models.Enrollment, gpa float64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin grade transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment models.Enrollment
	const lockQuery = `SELECT id, student_id, section_id, status, grade, enrolled_at, completed_at, withdrawn_at
        FROM enrollments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &enrollment, lockQuery, params.EnrollmentID); err != nil {
		return nil, 0, err
	}

	// the caller's preconditions ran against an earlier snapshot; the locked
	// row is authoritative
	if enrollment.Status != models.EnrollmentStatusEnrolled && enrollment.Status != models.EnrollmentStatusCompleted {
		err = fmt.Errorf("enrollment %s is %s: %w", params.EnrollmentID, enrollment.Status, ErrNotGradable)
		return nil, 0, err
	}
	if params.ChangeRequestID != "" {
		if enrollment.Grade == nil || *enrollment.Grade != params.ExpectedGrade {
			err = ErrGradeChanged
			return nil, 0, err
		}
	}

	now := time.Now().UTC()
	const gradeQuery = `UPDATE enrollments
        SET grade = $2, status = $3, completed_at = COALESCE(completed_at, $4)
        WHERE id = $1`
	if _, err = tx.ExecContext(ctx, gradeQuery, params.EnrollmentID, params.Grade, models.EnrollmentStatusCompleted, now); err != nil {
		return nil, 0, fmt.Errorf("apply grade: %w", err)
	}

	if params.ChangeRequestID != "" {
		const approveQuery = `UPDATE grade_change_requests
            SET status = $2, approved_by = $3, approved_at = $4
            WHERE id = $1 AND status = $5`
		var res sql.Result
		if res, err = tx.ExecContext(ctx, approveQuery, params.ChangeRequestID, models.GradeChangeApproved,
			params.ApprovedBy, now, models.GradeChangePending); err != nil {
			return nil, 0, fmt.Errorf("approve grade change: %w", err)
		}
		if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
			err = fmt.Errorf("grade change request %s is not pending", params.ChangeRequestID)
			return nil, 0, err
		}
	}

	var credits []models.GradedCredit
	const creditsQuery = `SELECT e.grade, c.credits
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        WHERE e.student_id = $1 AND e.status = $2 AND e.grade IS NOT NULL`
	if err = tx.SelectContext(ctx, &credits, creditsQuery, params.StudentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, 0, fmt.Errorf("load graded credits: %w", err)
	}

	gpa = r.calc.Compute(credits)
	const gpaQuery = `UPDATE students SET gpa = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, gpaQuery, params.StudentID, gpa, now); err != nil {
		return nil, 0, fmt.Errorf("write student gpa: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit grade: %w", err)
	}

	enrollment.Grade = &params.Grade
	enrollment.Status = models.EnrollmentStatusCompleted
	if enrollment.CompletedAt == nil {
		enrollment.CompletedAt = &now
	}
	return &enrollment, gpa, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, grade, enrolled_at, completed_at, withdrawn_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.status, e.grade, e.enrolled_at, e.completed_at, e.withdrawn_at,
        s.full_name AS student_name, s.student_no, c.code AS course_code, c.title AS course_title, t.name AS term_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN course_sections cs ON cs.id = e.section_id
        LEFT JOIN courses c ON c.id = cs.course_id
        LEFT JOIN terms t ON t.id = cs.term_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Withdraw flips an active enrollment to WITHDRAWN. The status guard runs in
// the same statement, so a grade committed after the caller's read leaves the
// row COMPLETED and the update matches nothing.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string, withdrawnAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, withdrawn_at = $3
        WHERE id = $1 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, withdrawnAt,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted)
	if err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
		return ErrNotWithdrawable
	}
	return nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN course_sections cs ON cs.id = e.section_id
LEFT JOIN courses c ON c.id = cs.course_id
LEFT JOIN terms t ON t.id = cs.term_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"course_code":  "c.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.status, e.grade, e.enrolled_at, e.completed_at, e.withdrawn_at,
        s.full_name AS student_name, s.student_no, c.code AS course_code, c.title AS course_title, t.name AS term_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListWaitlist returns the waitlisted enrollments for a section in FIFO order.
func (r *EnrollmentRepository) ListWaitlist(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.status, e.grade, e.enrolled_at, e.completed_at, e.withdrawn_at,
        s.full_name AS student_name, s.student_no, c.code AS course_code, c.title AS course_title, t.name AS term_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN course_sections cs ON cs.id = e.section_id
        LEFT JOIN courses c ON c.id = cs.course_id
        LEFT JOIN terms t ON t.id = cs.term_id
        WHERE e.section_id = $1 AND e.status = $2
        ORDER BY e.enrolled_at ASC, e.id ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return enrollments, nil
}

// CountEnrolled returns the number of seats currently taken in a section.
func (r *EnrollmentRepository) CountEnrolled(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}
	return count, nil
}

// GradedCredits returns the GPA input rows for a student.
func (r *EnrollmentRepository) GradedCredits(ctx context.Context, studentID string) ([]models.GradedCredit, error) {
	const query = `SELECT e.grade, c.credits
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        WHERE e.student_id = $1 AND e.status = $2 AND e.grade IS NOT NULL`
	var credits []models.GradedCredit
	if err := r.db.SelectContext(ctx, &credits, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("load graded credits: %w", err)
	}
	return credits, nil
}

// TranscriptRows returns the completed enrollments for a student's transcript.
func (r *EnrollmentRepository) TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	const query = `SELECT c.code AS course_code, c.title AS course_title, t.name AS term_name, c.credits, e.grade, e.completed_at
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        JOIN terms t ON t.id = cs.term_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY e.completed_at ASC, c.code ASC`
	var rows []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("load transcript rows: %w", err)
	}
	return rows, nil
}
