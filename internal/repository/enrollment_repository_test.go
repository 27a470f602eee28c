package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openuni/registrar-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

type stubCalc struct {
	gpa  float64
	rows []models.GradedCredit
}

func (c *stubCalc) Compute(rows []models.GradedCredit) float64 {
	c.rows = rows
	return c.gpa
}

func TestArbitrateStatus(t *testing.T) {
	cases := []struct {
		name      string
		requested models.EnrollmentStatus
		enrolled  int
		capacity  int
		want      models.EnrollmentStatus
		wantErr   error
	}{
		{name: "auto assigns seat when free", requested: "", enrolled: 29, capacity: 30, want: models.EnrollmentStatusEnrolled},
		{name: "auto waitlists when full", requested: "", enrolled: 30, capacity: 30, want: models.EnrollmentStatusWaitlisted},
		{name: "explicit enrolled honored when free", requested: models.EnrollmentStatusEnrolled, enrolled: 0, capacity: 1, want: models.EnrollmentStatusEnrolled},
		{name: "explicit enrolled fails when full", requested: models.EnrollmentStatusEnrolled, enrolled: 1, capacity: 1, wantErr: ErrSectionFull},
		{name: "explicit waitlisted honored with free seats", requested: models.EnrollmentStatusWaitlisted, enrolled: 0, capacity: 30, want: models.EnrollmentStatusWaitlisted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := arbitrateStatus(tc.requested, tc.enrolled, tc.capacity)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestArbitrateStatusRejectsTerminalRequest(t *testing.T) {
	_, err := arbitrateStatus(models.EnrollmentStatusCompleted, 0, 30)
	assert.Error(t, err)
}

func expectSectionLock(mock sqlmock.Sqlmock, sectionID string, capacity int) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity FROM course_sections WHERE id = $1 FOR UPDATE`)).
		WithArgs(sectionID).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(capacity))
}

func expectEnrolledCount(mock sqlmock.Sqlmock, sectionID string, enrolled int) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`)).
		WithArgs(sectionID, models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(enrolled))
}

func TestEnrollmentRepositoryEnrollSeatFree(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 30)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ($3, $4) LIMIT 1`)).
		WithArgs("student-1", "section-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)
	expectEnrolledCount(mock, "section-1", 12)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), "student-1", "section-1", models.EnrollmentStatusEnrolled,
			nil, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.Enroll(context.Background(), &models.Enrollment{StudentID: "student-1", SectionID: "section-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, created.Status)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollWaitlistsWhenFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 30)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM enrollments`)).
		WithArgs("student-1", "section-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)
	expectEnrolledCount(mock, "section-1", 30)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), "student-1", "section-1", models.EnrollmentStatusWaitlisted,
			nil, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.Enroll(context.Background(), &models.Enrollment{StudentID: "student-1", SectionID: "section-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollExplicitSeatWhenFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM enrollments`)).
		WithArgs("student-1", "section-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)
	expectEnrolledCount(mock, "section-1", 1)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), &models.Enrollment{StudentID: "student-1", SectionID: "section-1"}, models.EnrollmentStatusEnrolled)
	assert.ErrorIs(t, err, ErrSectionFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollDuplicateActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 30)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM enrollments`)).
		WithArgs("student-1", "section-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), &models.Enrollment{StudentID: "student-1", SectionID: "section-1"}, "")
	assert.ErrorIs(t, err, ErrDuplicateActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromotePicksOldestWaitlisted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 30)
	expectEnrolledCount(mock, "section-1", 29)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY enrolled_at ASC, id ASC LIMIT 1`)).
		WithArgs("section-1", models.EnrollmentStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-7", "student-7", "section-1", models.EnrollmentStatusWaitlisted, nil, enrolledAt, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE enrollments SET status = $2 WHERE id = $1`)).
		WithArgs("enr-7", models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	promoted, err := repo.PromoteFromWaitlist(context.Background(), "section-1")
	require.NoError(t, err)
	require.NotNil(t, promoted)
	assert.Equal(t, "enr-7", promoted.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, promoted.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteNoopWhenFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 30)
	expectEnrolledCount(mock, "section-1", 30)
	mock.ExpectCommit()

	promoted, err := repo.PromoteFromWaitlist(context.Background(), "section-1")
	require.NoError(t, err)
	assert.Nil(t, promoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteNoopWhenWaitlistEmpty(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectBegin()
	expectSectionLock(mock, "section-1", 30)
	expectEnrolledCount(mock, "section-1", 10)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY enrolled_at ASC, id ASC LIMIT 1`)).
		WithArgs("section-1", models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	promoted, err := repo.PromoteFromWaitlist(context.Background(), "section-1")
	require.NoError(t, err)
	assert.Nil(t, promoted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApplyGradeRecomputesGPA(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	calc := &stubCalc{gpa: 3.57}
	repo := NewEnrollmentRepository(db, calc)

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusEnrolled, nil, enrolledAt, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta(`SET grade = $2, status = $3, completed_at = COALESCE(completed_at, $4)`)).
		WithArgs("enr-1", models.GradeA, models.EnrollmentStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT e.grade, c.credits`)).
		WithArgs("student-1", models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"grade", "credits"}).
			AddRow(models.GradeA, 4).
			AddRow(models.GradeB, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE students SET gpa = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("student-1", 3.57, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, gpa, err := repo.ApplyGrade(context.Background(), ApplyGradeParams{
		EnrollmentID: "enr-1",
		StudentID:    "student-1",
		Grade:        models.GradeA,
	})
	require.NoError(t, err)
	assert.Equal(t, 3.57, gpa)
	require.NotNil(t, updated.Grade)
	assert.Equal(t, models.GradeA, *updated.Grade)
	assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	require.Len(t, calc.rows, 2)
	assert.Equal(t, 4, calc.rows[0].Credits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApplyGradeApprovesRequest(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{gpa: 2.5})

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	completedAt := enrolledAt.AddDate(0, 4, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusCompleted, models.GradeC, enrolledAt, completedAt, nil))
	mock.ExpectExec(regexp.QuoteMeta(`SET grade = $2, status = $3, completed_at = COALESCE(completed_at, $4)`)).
		WithArgs("enr-1", models.GradeB, models.EnrollmentStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE grade_change_requests`)).
		WithArgs("req-1", models.GradeChangeApproved, "registrar-1", sqlmock.AnyArg(), models.GradeChangePending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT e.grade, c.credits`)).
		WithArgs("student-1", models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"grade", "credits"}).AddRow(models.GradeB, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE students SET gpa = $2`)).
		WithArgs("student-1", 2.5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, gpa, err := repo.ApplyGrade(context.Background(), ApplyGradeParams{
		EnrollmentID:    "enr-1",
		StudentID:       "student-1",
		Grade:           models.GradeB,
		ChangeRequestID: "req-1",
		ExpectedGrade:   models.GradeC,
		ApprovedBy:      "registrar-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, gpa)
	assert.Equal(t, models.GradeB, *updated.Grade)
	// first completion date survives the regrade
	assert.True(t, updated.CompletedAt.Equal(completedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApplyGradeStaleRequestRollsBack(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusCompleted, models.GradeC, enrolledAt, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta(`SET grade = $2, status = $3, completed_at = COALESCE(completed_at, $4)`)).
		WithArgs("enr-1", models.GradeB, models.EnrollmentStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE grade_change_requests`)).
		WithArgs("req-1", models.GradeChangeApproved, "registrar-1", sqlmock.AnyArg(), models.GradeChangePending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, _, err := repo.ApplyGrade(context.Background(), ApplyGradeParams{
		EnrollmentID:    "enr-1",
		StudentID:       "student-1",
		Grade:           models.GradeB,
		ChangeRequestID: "req-1",
		ExpectedGrade:   models.GradeC,
		ApprovedBy:      "registrar-1",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApplyGradeRejectsWithdrawnRow(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	withdrawnAt := enrolledAt.AddDate(0, 2, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusWithdrawn, nil, enrolledAt, nil, withdrawnAt))
	mock.ExpectRollback()

	_, _, err := repo.ApplyGrade(context.Background(), ApplyGradeParams{
		EnrollmentID: "enr-1",
		StudentID:    "student-1",
		Grade:        models.GradeA,
	})
	assert.ErrorIs(t, err, ErrNotGradable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApplyGradeStaleExpectedGradeRollsBack(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusCompleted, models.GradeA, enrolledAt, nil, nil))
	mock.ExpectRollback()

	_, _, err := repo.ApplyGrade(context.Background(), ApplyGradeParams{
		EnrollmentID:    "enr-1",
		StudentID:       "student-1",
		Grade:           models.GradeB,
		ChangeRequestID: "req-1",
		ExpectedGrade:   models.GradeC,
		ApprovedBy:      "registrar-1",
	})
	assert.ErrorIs(t, err, ErrGradeChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApplyGradeKeepsCompletionDate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{gpa: 3.0})

	enrolledAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	completedAt := enrolledAt.AddDate(0, 4, 0)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE id = $1 FOR UPDATE`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusCompleted, models.GradeC, enrolledAt, completedAt, nil))
	mock.ExpectExec(regexp.QuoteMeta(`SET grade = $2, status = $3, completed_at = COALESCE(completed_at, $4)`)).
		WithArgs("enr-1", models.GradeB, models.EnrollmentStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT e.grade, c.credits`)).
		WithArgs("student-1", models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"grade", "credits"}).AddRow(models.GradeB, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE students SET gpa = $2`)).
		WithArgs("student-1", 3.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, _, err := repo.ApplyGrade(context.Background(), ApplyGradeParams{
		EnrollmentID: "enr-1",
		StudentID:    "student-1",
		Grade:        models.GradeB,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(completedAt))
}

func TestEnrollmentRepositoryWithdrawGuardsStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	withdrawnAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE enrollments SET status = $2, withdrawn_at = $3`)).
		WithArgs("enr-1", models.EnrollmentStatusWithdrawn, withdrawnAt, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Withdraw(context.Background(), "enr-1", withdrawnAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdrawCompletedRowNoop(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	withdrawnAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE enrollments SET status = $2, withdrawn_at = $3`)).
		WithArgs("enr-1", models.EnrollmentStatusWithdrawn, withdrawnAt, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Withdraw(context.Background(), "enr-1", withdrawnAt)
	assert.ErrorIs(t, err, ErrNotWithdrawable)
}

func TestEnrollmentRepositoryCountEnrolled(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`)).
		WithArgs("section-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))

	count, err := repo.CountEnrolled(context.Background(), "section-1")
	require.NoError(t, err)
	assert.Equal(t, 17, count)
}

func TestEnrollmentRepositoryListWaitlistFIFO(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, &stubCalc{})

	first := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY e.enrolled_at ASC, e.id ASC`)).
		WithArgs("section-1", models.EnrollmentStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "completed_at", "withdrawn_at", "student_name", "student_no", "course_code", "course_title", "term_name"}).
			AddRow("enr-1", "student-1", "section-1", models.EnrollmentStatusWaitlisted, nil, first, nil, nil, "Ada Byron", "S-001", "CS101", "Intro", "Fall 2026").
			AddRow("enr-2", "student-2", "section-1", models.EnrollmentStatusWaitlisted, nil, second, nil, nil, "Alan Kay", "S-002", "CS101", "Intro", "Fall 2026"))

	waitlist, err := repo.ListWaitlist(context.Background(), "section-1")
	require.NoError(t, err)
	require.Len(t, waitlist, 2)
	assert.Equal(t, "enr-1", waitlist[0].ID)
	assert.Equal(t, "enr-2", waitlist[1].ID)
}
