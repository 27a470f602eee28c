package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openuni/registrar-api/internal/models"
)

func TestGradeChangeRepositoryCreateForcesPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeChangeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO grade_change_requests`)).
		WithArgs(sqlmock.AnyArg(), "enr-1", models.GradeC, models.GradeB, "regrade after appeal",
			models.GradeChangePending, "instructor-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	request := &models.GradeChangeRequest{
		EnrollmentID: "enr-1",
		OldGrade:     models.GradeC,
		NewGrade:     models.GradeB,
		Reason:       "regrade after appeal",
		Status:       models.GradeChangeApproved, // caller-supplied status is ignored
		RequestedBy:  "instructor-1",
	}
	err := repo.Create(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, models.GradeChangePending, request.Status)
	assert.NotEmpty(t, request.ID)
	assert.False(t, request.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeChangeRepositoryHasPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeChangeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM grade_change_requests WHERE enrollment_id = $1 AND status = $2 LIMIT 1`)).
		WithArgs("enr-1", models.GradeChangePending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	pending, err := repo.HasPending(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestGradeChangeRepositoryHasPendingNone(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeChangeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM grade_change_requests`)).
		WithArgs("enr-1", models.GradeChangePending).
		WillReturnError(sql.ErrNoRows)

	pending, err := repo.HasPending(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestGradeChangeRepositorySetDenied(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeChangeRepository(db)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE grade_change_requests`)).
		WithArgs("req-1", models.GradeChangeDenied, "registrar-1", at, "insufficient evidence", models.GradeChangePending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetDenied(context.Background(), "req-1", "registrar-1", "insufficient evidence", at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeChangeRepositorySetDeniedNotPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeChangeRepository(db)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE grade_change_requests`)).
		WithArgs("req-1", models.GradeChangeDenied, "registrar-1", at, "too late", models.GradeChangePending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetDenied(context.Background(), "req-1", "registrar-1", "too late", at)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGradeChangeRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewGradeChangeRepository(db)

	created := time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM grade_change_requests WHERE enrollment_id = $1 ORDER BY created_at DESC`)).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "enrollment_id", "old_grade", "new_grade", "reason", "status", "requested_by", "approved_by", "approved_at", "denial_reason", "created_at"}).
			AddRow("req-2", "enr-1", models.GradeC, models.GradeB, "appeal", models.GradeChangePending, "instructor-1", nil, nil, nil, created.Add(time.Hour)).
			AddRow("req-1", "enr-1", models.GradeD, models.GradeC, "clerical error", models.GradeChangeApproved, "instructor-1", "registrar-1", created, nil, created))

	requests, err := repo.ListByEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, "req-2", requests[0].ID)
	assert.Equal(t, models.GradeChangeApproved, requests[1].Status)
}
