package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]*models.Student
	created  []*models.Student
	updated  []*models.Student
}

func (m *mockStudentRepo) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func (m *mockStudentRepo) List(_ context.Context, _ models.StudentFilter) ([]models.Student, int, error) {
	var items []models.Student
	for _, student := range m.students {
		items = append(items, *student)
	}
	return items, len(items), nil
}

func (m *mockStudentRepo) Create(_ context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = map[string]*models.Student{}
	}
	m.students[student.ID] = student
	m.created = append(m.created, student)
	return nil
}

func (m *mockStudentRepo) Update(_ context.Context, student *models.Student) error {
	m.students[student.ID] = student
	m.updated = append(m.updated, student)
	return nil
}

func TestStudentServiceCreate(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, nil, nil)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-001",
		FullName:  "Ada Byron",
		Email:     "ada@openuni.edu",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, models.StudentStatusActive, student.Status)
	assert.Zero(t, student.GPA)
	require.Len(t, repo.created, 1)
}

func TestStudentServiceCreateInvalidEmail(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		StudentNo: "S-001",
		FullName:  "Ada Byron",
		Email:     "not-an-email",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceUpdateNeverTouchesGPA(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]*models.Student{
		"student-1": {ID: "student-1", FullName: "Ada Byron", Status: models.StudentStatusActive, GPA: 3.57},
	}}
	svc := NewStudentService(repo, nil, nil)

	student, err := svc.Update(context.Background(), "student-1", UpdateStudentRequest{
		FullName: "Ada Lovelace",
		Status:   "SUSPENDED",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", student.FullName)
	assert.Equal(t, models.StudentStatusSuspended, student.Status)
	assert.Equal(t, 3.57, student.GPA)
}

func TestStudentServiceUpdateRejectsUnknownStatus(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]*models.Student{
		"student-1": {ID: "student-1", Status: models.StudentStatusActive},
	}}
	svc := NewStudentService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "student-1", UpdateStudentRequest{Status: "EXPELLED"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.updated)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
