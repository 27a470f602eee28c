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

type mockCourseRepo struct {
	courses map[string]*models.Course
	created []*models.Course
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: map[string]*models.Course{}}
}

func (m *mockCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

func (m *mockCourseRepo) List(_ context.Context, _ models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, c := range m.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) Create(_ context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	m.created = append(m.created, course)
	return nil
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Code:    "CS101",
		Title:   "Introduction to Programming",
		Credits: 4,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, course.ID)
	assert.Equal(t, "CS101", course.Code)
	require.Len(t, repo.created, 1)
}

func TestCourseServiceCreateRejectsZeroCredits(t *testing.T) {
	repo := newMockCourseRepo()
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{Code: "CS101", Title: "Intro", Credits: 0})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestCourseServiceGetNotFound(t *testing.T) {
	svc := NewCourseService(newMockCourseRepo(), nil, nil)

	_, err := svc.Get(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceListPagination(t *testing.T) {
	repo := newMockCourseRepo()
	repo.courses["c-1"] = &models.Course{ID: "c-1", Code: "CS101", Title: "Intro", Credits: 4}
	svc := NewCourseService(repo, nil, nil)

	courses, pagination, err := svc.List(context.Background(), models.CourseFilter{})

	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
