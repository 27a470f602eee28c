package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openuni/registrar-api/internal/models"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
)

type mockTermRepo struct {
	terms   map[string]*models.Term
	created []*models.Term
	updated []*models.Term
}

func (m *mockTermRepo) FindByID(_ context.Context, id string) (*models.Term, error) {
	term, ok := m.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return term, nil
}

func (m *mockTermRepo) List(_ context.Context, _ models.TermFilter) ([]models.Term, int, error) {
	var items []models.Term
	for _, term := range m.terms {
		items = append(items, *term)
	}
	return items, len(items), nil
}

func (m *mockTermRepo) Create(_ context.Context, term *models.Term) error {
	if m.terms == nil {
		m.terms = map[string]*models.Term{}
	}
	m.terms[term.ID] = term
	m.created = append(m.created, term)
	return nil
}

func (m *mockTermRepo) Update(_ context.Context, term *models.Term) error {
	m.terms[term.ID] = term
	m.updated = append(m.updated, term)
	return nil
}

func TestTermServiceCreate(t *testing.T) {
	repo := &mockTermRepo{}
	svc := NewTermService(repo, nil, nil)

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 4, 0)
	deadline := end.AddDate(0, 0, 14)
	term, err := svc.Create(context.Background(), CreateTermRequest{
		Name:          "Fall 2026",
		AcademicYear:  "2026/2027",
		StartDate:     start,
		EndDate:       end,
		GradeDeadline: &deadline,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, term.ID)
	require.Len(t, repo.created, 1)
}

func TestTermServiceCreateEndBeforeStart(t *testing.T) {
	svc := NewTermService(&mockTermRepo{}, nil, nil)

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), CreateTermRequest{
		Name:         "Fall 2026",
		AcademicYear: "2026/2027",
		StartDate:    start,
		EndDate:      start.AddDate(0, -1, 0),
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTermServiceCreateDeadlineBeforeEnd(t *testing.T) {
	svc := NewTermService(&mockTermRepo{}, nil, nil)

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 4, 0)
	deadline := end.AddDate(0, 0, -7)
	_, err := svc.Create(context.Background(), CreateTermRequest{
		Name:          "Fall 2026",
		AcademicYear:  "2026/2027",
		StartDate:     start,
		EndDate:       end,
		GradeDeadline: &deadline,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTermServiceUpdateExtendsDeadline(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 4, 0)
	repo := &mockTermRepo{terms: map[string]*models.Term{
		"term-1": {ID: "term-1", Name: "Fall 2026", StartDate: start, EndDate: end},
	}}
	svc := NewTermService(repo, nil, nil)

	deadline := end.AddDate(0, 1, 0)
	term, err := svc.Update(context.Background(), "term-1", UpdateTermRequest{GradeDeadline: &deadline})
	require.NoError(t, err)
	require.NotNil(t, term.GradeDeadline)
	assert.True(t, term.GradeDeadline.Equal(deadline))
}

func TestTermServiceUpdateRevalidatesDates(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 4, 0)
	repo := &mockTermRepo{terms: map[string]*models.Term{
		"term-1": {ID: "term-1", StartDate: start, EndDate: end},
	}}
	svc := NewTermService(repo, nil, nil)

	badEnd := start.AddDate(0, -1, 0)
	_, err := svc.Update(context.Background(), "term-1", UpdateTermRequest{EndDate: &badEnd})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.updated)
}
