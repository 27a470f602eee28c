package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openuni/registrar-api/internal/middleware"
	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/internal/repository"
	"github.com/openuni/registrar-api/internal/service"
	"github.com/openuni/registrar-api/pkg/response"
)

type gradeApplierStub struct {
	enrollments map[string]*models.Enrollment
	gpa         float64
}

func (m *gradeApplierStub) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

func (m *gradeApplierStub) ApplyGrade(_ context.Context, params repository.ApplyGradeParams) (*models.Enrollment, float64, error) {
	enrollment := m.enrollments[params.EnrollmentID]
	grade := params.Grade
	enrollment.Grade = &grade
	enrollment.Status = models.EnrollmentStatusCompleted
	return enrollment, m.gpa, nil
}

type changeRepoStub struct {
	requests map[string]*models.GradeChangeRequest
}

func (m *changeRepoStub) Create(_ context.Context, request *models.GradeChangeRequest) error {
	request.Status = models.GradeChangePending
	m.requests[request.ID] = request
	return nil
}

func (m *changeRepoStub) FindByID(_ context.Context, id string) (*models.GradeChangeRequest, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return request, nil
}

func (m *changeRepoStub) HasPending(context.Context, string) (bool, error) { return false, nil }

func (m *changeRepoStub) SetDenied(_ context.Context, id, deniedBy, reason string, at time.Time) error {
	request, ok := m.requests[id]
	if !ok || request.Status != models.GradeChangePending {
		return sql.ErrNoRows
	}
	request.Status = models.GradeChangeDenied
	request.ApprovedBy = &deniedBy
	request.ApprovedAt = &at
	request.DenialReason = &reason
	return nil
}

func (m *changeRepoStub) ListByEnrollment(_ context.Context, enrollmentID string) ([]models.GradeChangeRequest, error) {
	var out []models.GradeChangeRequest
	for _, request := range m.requests {
		if request.EnrollmentID == enrollmentID {
			out = append(out, *request)
		}
	}
	return out, nil
}

type termReaderStub struct {
	term *models.Term
}

func (m *termReaderStub) FindBySection(context.Context, string) (*models.Term, error) {
	if m.term == nil {
		return nil, sql.ErrNoRows
	}
	return m.term, nil
}

type authzStub struct {
	override   bool
	instructor bool
}

func (m *authzStub) CanOverrideGradingDeadline(service.Actor) bool { return m.override }

func (m *authzStub) IsInstructorOfRecord(context.Context, service.Actor, string) (bool, error) {
	return m.instructor, nil
}

func newGradeHandlerFixture(authz *authzStub) (*GradeHandler, *changeRepoStub) {
	deadline := time.Now().UTC().AddDate(0, 1, 0)
	enrollments := &gradeApplierStub{
		enrollments: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", StudentID: "student-1", SectionID: "section-1", Status: models.EnrollmentStatusEnrolled},
		},
		gpa: 3.4,
	}
	changes := &changeRepoStub{requests: map[string]*models.GradeChangeRequest{}}
	terms := &termReaderStub{term: &models.Term{ID: "term-1", EndDate: deadline, GradeDeadline: &deadline}}
	svc := service.NewGradeService(enrollments, changes, terms, authz, nil, nil, nil, nil, nil, nil, nil)
	return NewGradeHandler(svc), changes
}

func gradeTestContext(t *testing.T, method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func TestGradeHandlerSubmit(t *testing.T) {
	handler, _ := newGradeHandlerFixture(&authzStub{instructor: true})

	payload, _ := json.Marshal(service.GradeSubmission{EnrollmentID: "enr-1", Grade: "A"})
	c, w := gradeTestContext(t, http.MethodPost, "/grades", payload, &models.JWTClaims{UserID: "instructor-1", Role: models.RoleInstructor})

	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.4, data["gpa"])
}

func TestGradeHandlerSubmitWithoutAuth(t *testing.T) {
	handler, _ := newGradeHandlerFixture(&authzStub{instructor: true})

	payload, _ := json.Marshal(service.GradeSubmission{EnrollmentID: "enr-1", Grade: "A"})
	c, w := gradeTestContext(t, http.MethodPost, "/grades", payload, nil)

	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGradeHandlerSubmitMalformedBody(t *testing.T) {
	handler, _ := newGradeHandlerFixture(&authzStub{instructor: true})

	c, w := gradeTestContext(t, http.MethodPost, "/grades", []byte(`{"enrollment_id":`), &models.JWTClaims{UserID: "instructor-1", Role: models.RoleInstructor})

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradeHandlerApproveChangeForbiddenForInstructor(t *testing.T) {
	handler, changes := newGradeHandlerFixture(&authzStub{instructor: true})
	changes.requests["req-1"] = &models.GradeChangeRequest{
		ID: "req-1", EnrollmentID: "enr-1", OldGrade: models.GradeC, NewGrade: models.GradeB, Status: models.GradeChangePending,
	}

	c, w := gradeTestContext(t, http.MethodPut, "/grade-changes/req-1/approve", nil, &models.JWTClaims{UserID: "instructor-1", Role: models.RoleInstructor})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.ApproveChange(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGradeHandlerDenyChange(t *testing.T) {
	handler, changes := newGradeHandlerFixture(&authzStub{override: true})
	changes.requests["req-1"] = &models.GradeChangeRequest{
		ID: "req-1", EnrollmentID: "enr-1", OldGrade: models.GradeC, NewGrade: models.GradeB, Status: models.GradeChangePending,
	}

	payload, _ := json.Marshal(map[string]string{"reason": "insufficient evidence"})
	c, w := gradeTestContext(t, http.MethodPut, "/grade-changes/req-1/deny", payload, &models.JWTClaims{UserID: "registrar-1", Role: models.RoleRegistrar})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.DenyChange(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.GradeChangeDenied, changes.requests["req-1"].Status)
}

func TestGradeHandlerListChanges(t *testing.T) {
	handler, changes := newGradeHandlerFixture(&authzStub{override: true})
	changes.requests["req-1"] = &models.GradeChangeRequest{ID: "req-1", EnrollmentID: "enr-1", Status: models.GradeChangePending}

	c, w := gradeTestContext(t, http.MethodGet, "/enrollments/enr-1/grade-changes", nil, &models.JWTClaims{UserID: "registrar-1", Role: models.RoleRegistrar})
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}

	handler.ListChanges(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	items, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
}
