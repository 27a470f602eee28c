package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openuni/registrar-api/internal/service"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
	"github.com/openuni/registrar-api/pkg/response"
)

// GradeHandler exposes grade submission and change-request endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

type gradeResult struct {
	Enrollment interface{} `json:"enrollment"`
	GPA        float64     `json:"gpa"`
}

// Submit godoc
// @Summary Submit a grade for an enrollment
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.GradeSubmission true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GradeSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, gpa, err := h.grades.SubmitGrade(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gradeResult{Enrollment: enrollment, GPA: gpa}, nil)
}

// BulkSubmit godoc
// @Summary Submit grades for a section in bulk
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkGradeRequest true "Bulk grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) BulkSubmit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BulkGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.grades.BulkSubmitGrades(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RequestChange godoc
// @Summary Open a grade change request
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.GradeChangeInput true "Change request payload"
// @Success 201 {object} response.Envelope
// @Router /grade-changes [post]
func (h *GradeHandler) RequestChange(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GradeChangeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.grades.RequestGradeChange(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ApproveChange godoc
// @Summary Approve a pending grade change request
// @Tags Grades
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /grade-changes/{id}/approve [put]
func (h *GradeHandler) ApproveChange(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, gpa, err := h.grades.ApproveGradeChange(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gradeResult{Enrollment: enrollment, GPA: gpa}, nil)
}

type denyChangeRequest struct {
	Reason string `json:"reason"`
}

// DenyChange godoc
// @Summary Deny a pending grade change request
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body denyChangeRequest true "Denial payload"
// @Success 200 {object} response.Envelope
// @Router /grade-changes/{id}/deny [put]
func (h *GradeHandler) DenyChange(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req denyChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.grades.DenyGradeChange(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// ListChanges godoc
// @Summary List grade change requests for an enrollment
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade-changes [get]
func (h *GradeHandler) ListChanges(c *gin.Context) {
	requests, err := h.grades.ListGradeChanges(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}
