package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/internal/service"
	appErrors "github.com/openuni/registrar-api/pkg/errors"
	"github.com/openuni/registrar-api/pkg/response"
)

// SectionHandler exposes section scheduling and waitlist endpoints.
type SectionHandler struct {
	sections    *service.SectionService
	enrollments *service.EnrollmentService
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections *service.SectionService, enrollments *service.EnrollmentService) *SectionHandler {
	return &SectionHandler{sections: sections, enrollments: enrollments}
}

// List godoc
// @Summary List sections
// @Tags Sections
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param termId query string false "Filter by term"
// @Param instructorId query string false "Filter by instructor"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	var filter models.SectionFilter
	filter.CourseID = c.Query("courseId")
	filter.TermID = c.Query("termId")
	filter.InstructorID = c.Query("instructorId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	sections, pagination, err := h.sections.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get a section with occupancy counts
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.sections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Create godoc
// @Summary Schedule a section
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.sections.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// UpdateCapacity godoc
// @Summary Change a section's seat capacity
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.UpdateCapacityRequest true "Capacity payload"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/capacity [put]
func (h *SectionHandler) UpdateCapacity(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.sections.UpdateCapacity(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Waitlist godoc
// @Summary List a section's waitlist in promotion order
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist [get]
func (h *SectionHandler) Waitlist(c *gin.Context) {
	waitlist, err := h.enrollments.Waitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, waitlist, nil)
}

// Promote godoc
// @Summary Promote the oldest waitlisted enrollment
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/promote [post]
func (h *SectionHandler) Promote(c *gin.Context) {
	promoted, err := h.enrollments.Promote(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if promoted == nil {
		response.JSON(c, http.StatusOK, gin.H{"promoted": false}, nil)
		return
	}
	response.JSON(c, http.StatusOK, promoted, nil)
}
