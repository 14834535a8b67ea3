package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type capacityService interface {
	Enroll(ctx context.Context, groupID string, req service.EnrollRequest) (*models.Enrollment, error)
	Cancel(ctx context.Context, groupID, studentID string) error
	Transition(ctx context.Context, groupID, studentID string, req service.TransitionRequest) (*models.Enrollment, error)
	Withdraw(ctx context.Context, groupID, studentID string) error
	Roster(ctx context.Context, groupID string) (*models.CourseGroup, []models.Enrollment, error)
}

type rosterExporter interface {
	Export(ctx context.Context, groupID, format string) (*service.RosterFile, error)
}

// EnrollmentHandler exposes seat reservation endpoints nested under a course group.
type EnrollmentHandler struct {
	capacity capacityService
	exporter rosterExporter
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(capacity capacityService, exporter rosterExporter) *EnrollmentHandler {
	return &EnrollmentHandler{capacity: capacity, exporter: exporter}
}

// Roster godoc
// @Summary List enrollments of a course group
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course group ID"
// @Success 200 {object} response.Envelope
// @Router /course-groups/{id}/enrollments [get]
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	_, enrollments, err := h.capacity.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Export godoc
// @Summary Download a course group roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course group ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /course-groups/{id}/enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	file, err := h.exporter.Export(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Enroll godoc
// @Summary Reserve a seat for a student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course group ID"
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /course-groups/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.capacity.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Cancel godoc
// @Summary Cancel an enrollment, releasing its seat
// @Tags Enrollments
// @Security BearerAuth
// @Param id path string true "Course group ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /course-groups/{id}/enrollments/{studentId}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	if err := h.capacity.Cancel(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Transition godoc
// @Summary Change enrollment status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course group ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /course-groups/{id}/enrollments/{studentId}/status [patch]
func (h *EnrollmentHandler) Transition(c *gin.Context) {
	var req service.TransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.capacity.Transition(c.Request.Context(), c.Param("id"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Withdraw godoc
// @Summary Remove an enrollment record
// @Tags Enrollments
// @Security BearerAuth
// @Param id path string true "Course group ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /course-groups/{id}/enrollments/{studentId} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	if err := h.capacity.Withdraw(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
