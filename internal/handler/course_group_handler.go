package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type courseGroupService interface {
	Create(ctx context.Context, req service.CourseGroupRequest) (*models.CourseGroup, error)
	Get(ctx context.Context, id string) (*models.CourseGroup, error)
	List(ctx context.Context, filter models.CourseGroupFilter) ([]models.CourseGroup, *models.Pagination, error)
	Update(ctx context.Context, id string, req service.CourseGroupRequest) (*models.CourseGroup, error)
	Delete(ctx context.Context, id string) error
}

type availabilityService interface {
	ListAvailable(ctx context.Context, asOf time.Time) (models.AvailabilityByCategory, bool, error)
}

type occupancyService interface {
	Occupancy(ctx context.Context, groupID string) (*models.Occupancy, error)
}

// CourseGroupHandler exposes course group endpoints.
type CourseGroupHandler struct {
	groups       courseGroupService
	availability availabilityService
	occupancy    occupancyService
}

// NewCourseGroupHandler constructs CourseGroupHandler.
func NewCourseGroupHandler(groups courseGroupService, availability availabilityService, occupancy occupancyService) *CourseGroupHandler {
	return &CourseGroupHandler{groups: groups, availability: availability, occupancy: occupancy}
}

// List godoc
// @Summary List course groups
// @Tags CourseGroups
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param startFrom query string false "Earliest date_start (RFC3339 or YYYY-MM-DD)"
// @Param startTo query string false "Latest date_start (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /course-groups [get]
func (h *CourseGroupHandler) List(c *gin.Context) {
	filter := models.CourseGroupFilter{
		CourseID: c.Query("courseId"),
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "limit", 20),
	}
	from, err := parseTimeQuery(c, "startFrom")
	if err != nil {
		response.Error(c, err)
		return
	}
	if !from.IsZero() {
		filter.StartFrom = &from
	}
	to, err := parseTimeQuery(c, "startTo")
	if err != nil {
		response.Error(c, err)
		return
	}
	if !to.IsZero() {
		filter.StartTo = &to
	}

	groups, pagination, err := h.groups.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, pagination)
}

// Available godoc
// @Summary Open course groups grouped by category
// @Tags CourseGroups
// @Produce json
// @Param asOf query string false "Only groups starting at or after this instant (default now)"
// @Success 200 {object} response.Envelope
// @Router /course-groups/available [get]
func (h *CourseGroupHandler) Available(c *gin.Context) {
	asOf, err := parseTimeQuery(c, "asOf")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, hit, err := h.availability.ListAvailable(c.Request.Context(), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get course group
// @Tags CourseGroups
// @Produce json
// @Param id path string true "Course group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /course-groups/{id} [get]
func (h *CourseGroupHandler) Get(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Occupancy godoc
// @Summary Live seat count of a course group
// @Tags CourseGroups
// @Produce json
// @Param id path string true "Course group ID"
// @Success 200 {object} response.Envelope
// @Router /course-groups/{id}/occupancy [get]
func (h *CourseGroupHandler) Occupancy(c *gin.Context) {
	occupancy, err := h.occupancy.Occupancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy, nil)
}

// Create godoc
// @Summary Create course group
// @Tags CourseGroups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CourseGroupRequest true "Course group payload"
// @Success 201 {object} response.Envelope
// @Router /course-groups [post]
func (h *CourseGroupHandler) Create(c *gin.Context) {
	var req service.CourseGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Replace course group attributes
// @Tags CourseGroups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course group ID"
// @Param payload body service.CourseGroupRequest true "Course group payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /course-groups/{id} [put]
func (h *CourseGroupHandler) Update(c *gin.Context) {
	var req service.CourseGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete course group
// @Tags CourseGroups
// @Security BearerAuth
// @Param id path string true "Course group ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /course-groups/{id} [delete]
func (h *CourseGroupHandler) Delete(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
