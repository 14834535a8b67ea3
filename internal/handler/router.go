package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// Routes bundles the handlers mounted under the API prefix.
type Routes struct {
	CourseGroups *CourseGroupHandler
	Enrollments  *EnrollmentHandler
	Metrics      *MetricsHandler
	// Auth guards every mutating route. Reads stay public.
	Auth gin.HandlerFunc
}

// Register mounts the API on rg.
func (r Routes) Register(rg *gin.RouterGroup) {
	staff := []gin.HandlerFunc{middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)}
	if r.Auth != nil {
		staff = append([]gin.HandlerFunc{r.Auth}, staff...)
	}
	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, staff...), h)
	}

	groups := rg.Group("/course-groups")
	groups.GET("", r.CourseGroups.List)
	groups.GET("/available", r.CourseGroups.Available)
	groups.GET("/:id", r.CourseGroups.Get)
	groups.GET("/:id/occupancy", r.CourseGroups.Occupancy)
	groups.POST("", guarded(r.CourseGroups.Create)...)
	groups.PUT("/:id", guarded(r.CourseGroups.Update)...)
	groups.DELETE("/:id", guarded(r.CourseGroups.Delete)...)

	groups.GET("/:id/enrollments", r.Enrollments.Roster)
	groups.GET("/:id/enrollments/export", guarded(r.Enrollments.Export)...)
	groups.POST("/:id/enrollments", guarded(r.Enrollments.Enroll)...)
	groups.POST("/:id/enrollments/:studentId/cancel", guarded(r.Enrollments.Cancel)...)
	groups.PATCH("/:id/enrollments/:studentId/status", guarded(r.Enrollments.Transition)...)
	groups.DELETE("/:id/enrollments/:studentId", guarded(r.Enrollments.Withdraw)...)

	if r.Metrics != nil {
		rg.GET("/metrics/summary", r.Metrics.Summary)
	}
}
