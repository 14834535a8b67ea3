package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type fakeCourseGroupSrv struct {
	group      *models.CourseGroup
	err        error
	lastFilter models.CourseGroupFilter
	lastReq    service.CourseGroupRequest
}

func (f *fakeCourseGroupSrv) Create(_ context.Context, req service.CourseGroupRequest) (*models.CourseGroup, error) {
	f.lastReq = req
	return f.group, f.err
}

func (f *fakeCourseGroupSrv) Get(context.Context, string) (*models.CourseGroup, error) {
	return f.group, f.err
}

func (f *fakeCourseGroupSrv) List(_ context.Context, filter models.CourseGroupFilter) ([]models.CourseGroup, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.CourseGroup{}, &models.Pagination{Page: 1, PageSize: 20}, f.err
}

func (f *fakeCourseGroupSrv) Update(_ context.Context, _ string, req service.CourseGroupRequest) (*models.CourseGroup, error) {
	f.lastReq = req
	return f.group, f.err
}

func (f *fakeCourseGroupSrv) Delete(context.Context, string) error {
	return f.err
}

type fakeAvailabilitySrv struct {
	result models.AvailabilityByCategory
	hit    bool
	asOf   time.Time
}

func (f *fakeAvailabilitySrv) ListAvailable(_ context.Context, asOf time.Time) (models.AvailabilityByCategory, bool, error) {
	f.asOf = asOf
	return f.result, f.hit, nil
}

type fakeCapacitySrv struct {
	enrollment *models.Enrollment
	err        error
	calls      []string
}

func (f *fakeCapacitySrv) Enroll(_ context.Context, groupID string, req service.EnrollRequest) (*models.Enrollment, error) {
	f.calls = append(f.calls, "enroll:"+groupID+":"+req.StudentID)
	return f.enrollment, f.err
}

func (f *fakeCapacitySrv) Cancel(_ context.Context, groupID, studentID string) error {
	f.calls = append(f.calls, "cancel:"+groupID+":"+studentID)
	return f.err
}

func (f *fakeCapacitySrv) Transition(_ context.Context, groupID, studentID string, req service.TransitionRequest) (*models.Enrollment, error) {
	f.calls = append(f.calls, "transition:"+groupID+":"+studentID+":"+string(req.Status))
	return f.enrollment, f.err
}

func (f *fakeCapacitySrv) Withdraw(_ context.Context, groupID, studentID string) error {
	f.calls = append(f.calls, "withdraw:"+groupID+":"+studentID)
	return f.err
}

func (f *fakeCapacitySrv) Roster(context.Context, string) (*models.CourseGroup, []models.Enrollment, error) {
	return &models.CourseGroup{ID: "G1"}, []models.Enrollment{{CourseGroupID: "G1", StudentID: "S1"}}, f.err
}

func (f *fakeCapacitySrv) Occupancy(context.Context, string) (*models.Occupancy, error) {
	return &models.Occupancy{CourseGroupID: "G1", MaxStudents: 2, Occupied: 1, Remaining: 1}, f.err
}

type fakeExporter struct{}

func (fakeExporter) Export(_ context.Context, groupID, format string) (*service.RosterFile, error) {
	if format != "csv" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.RosterFile{Filename: "roster-" + groupID + ".csv", ContentType: "text/csv; charset=utf-8", Body: []byte("student_id\nS1\n")}, nil
}

func buildRouter(groups *fakeCourseGroupSrv, availability *fakeAvailabilitySrv, capacity *fakeCapacitySrv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(internalmiddleware.WithResponseMeta())
	testAuth := func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1", Role: models.UserRole(role)})
		}
		c.Next()
	}
	Routes{
		CourseGroups: NewCourseGroupHandler(groups, availability, capacity),
		Enrollments:  NewEnrollmentHandler(capacity, fakeExporter{}),
		Auth:         testAuth,
	}.Register(router.Group("/api/v1"))
	return router
}

func performRequest(router *gin.Engine, method, path, body, role string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestEnrollEndpointCreated(t *testing.T) {
	capacity := &fakeCapacitySrv{enrollment: &models.Enrollment{CourseGroupID: "G1", StudentID: "S1", Status: models.EnrollmentStatusPending}}
	router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, capacity)

	w := performRequest(router, http.MethodPost, "/api/v1/course-groups/G1/enrollments", `{"student_id":"S1","course_price_id":"10"}`, "STAFF")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"enroll:G1:S1"}, capacity.calls)
	env := decodeEnvelope(t, w)
	var enrollment models.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
}

func TestEnrollEndpointMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err    *appErrors.Error
		status int
	}{
		{appErrors.ErrCapacityExceeded, http.StatusConflict},
		{appErrors.ErrAlreadyEnrolled, http.StatusConflict},
		{appErrors.ErrGroupClosed, http.StatusConflict},
		{appErrors.ErrGroupNotFound, http.StatusNotFound},
		{appErrors.ErrUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.err.Code, func(t *testing.T) {
			router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, &fakeCapacitySrv{err: tc.err})
			w := performRequest(router, http.MethodPost, "/api/v1/course-groups/G1/enrollments", `{"student_id":"S1","course_price_id":"10"}`, "ADMIN")
			assert.Equal(t, tc.status, w.Code)
			env := decodeEnvelope(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.err.Code, env.Error.Code)
		})
	}
}

func TestEnrollEndpointRejectsMalformedJSON(t *testing.T) {
	capacity := &fakeCapacitySrv{}
	router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, capacity)

	w := performRequest(router, http.MethodPost, "/api/v1/course-groups/G1/enrollments", `{"student_id":`, "STAFF")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, capacity.calls)
}

func TestMutatingRoutesRequireStaff(t *testing.T) {
	capacity := &fakeCapacitySrv{}
	router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, capacity)

	w := performRequest(router, http.MethodPost, "/api/v1/course-groups/G1/enrollments/S1/cancel", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(router, http.MethodPost, "/api/v1/course-groups/G1/enrollments/S1/cancel", "", "STUDENT")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, capacity.calls)
}

func TestCancelTransitionWithdrawEndpoints(t *testing.T) {
	capacity := &fakeCapacitySrv{enrollment: &models.Enrollment{Status: models.EnrollmentStatusActive}}
	router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, capacity)

	w := performRequest(router, http.MethodPost, "/api/v1/course-groups/G1/enrollments/S1/cancel", "", "STAFF")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = performRequest(router, http.MethodPatch, "/api/v1/course-groups/G1/enrollments/S1/status", `{"status":"ACTIVE"}`, "STAFF")
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, http.MethodDelete, "/api/v1/course-groups/G1/enrollments/S1", "", "STAFF")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{"cancel:G1:S1", "transition:G1:S1:ACTIVE", "withdraw:G1:S1"}, capacity.calls)
}

func TestTransitionEndpointIllegal(t *testing.T) {
	router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, &fakeCapacitySrv{err: appErrors.ErrIllegalTransition})
	w := performRequest(router, http.MethodPatch, "/api/v1/course-groups/G1/enrollments/S1/status", `{"status":"ACTIVE"}`, "STAFF")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAvailableEndpoint(t *testing.T) {
	availability := &fakeAvailabilitySrv{
		result: models.AvailabilityByCategory{"Languages": {{CourseGroupID: "g1", CourseName: "French", Batch: 1, MaxStudents: 10, StudentsEnrolled: 2}}},
		hit:    true,
	}
	router := buildRouter(&fakeCourseGroupSrv{}, availability, &fakeCapacitySrv{})

	w := performRequest(router, http.MethodGet, "/api/v1/course-groups/available?asOf=2026-10-15T00:00:00Z", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), availability.asOf)

	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var result models.AvailabilityByCategory
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "French", result["Languages"][0].CourseName)

	w = performRequest(router, http.MethodGet, "/api/v1/course-groups/available?asOf=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCourseGroupEndpoints(t *testing.T) {
	groups := &fakeCourseGroupSrv{group: &models.CourseGroup{ID: "G1", MaxStudents: 5}}
	router := buildRouter(groups, &fakeAvailabilitySrv{}, &fakeCapacitySrv{})

	w := performRequest(router, http.MethodGet, "/api/v1/course-groups?courseId=7&startFrom=2026-11-01&page=2&limit=5", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", groups.lastFilter.CourseID)
	assert.Equal(t, 2, groups.lastFilter.Page)
	require.NotNil(t, groups.lastFilter.StartFrom)

	body := `{"course_id":"7","batch":1,"max_students":5,"date_start":"2026-11-01T08:00:00Z","date_end":"2026-12-01T08:00:00Z"}`
	w = performRequest(router, http.MethodPost, "/api/v1/course-groups", body, "ADMIN")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 5, groups.lastReq.MaxStudents)

	w = performRequest(router, http.MethodGet, "/api/v1/course-groups/G1/occupancy", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	groups.err = appErrors.ErrCapacityBelowEnrolled
	w = performRequest(router, http.MethodPut, "/api/v1/course-groups/G1", body, "ADMIN")
	assert.Equal(t, http.StatusConflict, w.Code)

	groups.err = appErrors.ErrHasActiveEnrollments
	w = performRequest(router, http.MethodDelete, "/api/v1/course-groups/G1", "", "ADMIN")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRosterExportEndpoint(t *testing.T) {
	router := buildRouter(&fakeCourseGroupSrv{}, &fakeAvailabilitySrv{}, &fakeCapacitySrv{})

	w := performRequest(router, http.MethodGet, "/api/v1/course-groups/G1/enrollments/export", "", "STAFF")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="roster-G1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "student_id\nS1\n", w.Body.String())

	w = performRequest(router, http.MethodGet, "/api/v1/course-groups/G1/enrollments/export?format=xlsx", "", "STAFF")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return appErrors.ErrUnavailable },
	})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)
}
