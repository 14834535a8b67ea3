package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/lock"
)

type courseGroupRepoStub struct {
	*memorySeatStore
	lastFilter models.CourseGroupFilter
}

func (r *courseGroupRepoStub) Create(_ context.Context, group *models.CourseGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if group.ID == "" {
		group.ID = "generated"
	}
	r.groups[group.ID] = *group
	return nil
}

func (r *courseGroupRepoStub) List(_ context.Context, filter models.CourseGroupFilter) ([]models.CourseGroup, int, error) {
	r.lastFilter = filter
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CourseGroup
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out, len(out), nil
}

type courseReaderStub map[string]models.Course

func (s courseReaderStub) FindByID(_ context.Context, id string) (*models.Course, error) {
	c, ok := s[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func newCourseGroupFixture(groups ...models.CourseGroup) (*CourseGroupService, *courseGroupRepoStub, *countingInvalidator) {
	store := newMemorySeatStore(groups...)
	repo := &courseGroupRepoStub{memorySeatStore: store}
	courses := courseReaderStub{"1": {ID: "1", Name: "Spanish A1", Category: "Languages"}}
	invalidator := &countingInvalidator{}
	svc := NewCourseGroupService(repo, courses, store, lock.NewKeyed(), invalidator, config.EnrollmentConfig{}, nil, nil, nil)
	return svc, repo, invalidator
}

func groupRequest(max int) CourseGroupRequest {
	start := time.Date(2026, 11, 1, 8, 0, 0, 0, time.UTC)
	return CourseGroupRequest{CourseID: "1", Batch: 1, MaxStudents: max, DateStart: start, DateEnd: start.Add(30 * 24 * time.Hour)}
}

func TestCourseGroupServiceCreate(t *testing.T) {
	svc, repo, invalidator := newCourseGroupFixture()

	group, err := svc.Create(context.Background(), groupRequest(10))
	require.NoError(t, err)
	assert.Equal(t, "generated", group.ID)
	assert.Equal(t, 10, repo.group("generated").MaxStudents)
	assert.Equal(t, 1, invalidator.count())
}

func TestCourseGroupServiceCreateValidation(t *testing.T) {
	svc, _, _ := newCourseGroupFixture()

	reversed := groupRequest(10)
	reversed.DateEnd = reversed.DateStart.Add(-time.Hour)
	_, err := svc.Create(context.Background(), reversed)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	zeroCapacity := groupRequest(0)
	_, err = svc.Create(context.Background(), zeroCapacity)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	unknownCourse := groupRequest(10)
	unknownCourse.CourseID = "404"
	_, err = svc.Create(context.Background(), unknownCourse)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCourseGroupServiceGetMissing(t *testing.T) {
	svc, _, _ := newCourseGroupFixture()
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, appErrors.ErrGroupNotFound)
}

func TestCourseGroupServiceShrinkRejection(t *testing.T) {
	svc, repo, invalidator := newCourseGroupFixture(openGroup("G1", 2))
	repo.put(models.Enrollment{CourseGroupID: "G1", StudentID: "S1", Status: models.EnrollmentStatusActive})
	repo.put(models.Enrollment{CourseGroupID: "G1", StudentID: "S2", Status: models.EnrollmentStatusActive})

	_, err := svc.Update(context.Background(), "G1", groupRequest(1))
	assert.ErrorIs(t, err, appErrors.ErrCapacityBelowEnrolled)
	assert.Equal(t, 2, repo.group("G1").MaxStudents)
	assert.Zero(t, invalidator.count())

	updated, err := svc.Update(context.Background(), "G1", groupRequest(2))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxStudents)
	assert.Equal(t, 1, invalidator.count())
}

func TestCourseGroupServiceUpdateMissing(t *testing.T) {
	svc, _, _ := newCourseGroupFixture()
	_, err := svc.Update(context.Background(), "nope", groupRequest(3))
	assert.ErrorIs(t, err, appErrors.ErrGroupNotFound)
}

func TestCourseGroupServiceDelete(t *testing.T) {
	svc, repo, _ := newCourseGroupFixture(openGroup("G1", 2))
	repo.put(models.Enrollment{CourseGroupID: "G1", StudentID: "S1", Status: models.EnrollmentStatusPending})
	repo.put(models.Enrollment{CourseGroupID: "G1", StudentID: "S2", Status: models.EnrollmentStatusCancelled})

	err := svc.Delete(context.Background(), "G1")
	assert.ErrorIs(t, err, appErrors.ErrHasActiveEnrollments)

	repo.put(models.Enrollment{CourseGroupID: "G1", StudentID: "S1", Status: models.EnrollmentStatusNoShow})
	require.NoError(t, svc.Delete(context.Background(), "G1"))

	_, err = svc.Get(context.Background(), "G1")
	assert.ErrorIs(t, err, appErrors.ErrGroupNotFound)
	_, ok := repo.enrollment("G1", "S2")
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Delete(context.Background(), "G1"), appErrors.ErrGroupNotFound)
}

func TestCourseGroupServiceListPagination(t *testing.T) {
	svc, repo, _ := newCourseGroupFixture(openGroup("G1", 2), openGroup("G2", 3))

	groups, pagination, err := svc.List(context.Background(), models.CourseGroupFilter{CourseID: "1", Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 2}, pagination)
	assert.Equal(t, "1", repo.lastFilter.CourseID)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, _, err = svc.List(context.Background(), models.CourseGroupFilter{StartFrom: &from, StartTo: &to})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
