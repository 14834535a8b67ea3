package service

import (
	"context"
	"database/sql"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
)

type enrollmentKey struct {
	group   string
	student string
}

// memorySeatStore keeps groups and enrollments in memory. WithinTx runs fn on a snapshot without
// holding the store mutex and merges only the rows fn wrote, so concurrent transactions on one
// group are serialised by the caller alone.
type memorySeatStore struct {
	mu          sync.Mutex
	groups      map[string]models.CourseGroup
	enrollments map[enrollmentKey]models.Enrollment
	failOn      map[string]error
	commits     int
	rollbacks   int
}

func newMemorySeatStore(groups ...models.CourseGroup) *memorySeatStore {
	s := &memorySeatStore{
		groups:      make(map[string]models.CourseGroup),
		enrollments: make(map[enrollmentKey]models.Enrollment),
		failOn:      make(map[string]error),
	}
	for _, g := range groups {
		s.groups[g.ID] = g
	}
	return s
}

func (s *memorySeatStore) WithinTx(ctx context.Context, fn func(repository.SeatLedger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ledger := s.snapshot()
	if err := fn(ledger); err != nil {
		s.mu.Lock()
		s.rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range ledger.inserted {
		if _, exists := s.enrollments[key]; exists {
			s.rollbacks++
			return repository.ErrDuplicateEnrollment
		}
	}
	for id := range ledger.dirtyGroups {
		if g, ok := ledger.groups[id]; ok {
			s.groups[id] = g
		} else {
			delete(s.groups, id)
		}
	}
	for key := range ledger.dirtyEnrollments {
		if e, ok := ledger.enrollments[key]; ok {
			s.enrollments[key] = e
		} else {
			delete(s.enrollments, key)
		}
	}
	s.commits++
	return nil
}

func (s *memorySeatStore) snapshot() *memoryLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger := &memoryLedger{
		groups:           make(map[string]models.CourseGroup, len(s.groups)),
		enrollments:      make(map[enrollmentKey]models.Enrollment, len(s.enrollments)),
		failOn:           make(map[string]error, len(s.failOn)),
		dirtyGroups:      make(map[string]struct{}),
		dirtyEnrollments: make(map[enrollmentKey]struct{}),
		inserted:         make(map[enrollmentKey]struct{}),
	}
	for k, v := range s.groups {
		ledger.groups[k] = v
	}
	for k, v := range s.enrollments {
		ledger.enrollments[k] = v
	}
	for k, v := range s.failOn {
		ledger.failOn[k] = v
	}
	return ledger
}

func (s *memorySeatStore) FindByID(_ context.Context, id string) (*models.CourseGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (s *memorySeatStore) FindByGroup(_ context.Context, groupID string) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for k, e := range s.enrollments {
		if k.group == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *memorySeatStore) CountOccupied(_ context.Context, groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countOccupied(s.enrollments, groupID), nil
}

func (s *memorySeatStore) enrollment(groupID, studentID string) (models.Enrollment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentKey{groupID, studentID}]
	return e, ok
}

func (s *memorySeatStore) group(id string) models.CourseGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id]
}

func (s *memorySeatStore) put(e models.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[enrollmentKey{e.CourseGroupID, e.StudentID}] = e
}

func countOccupied(enrollments map[enrollmentKey]models.Enrollment, groupID string) int {
	count := 0
	for k, e := range enrollments {
		if k.group == groupID && e.Status.OccupiesSeat() {
			count++
		}
	}
	return count
}

type memoryLedger struct {
	groups           map[string]models.CourseGroup
	enrollments      map[enrollmentKey]models.Enrollment
	failOn           map[string]error
	dirtyGroups      map[string]struct{}
	dirtyEnrollments map[enrollmentKey]struct{}
	inserted         map[enrollmentKey]struct{}
}

func (l *memoryLedger) LockGroup(_ context.Context, groupID string) (*models.CourseGroup, error) {
	if err := l.failOn["LockGroup"]; err != nil {
		return nil, err
	}
	g, ok := l.groups[groupID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (l *memoryLedger) CountOccupied(_ context.Context, groupID string) (int, error) {
	// Yield between the count and the insert so unserialised transactions interleave.
	runtime.Gosched()
	return countOccupied(l.enrollments, groupID), nil
}

func (l *memoryLedger) FindEnrollment(_ context.Context, groupID, studentID string) (*models.Enrollment, error) {
	e, ok := l.enrollments[enrollmentKey{groupID, studentID}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (l *memoryLedger) InsertEnrollment(_ context.Context, e *models.Enrollment) error {
	if err := l.failOn["InsertEnrollment"]; err != nil {
		return err
	}
	key := enrollmentKey{e.CourseGroupID, e.StudentID}
	if _, ok := l.enrollments[key]; ok {
		return repository.ErrDuplicateEnrollment
	}
	l.enrollments[key] = *e
	l.dirtyEnrollments[key] = struct{}{}
	l.inserted[key] = struct{}{}
	return nil
}

func (l *memoryLedger) UpdateEnrollmentStatus(_ context.Context, groupID, studentID string, status models.EnrollmentStatus, at time.Time) error {
	key := enrollmentKey{groupID, studentID}
	e, ok := l.enrollments[key]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	e.UpdatedAt = at
	l.enrollments[key] = e
	l.dirtyEnrollments[key] = struct{}{}
	return nil
}

func (l *memoryLedger) RemoveEnrollment(_ context.Context, groupID, studentID string) error {
	key := enrollmentKey{groupID, studentID}
	if _, ok := l.enrollments[key]; !ok {
		return sql.ErrNoRows
	}
	delete(l.enrollments, key)
	l.dirtyEnrollments[key] = struct{}{}
	return nil
}

func (l *memoryLedger) UpdateGroup(_ context.Context, group *models.CourseGroup) error {
	if _, ok := l.groups[group.ID]; !ok {
		return sql.ErrNoRows
	}
	l.groups[group.ID] = *group
	l.dirtyGroups[group.ID] = struct{}{}
	return nil
}

func (l *memoryLedger) DeleteGroup(_ context.Context, groupID string) error {
	if _, ok := l.groups[groupID]; !ok {
		return sql.ErrNoRows
	}
	for k, e := range l.enrollments {
		if k.group == groupID && !e.Status.OccupiesSeat() {
			delete(l.enrollments, k)
			l.dirtyEnrollments[k] = struct{}{}
		}
	}
	delete(l.groups, groupID)
	l.dirtyGroups[groupID] = struct{}{}
	return nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) InvalidateAvailability(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
