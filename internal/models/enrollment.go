package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentStatusNoShow    EnrollmentStatus = "NO_SHOW"
)

// enrollmentTransitions lists every legal edge; anything else is illegal.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending: {EnrollmentStatusActive, EnrollmentStatusCancelled},
	EnrollmentStatusActive:  {EnrollmentStatusCompleted, EnrollmentStatusCancelled, EnrollmentStatusNoShow},
}

// OccupyingStatuses are the statuses counted against a group's capacity.
func OccupyingStatuses() []EnrollmentStatus {
	return []EnrollmentStatus{EnrollmentStatusPending, EnrollmentStatusActive, EnrollmentStatusCompleted}
}

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusActive, EnrollmentStatusCompleted, EnrollmentStatusCancelled, EnrollmentStatusNoShow:
		return true
	}
	return false
}

// OccupiesSeat reports whether an enrollment in this status holds a seat.
// COMPLETED keeps its seat so historical occupancy stays intact.
func (s EnrollmentStatus) OccupiesSeat() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusActive, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusCompleted, EnrollmentStatusCancelled, EnrollmentStatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a listed edge.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, candidate := range enrollmentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Enrollment binds one student to one course group. (CourseGroupID, StudentID) is its identity.
type Enrollment struct {
	CourseGroupID  string           `db:"course_group_id" json:"course_group_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	DateStart      time.Time        `db:"date_start" json:"date_start"`
	DateEnd        time.Time        `db:"date_end" json:"date_end"`
	CoursePriceID  string           `db:"course_price_id" json:"course_price_id"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}
