package models

import "time"

// Course is a catalog entry. It is owned by the catalog and read-only here.
type Course struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"course_name" json:"course_name"`
	Category string `db:"category_name" json:"category_name"`
}

// CourseGroup is one scheduled, capacity-bounded offering of a course.
type CourseGroup struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Batch       int       `db:"batch" json:"batch"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	DateStart   time.Time `db:"date_start" json:"date_start"`
	DateEnd     time.Time `db:"date_end" json:"date_end"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseGroupFilter narrows course group listings.
type CourseGroupFilter struct {
	CourseID  string
	StartFrom *time.Time
	StartTo   *time.Time
	Page      int
	PageSize  int
}

// Occupancy is a point-in-time seat count for a group.
type Occupancy struct {
	CourseGroupID string `json:"course_group_id"`
	MaxStudents   int    `json:"max_students"`
	Occupied      int    `json:"occupied"`
	Remaining     int    `json:"remaining"`
}

// NewOccupancy derives the remaining seats, never reporting a negative value.
func NewOccupancy(group *CourseGroup, occupied int) Occupancy {
	remaining := group.MaxStudents - occupied
	if remaining < 0 {
		remaining = 0
	}
	return Occupancy{CourseGroupID: group.ID, MaxStudents: group.MaxStudents, Occupied: occupied, Remaining: remaining}
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
