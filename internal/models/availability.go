package models

// AvailabilityRow is one open group joined to its course, category and live seat count.
type AvailabilityRow struct {
	CourseGroupID    string `db:"course_group_id"`
	CategoryName     string `db:"category_name"`
	CourseName       string `db:"course_name"`
	Batch            int    `db:"batch"`
	MaxStudents      int    `db:"max_students"`
	StudentsEnrolled int    `db:"students_enrolled"`
}

// AvailableGroupSummary is the public projection of an open group.
type AvailableGroupSummary struct {
	CourseGroupID    string `json:"course_group_id"`
	CourseName       string `json:"course_name"`
	Batch            int    `json:"course_batch"`
	MaxStudents      int    `json:"max_students"`
	StudentsEnrolled int    `json:"students_enrolled"`
}

// AvailabilityByCategory maps a category name to its open groups. Key order is unspecified.
type AvailabilityByCategory map[string][]AvailableGroupSummary
