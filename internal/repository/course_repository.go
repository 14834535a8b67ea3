package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// CourseRepository reads catalog courses.
type CourseRepository struct {
	db DBTX
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns the course with its category name.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT c.id, c.course_name, cc.category_name
FROM courses c
JOIN course_categories cc ON cc.id = c.course_category_id
WHERE c.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, notFound(err)
	}
	return &course, nil
}

// statusArgs renders "$n, $n+1, ..." for an IN clause over statuses.
func statusArgs(start int, statuses []models.EnrollmentStatus) (string, []interface{}) {
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = status
	}
	return strings.Join(placeholders, ", "), args
}
