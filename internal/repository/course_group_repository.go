package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const courseGroupColumns = `id, course_id, batch, max_students, date_start, date_end, created_at, updated_at`

// CourseGroupRepository handles persistence of course groups.
type CourseGroupRepository struct {
	db DBTX
}

// NewCourseGroupRepository constructs the repository.
func NewCourseGroupRepository(db DBTX) *CourseGroupRepository {
	return &CourseGroupRepository{db: db}
}

// Create persists a new course group, assigning its id and timestamps.
func (r *CourseGroupRepository) Create(ctx context.Context, group *models.CourseGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = group.CreatedAt
	const query = `INSERT INTO course_groups (id, course_id, batch, max_students, date_start, date_end, created_at, updated_at)
        VALUES (:id, :course_id, :batch, :max_students, :date_start, :date_end, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create course group: %w", err)
	}
	return nil
}

// FindByID returns a course group by id or sql.ErrNoRows.
func (r *CourseGroupRepository) FindByID(ctx context.Context, id string) (*models.CourseGroup, error) {
	query := `SELECT ` + courseGroupColumns + ` FROM course_groups WHERE id = $1`
	var group models.CourseGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, notFound(err)
	}
	return &group, nil
}

// FindByIDForUpdate loads the group and holds its row lock until the transaction ends.
func (r *CourseGroupRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.CourseGroup, error) {
	query := `SELECT ` + courseGroupColumns + ` FROM course_groups WHERE id = $1 FOR UPDATE`
	var group models.CourseGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err = notFound(err); err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock course group: %w", err)
	}
	return &group, nil
}

// List returns course groups filtered by course and start window.
func (r *CourseGroupRepository) List(ctx context.Context, filter models.CourseGroupFilter) ([]models.CourseGroup, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.StartFrom != nil {
		args = append(args, *filter.StartFrom)
		conditions = append(conditions, fmt.Sprintf("date_start >= $%d", len(args)))
	}
	if filter.StartTo != nil {
		args = append(args, *filter.StartTo)
		conditions = append(conditions, fmt.Sprintf("date_start <= $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM course_groups%s ORDER BY date_start ASC, batch ASC LIMIT %d OFFSET %d`,
		courseGroupColumns, clause, size, offset)
	var groups []models.CourseGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list course groups: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM course_groups"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count course groups: %w", err)
	}
	return groups, total, nil
}

// Update writes the mutable attributes of a group.
func (r *CourseGroupRepository) Update(ctx context.Context, group *models.CourseGroup) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_groups SET course_id = :course_id, batch = :batch, max_students = :max_students,
        date_start = :date_start, date_end = :date_end, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, group)
	if err != nil {
		return fmt.Errorf("update course group: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a group row.
func (r *CourseGroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course group: %w", err)
	}
	return expectAffected(res)
}

// ListAvailable returns groups starting at or after asOf with their category and live occupancy.
// Rows are ordered by course name, start date and batch.
func (r *CourseGroupRepository) ListAvailable(ctx context.Context, asOf time.Time) ([]models.AvailabilityRow, error) {
	placeholders, statusValues := statusArgs(2, models.OccupyingStatuses())
	query := fmt.Sprintf(`SELECT cg.id AS course_group_id, cc.category_name, c.course_name, cg.batch, cg.max_students,
        COUNT(e.student_id) AS students_enrolled
FROM course_groups cg
JOIN courses c ON c.id = cg.course_id
JOIN course_categories cc ON cc.id = c.course_category_id
LEFT JOIN enrollments e ON e.course_group_id = cg.id AND e.status IN (%s)
WHERE cg.date_start >= $1
GROUP BY cg.id, cc.category_name, c.course_name
ORDER BY c.course_name ASC, cg.date_start ASC, cg.batch ASC`, placeholders)

	args := append([]interface{}{asOf}, statusValues...)
	var rows []models.AvailabilityRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list available course groups: %w", err)
	}
	return rows, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
