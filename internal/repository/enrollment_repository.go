package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

const enrollmentColumns = `course_group_id, student_id, status, enrollment_date, date_start, date_end, course_price_id, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments keyed by (course_group_id, student_id).
type EnrollmentRepository struct {
	db DBTX
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db DBTX) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Insert persists a new enrollment. The composite primary key rejects a second row for the
// same pair with ErrDuplicateEnrollment.
func (r *EnrollmentRepository) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	query := `INSERT INTO enrollments (` + enrollmentColumns + `)
        VALUES (:course_group_id, :student_id, :status, :enrollment_date, :date_start, :date_end, :course_price_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("insert enrollment: %w", ErrDuplicateEnrollment)
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// Find returns the enrollment for a group/student pair or sql.ErrNoRows.
func (r *EnrollmentRepository) Find(ctx context.Context, groupID, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_group_id = $1 AND student_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, groupID, studentID); err != nil {
		return nil, notFound(err)
	}
	return &enrollment, nil
}

// CountOccupied counts enrollments holding a seat in the group.
func (r *EnrollmentRepository) CountOccupied(ctx context.Context, groupID string) (int, error) {
	placeholders, statusValues := statusArgs(2, models.OccupyingStatuses())
	query := fmt.Sprintf(`SELECT COUNT(*) FROM enrollments WHERE course_group_id = $1 AND status IN (%s)`, placeholders)
	args := append([]interface{}{groupID}, statusValues...)
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count occupied seats: %w", err)
	}
	return count, nil
}

// FindByGroup returns every enrollment of a group ordered by enrollment date.
func (r *EnrollmentRepository) FindByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_group_id = $1 ORDER BY enrollment_date ASC, student_id ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, groupID); err != nil {
		return nil, fmt.Errorf("list group enrollments: %w", err)
	}
	return enrollments, nil
}

// UpdateStatus sets the status of an existing enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, groupID, studentID string, status models.EnrollmentStatus, at time.Time) error {
	const query = `UPDATE enrollments SET status = $3, updated_at = $4 WHERE course_group_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, groupID, studentID, status, at)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return expectAffected(res)
}

// Remove deletes an enrollment row, releasing its seat.
func (r *EnrollmentRepository) Remove(ctx context.Context, groupID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE course_group_id = $1 AND student_id = $2`, groupID, studentID)
	if err != nil {
		return fmt.Errorf("remove enrollment: %w", err)
	}
	return expectAffected(res)
}

// RemoveReleased deletes the non-occupying (cancelled / no-show) rows of a group.
func (r *EnrollmentRepository) RemoveReleased(ctx context.Context, groupID string) (int64, error) {
	placeholders, statusValues := statusArgs(2, models.OccupyingStatuses())
	query := fmt.Sprintf(`DELETE FROM enrollments WHERE course_group_id = $1 AND status NOT IN (%s)`, placeholders)
	args := append([]interface{}{groupID}, statusValues...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("remove released enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
