package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// SeatLedger is the set of operations available inside one seat transaction.
// Every call runs on the same *sqlx.Tx, so a failing step rolls back the rest.
type SeatLedger interface {
	LockGroup(ctx context.Context, groupID string) (*models.CourseGroup, error)
	CountOccupied(ctx context.Context, groupID string) (int, error)
	FindEnrollment(ctx context.Context, groupID, studentID string) (*models.Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollmentStatus(ctx context.Context, groupID, studentID string, status models.EnrollmentStatus, at time.Time) error
	RemoveEnrollment(ctx context.Context, groupID, studentID string) error
	UpdateGroup(ctx context.Context, group *models.CourseGroup) error
	DeleteGroup(ctx context.Context, groupID string) error
}

// SeatStore opens read-committed transactions spanning course groups and enrollments.
type SeatStore struct {
	db *sqlx.DB
}

// NewSeatStore constructs the store.
func NewSeatStore(db *sqlx.DB) *SeatStore {
	return &SeatStore{db: db}
}

// WithinTx runs fn inside a transaction, committing only when fn returns nil.
func (s *SeatStore) WithinTx(ctx context.Context, fn func(SeatLedger) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin seat transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ledger := &seatLedger{
		groups:      NewCourseGroupRepository(tx),
		enrollments: NewEnrollmentRepository(tx),
	}
	if err = fn(ledger); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit seat transaction: %w", err)
	}
	return nil
}

type seatLedger struct {
	groups      *CourseGroupRepository
	enrollments *EnrollmentRepository
}

func (l *seatLedger) LockGroup(ctx context.Context, groupID string) (*models.CourseGroup, error) {
	return l.groups.FindByIDForUpdate(ctx, groupID)
}

func (l *seatLedger) CountOccupied(ctx context.Context, groupID string) (int, error) {
	return l.enrollments.CountOccupied(ctx, groupID)
}

func (l *seatLedger) FindEnrollment(ctx context.Context, groupID, studentID string) (*models.Enrollment, error) {
	return l.enrollments.Find(ctx, groupID, studentID)
}

func (l *seatLedger) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return l.enrollments.Insert(ctx, enrollment)
}

func (l *seatLedger) UpdateEnrollmentStatus(ctx context.Context, groupID, studentID string, status models.EnrollmentStatus, at time.Time) error {
	return l.enrollments.UpdateStatus(ctx, groupID, studentID, status, at)
}

func (l *seatLedger) RemoveEnrollment(ctx context.Context, groupID, studentID string) error {
	return l.enrollments.Remove(ctx, groupID, studentID)
}

func (l *seatLedger) UpdateGroup(ctx context.Context, group *models.CourseGroup) error {
	return l.groups.Update(ctx, group)
}

// DeleteGroup drops released enrollment rows before the group itself.
func (l *seatLedger) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := l.enrollments.RemoveReleased(ctx, groupID); err != nil {
		return err
	}
	return l.groups.Delete(ctx, groupID)
}
