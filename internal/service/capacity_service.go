package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/lock"
)

type courseGroupReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseGroup, error)
}

type rosterReader interface {
	FindByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error)
	CountOccupied(ctx context.Context, groupID string) (int, error)
}

// EnrollRequest describes a seat reservation. Dates default to the group's range.
type EnrollRequest struct {
	StudentID     string     `json:"student_id" validate:"required,max=64"`
	CoursePriceID string     `json:"course_price_id" validate:"required,max=64"`
	DateStart     *time.Time `json:"date_start"`
	DateEnd       *time.Time `json:"date_end"`
}

// TransitionRequest moves an enrollment to a new status.
type TransitionRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required"`
}

// CapacityService reserves and releases seats. Every mutation of a group runs inside that group's
// exclusive scope and recounts occupied seats under the row lock.
type CapacityService struct {
	scope       *groupScope
	groups      courseGroupReader
	enrollments rosterReader
	invalidator AvailabilityInvalidator
	policy      config.EnrollmentConfig
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewCapacityService constructs CapacityService. locks may be shared with CourseGroupService so
// both serialise on the same per-group slots.
func NewCapacityService(store SeatStore, locks *lock.Keyed, groups courseGroupReader, enrollments rosterReader, invalidator AvailabilityInvalidator, policy config.EnrollmentConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CapacityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{
		scope:       newGroupScope(locks, store, policy.LockTimeout, policy.OperationTimeout, metrics),
		groups:      groups,
		enrollments: enrollments,
		invalidator: invalidator,
		policy:      policy,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enroll reserves a seat for the student in PENDING status.
func (s *CapacityService) Enroll(ctx context.Context, groupID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapKind(appErrors.ErrValidation, err, "invalid enrollment payload")
	}
	if groupID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course group id is required")
	}

	var created *models.Enrollment
	err := s.scope.run(ctx, groupID, func(ctx context.Context, ledger repository.SeatLedger) error {
		group, err := ledger.LockGroup(ctx, groupID)
		if err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		now := s.now()
		if err := s.checkOpen(group, now); err != nil {
			return err
		}
		enrollment, err := s.buildEnrollment(group, req, now)
		if err != nil {
			return err
		}

		if _, err := ledger.FindEnrollment(ctx, groupID, req.StudentID); err == nil {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, fmt.Sprintf("student %s already enrolled in course group", req.StudentID))
		} else if !isNoRows(err) {
			return classify(err, appErrors.ErrInternal)
		}

		occupied, err := ledger.CountOccupied(ctx, groupID)
		if err != nil {
			return classify(err, appErrors.ErrInternal)
		}
		if occupied >= group.MaxStudents {
			return appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("course group is full (%d/%d)", occupied, group.MaxStudents))
		}

		if err := ledger.InsertEnrollment(ctx, enrollment); err != nil {
			return classify(err, appErrors.ErrInternal)
		}
		created = enrollment
		return nil
	})
	s.record(ctx, "enroll", groupID, req.StudentID, err)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel moves a PENDING or ACTIVE enrollment to CANCELLED. Terminal enrollments are left untouched.
func (s *CapacityService) Cancel(ctx context.Context, groupID, studentID string) error {
	if groupID == "" || studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "course group id and student id are required")
	}
	changed := false
	err := s.scope.run(ctx, groupID, func(ctx context.Context, ledger repository.SeatLedger) error {
		if _, err := ledger.LockGroup(ctx, groupID); err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		enrollment, err := ledger.FindEnrollment(ctx, groupID, studentID)
		if err != nil {
			return classify(err, appErrors.ErrEnrollmentNotFound)
		}
		if enrollment.Status.Terminal() {
			return nil
		}
		if err := ledger.UpdateEnrollmentStatus(ctx, groupID, studentID, models.EnrollmentStatusCancelled, s.now()); err != nil {
			return classify(err, appErrors.ErrEnrollmentNotFound)
		}
		changed = true
		return nil
	})
	if err == nil && !changed {
		s.metrics.RecordEnrollmentOperation("cancel", "noop")
		return nil
	}
	s.record(ctx, "cancel", groupID, studentID, err)
	return err
}

// Transition applies a status change along the enrollment state machine.
func (s *CapacityService) Transition(ctx context.Context, groupID, studentID string, req TransitionRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapKind(appErrors.ErrValidation, err, "invalid transition payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enrollment status %q", req.Status))
	}

	var result *models.Enrollment
	changed := false
	err := s.scope.run(ctx, groupID, func(ctx context.Context, ledger repository.SeatLedger) error {
		if _, err := ledger.LockGroup(ctx, groupID); err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		enrollment, err := ledger.FindEnrollment(ctx, groupID, studentID)
		if err != nil {
			return classify(err, appErrors.ErrEnrollmentNotFound)
		}
		result = enrollment
		if enrollment.Status == req.Status && req.Status.Terminal() {
			return nil
		}
		if !enrollment.Status.CanTransitionTo(req.Status) {
			return appErrors.Clone(appErrors.ErrIllegalTransition, fmt.Sprintf("cannot move enrollment from %s to %s", enrollment.Status, req.Status))
		}
		now := s.now()
		if err := ledger.UpdateEnrollmentStatus(ctx, groupID, studentID, req.Status, now); err != nil {
			return classify(err, appErrors.ErrEnrollmentNotFound)
		}
		enrollment.Status = req.Status
		enrollment.UpdatedAt = now
		changed = true
		return nil
	})
	if err == nil && !changed {
		s.metrics.RecordEnrollmentOperation("transition", "noop")
		return result, nil
	}
	s.record(ctx, "transition", groupID, studentID, err, zap.String("status", string(req.Status)))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw deletes the enrollment row, releasing its seat and allowing a later re-enrollment.
// COMPLETED enrollments keep their seat for reporting and cannot be withdrawn.
func (s *CapacityService) Withdraw(ctx context.Context, groupID, studentID string) error {
	if groupID == "" || studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "course group id and student id are required")
	}
	err := s.scope.run(ctx, groupID, func(ctx context.Context, ledger repository.SeatLedger) error {
		if _, err := ledger.LockGroup(ctx, groupID); err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		enrollment, err := ledger.FindEnrollment(ctx, groupID, studentID)
		if err != nil {
			return classify(err, appErrors.ErrEnrollmentNotFound)
		}
		if enrollment.Status == models.EnrollmentStatusCompleted {
			return appErrors.Clone(appErrors.ErrIllegalTransition, "completed enrollments cannot be withdrawn")
		}
		if err := ledger.RemoveEnrollment(ctx, groupID, studentID); err != nil {
			return classify(err, appErrors.ErrEnrollmentNotFound)
		}
		return nil
	})
	s.record(ctx, "withdraw", groupID, studentID, err)
	return err
}

// Roster lists every enrollment of a group, including released ones.
func (s *CapacityService) Roster(ctx context.Context, groupID string) (*models.CourseGroup, []models.Enrollment, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, nil, classify(err, appErrors.ErrGroupNotFound)
	}
	enrollments, err := s.enrollments.FindByGroup(ctx, groupID)
	if err != nil {
		return nil, nil, classify(err, appErrors.ErrInternal)
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	return group, enrollments, nil
}

// Occupancy reports the live seat count of a group. The value is read-committed and may be stale
// by the time the caller acts on it.
func (s *CapacityService) Occupancy(ctx context.Context, groupID string) (*models.Occupancy, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, classify(err, appErrors.ErrGroupNotFound)
	}
	occupied, err := s.enrollments.CountOccupied(ctx, groupID)
	if err != nil {
		return nil, classify(err, appErrors.ErrInternal)
	}
	occupancy := models.NewOccupancy(group, occupied)
	return &occupancy, nil
}

func (s *CapacityService) checkOpen(group *models.CourseGroup, now time.Time) error {
	if now.After(group.DateEnd) {
		return appErrors.Clone(appErrors.ErrGroupClosed, "course group has already ended")
	}
	if s.policy.OpenWindow > 0 && now.Before(group.DateStart.Add(-s.policy.OpenWindow)) {
		return appErrors.Clone(appErrors.ErrGroupClosed, "enrollment for this course group has not opened yet")
	}
	return nil
}

func (s *CapacityService) buildEnrollment(group *models.CourseGroup, req EnrollRequest, now time.Time) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{
		CourseGroupID:  group.ID,
		StudentID:      req.StudentID,
		Status:         models.EnrollmentStatusPending,
		EnrollmentDate: now,
		DateStart:      group.DateStart,
		DateEnd:        group.DateEnd,
		CoursePriceID:  req.CoursePriceID,
	}
	if req.DateStart != nil {
		enrollment.DateStart = req.DateStart.UTC()
	}
	if req.DateEnd != nil {
		enrollment.DateEnd = req.DateEnd.UTC()
	}
	if !enrollment.DateEnd.After(enrollment.DateStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_end must be after date_start")
	}
	if s.policy.EnforceDateNesting && (enrollment.DateStart.Before(group.DateStart) || enrollment.DateEnd.After(group.DateEnd)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment dates must fall within the course group's dates")
	}
	return enrollment, nil
}

// record emits the outcome metric and log line, and invalidates availability after a commit.
func (s *CapacityService) record(ctx context.Context, operation, groupID, studentID string, err error, extra ...zap.Field) {
	s.metrics.RecordEnrollmentOperation(operation, outcomeOf(err))
	fields := append([]zap.Field{zap.String("operation", operation), zap.String("group_id", groupID), zap.String("student_id", studentID)}, extra...)
	if err != nil {
		if outcomeOf(err) == OutcomeError {
			s.logger.Error("capacity operation failed", append(fields, zap.Error(err))...)
		} else {
			s.logger.Info("capacity operation rejected", append(fields, zap.String("code", appErrors.FromError(err).Code))...)
		}
		return
	}
	s.logger.Info("capacity operation committed", fields...)
	if s.invalidator != nil {
		s.invalidator.InvalidateAvailability(ctx)
	}
}
