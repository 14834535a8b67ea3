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

type courseGroupRepository interface {
	Create(ctx context.Context, group *models.CourseGroup) error
	FindByID(ctx context.Context, id string) (*models.CourseGroup, error)
	List(ctx context.Context, filter models.CourseGroupFilter) ([]models.CourseGroup, int, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CourseGroupRequest is the payload for creating or replacing a course group.
type CourseGroupRequest struct {
	CourseID    string    `json:"course_id" validate:"required"`
	Batch       int       `json:"batch" validate:"required,min=1"`
	MaxStudents int       `json:"max_students" validate:"required,min=1"`
	DateStart   time.Time `json:"date_start" validate:"required"`
	DateEnd     time.Time `json:"date_end" validate:"required,gtfield=DateStart"`
}

// CourseGroupService manages the course group lifecycle.
type CourseGroupService struct {
	repo        courseGroupRepository
	courses     courseReader
	scope       *groupScope
	invalidator AvailabilityInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseGroupService constructs CourseGroupService.
func NewCourseGroupService(repo courseGroupRepository, courses courseReader, store SeatStore, locks *lock.Keyed, invalidator AvailabilityInvalidator, policy config.EnrollmentConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseGroupService{
		repo:        repo,
		courses:     courses,
		scope:       newGroupScope(locks, store, policy.LockTimeout, policy.OperationTimeout, metrics),
		invalidator: invalidator,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Create persists a new course group for an existing course.
func (s *CourseGroupService) Create(ctx context.Context, req CourseGroupRequest) (*models.CourseGroup, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}
	group := &models.CourseGroup{
		CourseID:    req.CourseID,
		Batch:       req.Batch,
		MaxStudents: req.MaxStudents,
		DateStart:   req.DateStart.UTC(),
		DateEnd:     req.DateEnd.UTC(),
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, classify(err, appErrors.ErrInternal)
	}
	s.logger.Info("course group created", zap.String("group_id", group.ID), zap.String("course_id", group.CourseID), zap.Int("max_students", group.MaxStudents))
	s.invalidate(ctx)
	return group, nil
}

// Get returns a course group by id.
func (s *CourseGroupService) Get(ctx context.Context, id string) (*models.CourseGroup, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, classify(err, appErrors.ErrGroupNotFound)
	}
	return group, nil
}

// List returns course groups with pagination metadata.
func (s *CourseGroupService) List(ctx context.Context, filter models.CourseGroupFilter) ([]models.CourseGroup, *models.Pagination, error) {
	if filter.StartFrom != nil && filter.StartTo != nil && filter.StartTo.Before(*filter.StartFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "start_to must not be before start_from")
	}
	groups, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.WrapKind(appErrors.ErrInternal, err, "failed to list course groups")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if groups == nil {
		groups = []models.CourseGroup{}
	}
	return groups, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update replaces a group's attributes. Capacity can never drop below the seats already occupied.
func (s *CourseGroupService) Update(ctx context.Context, id string, req CourseGroupRequest) (*models.CourseGroup, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}
	var updated *models.CourseGroup
	err := s.scope.run(ctx, id, func(ctx context.Context, ledger repository.SeatLedger) error {
		group, err := ledger.LockGroup(ctx, id)
		if err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		occupied, err := ledger.CountOccupied(ctx, id)
		if err != nil {
			return classify(err, appErrors.ErrInternal)
		}
		if req.MaxStudents < occupied {
			return appErrors.Clone(appErrors.ErrCapacityBelowEnrolled, fmt.Sprintf("max_students %d is below the %d occupied seats", req.MaxStudents, occupied))
		}
		group.CourseID = req.CourseID
		group.Batch = req.Batch
		group.MaxStudents = req.MaxStudents
		group.DateStart = req.DateStart.UTC()
		group.DateEnd = req.DateEnd.UTC()
		if err := ledger.UpdateGroup(ctx, group); err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		updated = group
		return nil
	})
	s.metrics.RecordEnrollmentOperation("update_group", outcomeOf(err))
	if err != nil {
		s.logger.Info("course group update rejected", zap.String("group_id", id), zap.Error(err))
		return nil, err
	}
	s.logger.Info("course group updated", zap.String("group_id", id), zap.Int("max_students", updated.MaxStudents))
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a group that holds no occupied seats. Released enrollments go with it.
func (s *CourseGroupService) Delete(ctx context.Context, id string) error {
	err := s.scope.run(ctx, id, func(ctx context.Context, ledger repository.SeatLedger) error {
		if _, err := ledger.LockGroup(ctx, id); err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		occupied, err := ledger.CountOccupied(ctx, id)
		if err != nil {
			return classify(err, appErrors.ErrInternal)
		}
		if occupied > 0 {
			return appErrors.Clone(appErrors.ErrHasActiveEnrollments, fmt.Sprintf("course group still has %d occupied seats", occupied))
		}
		if err := ledger.DeleteGroup(ctx, id); err != nil {
			return classify(err, appErrors.ErrGroupNotFound)
		}
		return nil
	})
	s.metrics.RecordEnrollmentOperation("delete_group", outcomeOf(err))
	if err != nil {
		return err
	}
	s.logger.Info("course group deleted", zap.String("group_id", id))
	s.invalidate(ctx)
	return nil
}

func (s *CourseGroupService) validate(ctx context.Context, req CourseGroupRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.WrapKind(appErrors.ErrValidation, err, "invalid course group payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrValidation, "course not found")
		}
		return classify(err, appErrors.ErrInternal)
	}
	return nil
}

func (s *CourseGroupService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAvailability(ctx)
	}
}
