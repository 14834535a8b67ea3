package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/jobs"
)

const (
	availabilityCachePrefix  = "avail:"
	availabilityCachePattern = availabilityCachePrefix + "*"
	// JobInvalidateAvailability is the job type that drops cached availability.
	JobInvalidateAvailability = "availability.invalidate"
)

type availabilityReader interface {
	ListAvailable(ctx context.Context, asOf time.Time) ([]models.AvailabilityRow, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AvailabilityService aggregates open course groups by category.
type AvailabilityService struct {
	repo   availabilityReader
	cache  availabilityCache
	queue  jobEnqueuer
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewAvailabilityService constructs AvailabilityService. cache and queue are optional.
func NewAvailabilityService(repo availabilityReader, cache availabilityCache, queue jobEnqueuer, ttl time.Duration, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:   repo,
		cache:  cache,
		queue:  queue,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListAvailable returns groups starting at or after asOf, keyed by category. A zero asOf means now.
// The boolean reports whether the result came from cache.
func (s *AvailabilityService) ListAvailable(ctx context.Context, asOf time.Time) (models.AvailabilityByCategory, bool, error) {
	if asOf.IsZero() {
		// Round "now" up to the second so concurrent callers share a cache entry without
		// admitting groups that already started.
		now := s.now().UTC()
		asOf = now.Truncate(time.Second)
		if asOf.Before(now) {
			asOf = asOf.Add(time.Second)
		}
	}
	asOf = asOf.UTC()
	key := availabilityCachePrefix + asOf.Format(time.RFC3339Nano)

	if s.cache != nil {
		var cached models.AvailabilityByCategory
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("availability cache read failed", zap.Error(err))
		} else if hit {
			return cached, true, nil
		}
	}

	rows, err := s.repo.ListAvailable(ctx, asOf)
	if err != nil {
		return nil, false, classify(err, appErrors.ErrInternal)
	}
	result := groupByCategory(rows)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
			s.logger.Warn("availability cache write failed", zap.Error(err))
		}
	}
	return result, false, nil
}

// InvalidateAvailability schedules removal of every cached availability view. When no queue is
// configured, or it is full, the cache is cleared inline.
func (s *AvailabilityService) InvalidateAvailability(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{Type: JobInvalidateAvailability, Payload: availabilityCachePattern})
		if err == nil {
			return
		}
		s.logger.Warn("availability invalidation not queued, clearing inline", zap.Error(err))
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), availabilityCachePattern); err != nil {
		s.logger.Warn("availability invalidation failed", zap.Error(err))
	}
}

// NewAvailabilityInvalidationHandler returns the job handler that clears cached availability.
func NewAvailabilityInvalidationHandler(cache availabilityCache) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		if job.Type != JobInvalidateAvailability || cache == nil {
			return nil
		}
		pattern, ok := job.Payload.(string)
		if !ok || pattern == "" {
			pattern = availabilityCachePattern
		}
		return cache.Invalidate(ctx, pattern)
	}
}

// groupByCategory buckets rows by category, preserving query order within each bucket.
func groupByCategory(rows []models.AvailabilityRow) models.AvailabilityByCategory {
	result := make(models.AvailabilityByCategory)
	for _, row := range rows {
		result[row.CategoryName] = append(result[row.CategoryName], models.AvailableGroupSummary{
			CourseGroupID:    row.CourseGroupID,
			CourseName:       row.CourseName,
			Batch:            row.Batch,
			MaxStudents:      row.MaxStudents,
			StudentsEnrolled: row.StudentsEnrolled,
		})
	}
	return result
}
