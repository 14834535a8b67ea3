package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/lock"
)

// SeatStore opens a transaction spanning course groups and enrollments.
type SeatStore interface {
	WithinTx(ctx context.Context, fn func(repository.SeatLedger) error) error
}

// AvailabilityInvalidator drops cached availability after a committed mutation.
type AvailabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context)
}

const (
	defaultLockTimeout      = 3 * time.Second
	defaultOperationTimeout = 5 * time.Second
)

// groupScope serialises every mutation of one course group: an in-process keyed lock
// followed by a transaction that row-locks the group.
type groupScope struct {
	locks            *lock.Keyed
	store            SeatStore
	lockTimeout      time.Duration
	operationTimeout time.Duration
	metrics          *MetricsService
}

func newGroupScope(locks *lock.Keyed, store SeatStore, lockTimeout, operationTimeout time.Duration, metrics *MetricsService) *groupScope {
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	if operationTimeout <= 0 {
		operationTimeout = defaultOperationTimeout
	}
	return &groupScope{locks: locks, store: store, lockTimeout: lockTimeout, operationTimeout: operationTimeout, metrics: metrics}
}

// run acquires the group's scope and executes fn inside one transaction. Once the lock is held the
// steps no longer follow the caller's cancellation; they are bounded by operationTimeout instead.
func (s *groupScope) run(ctx context.Context, groupID string, fn func(ctx context.Context, ledger repository.SeatLedger) error) error {
	waitCtx, cancelWait := context.WithTimeout(ctx, s.lockTimeout)
	defer cancelWait()

	start := time.Now()
	release, err := s.locks.Acquire(waitCtx, groupID)
	s.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return appErrors.WrapKind(appErrors.ErrUnavailable, err, "course group is busy, retry later")
	}
	defer release()

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.operationTimeout)
	defer cancel()

	txStart := time.Now()
	err = s.store.WithinTx(opCtx, func(ledger repository.SeatLedger) error {
		return fn(opCtx, ledger)
	})
	s.metrics.ObserveDBOperation("seat_transaction", time.Since(txStart))
	if err == nil {
		return nil
	}
	if opCtx.Err() != nil && !isClassified(err) {
		return appErrors.WrapKind(appErrors.ErrUnavailable, err, "course group operation timed out")
	}
	return classify(err, appErrors.ErrInternal)
}

func isClassified(err error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr)
}

// classify maps repository failures onto error kinds. missing is used for sql.ErrNoRows.
func classify(err error, missing *appErrors.Error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.WrapKind(missing, err, "")
	case errors.Is(err, repository.ErrDuplicateEnrollment), repository.IsUniqueViolation(err):
		return appErrors.WrapKind(appErrors.ErrAlreadyEnrolled, err, "")
	case repository.IsForeignKeyViolation(err):
		return appErrors.WrapKind(appErrors.ErrValidation, err, "referenced course or price tier does not exist")
	case repository.IsCheckViolation(err):
		return appErrors.WrapKind(appErrors.ErrValidation, err, "")
	case repository.IsTransient(err):
		return appErrors.WrapKind(appErrors.ErrUnavailable, err, "")
	}
	return appErrors.WrapKind(appErrors.ErrInternal, err, "")
}

// outcomeOf labels an operation result for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	appErr := appErrors.FromError(err)
	if appErr.Status >= 500 {
		return OutcomeError
	}
	return OutcomeRejected
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
