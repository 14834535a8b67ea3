package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrDuplicateEnrollment is returned when the (course_group_id, student_id) key already exists.
var ErrDuplicateEnrollment = errors.New("enrollment already exists for course group and student")

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// Postgres SQLSTATE codes the service reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	codeLockNotAvailable    = "55P03"
	codeQueryCanceled       = "57014"
	codeAdminShutdown       = "57P01"
	codeTooManyConnections  = "53300"
)

func pqCode(err error) (pq.ErrorCode, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, true
	}
	return "", false
}

// IsUniqueViolation reports a unique/primary key conflict.
func IsUniqueViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeUniqueViolation
}

// IsForeignKeyViolation reports a dangling reference (unknown course or price tier).
func IsForeignKeyViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeForeignKeyViolation
}

// IsCheckViolation reports a failed CHECK constraint.
func IsCheckViolation(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeCheckViolation
}

func isInvalidText(err error) bool {
	code, ok := pqCode(err)
	return ok && code == codeInvalidText
}

// IsTransient reports failures worth surfacing as "try again later": timeouts,
// cancelled queries, lock contention and lost connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	code, ok := pqCode(err)
	if !ok {
		return false
	}
	switch code {
	case codeSerialization, codeDeadlock, codeLockNotAvailable, codeQueryCanceled, codeAdminShutdown, codeTooManyConnections:
		return true
	}
	return code.Class() == "08"
}

// notFound maps missing rows and malformed ids to sql.ErrNoRows.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return sql.ErrNoRows
	}
	return err
}
