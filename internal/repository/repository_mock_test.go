package repository

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
	}
	return sqlxDB, mock, cleanup
}

var courseGroupRowColumns = []string{"id", "course_id", "batch", "max_students", "date_start", "date_end", "created_at", "updated_at"}

var enrollmentRowColumns = []string{"course_group_id", "student_id", "status", "enrollment_date", "date_start", "date_end", "course_price_id", "created_at", "updated_at"}
