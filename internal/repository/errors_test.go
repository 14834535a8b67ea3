package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: fmt.Errorf("lock: %w", context.DeadlineExceeded), want: true},
		{name: "bad conn", err: driver.ErrBadConn, want: true},
		{name: "conn done", err: sql.ErrConnDone, want: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, want: true},
		{name: "serialization", err: &pq.Error{Code: "40001"}, want: true},
		{name: "connection class", err: &pq.Error{Code: "08006"}, want: true},
		{name: "unique", err: &pq.Error{Code: "23505"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestConstraintClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pq.Error{Code: "23503"})
	assert.True(t, IsForeignKeyViolation(wrapped))
	assert.False(t, IsUniqueViolation(wrapped))
	assert.True(t, IsCheckViolation(&pq.Error{Code: "23514"}))
	assert.Equal(t, sql.ErrNoRows, notFound(&pq.Error{Code: "22P02"}))
}
