package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the tables owned by the enrollment service. courses, course_categories and
// course_prices belong to the catalog and must already exist.
//
// The enrollments primary key is the uniqueness invariant: one row per (group, student).
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS course_groups (
	id UUID PRIMARY KEY,
	course_id BIGINT NOT NULL REFERENCES courses(id),
	batch INTEGER NOT NULL CHECK (batch >= 1),
	max_students INTEGER NOT NULL CHECK (max_students >= 1),
	date_start TIMESTAMPTZ NOT NULL,
	date_end TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT course_groups_dates_chk CHECK (date_end > date_start)
)`,
	`CREATE INDEX IF NOT EXISTS course_groups_date_start_idx ON course_groups (date_start)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
	course_group_id UUID NOT NULL REFERENCES course_groups(id),
	student_id BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL,
	enrollment_date TIMESTAMPTZ NOT NULL,
	date_start TIMESTAMPTZ NOT NULL,
	date_end TIMESTAMPTZ NOT NULL,
	course_price_id BIGINT NOT NULL REFERENCES course_prices(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (course_group_id, student_id)
)`,
}

// Migrate applies Schema statements in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
