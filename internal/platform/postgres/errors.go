package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/chorepoints/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// Constraint names referenced when mapping unique violations.
const (
	templateDueDateIndex = "idx_tasks_template_due_date"
	oneAwardPerTaskIndex = "idx_points_history_one_award_per_task"
	settledWeekIndex     = "idx_weekly_settlements_week_start"
)

// MapError maps a database error to the matching store error, wrapping the
// original so the driver detail survives for logging.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			switch pgErr.ConstraintName {
			case templateDueDateIndex:
				return fmt.Errorf("%w: %v", store.ErrInstanceExists, err)
			case oneAwardPerTaskIndex:
				return fmt.Errorf("%w: %v", store.ErrTaskAwardExists, err)
			case settledWeekIndex:
				return fmt.Errorf("%w: %v", store.ErrSettlementExists, err)
			}
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case foreignKeyViolationCode:
			return fmt.Errorf(
				"%w: foreign key violation (%s): %v",
				store.ErrInvalidEntity,
				pgErr.ConstraintName,
				err,
			)
		case checkViolationCode:
			return fmt.Errorf(
				"%w: check constraint violation (%s): %v",
				store.ErrInvalidEntity,
				pgErr.ConstraintName,
				err,
			)
		case notNullViolationCode:
			return fmt.Errorf(
				"%w: not null violation (%s): %v",
				store.ErrInvalidEntity,
				pgErr.ColumnName,
				err,
			)
		}
	}

	return err
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// checkConditionalWrite turns a zero-row conditional UPDATE or DELETE into
// store.ErrConflict.
func checkConditionalWrite(result sql.Result, entityName string) error {
	if result == nil {
		return fmt.Errorf("nil result provided for %s write", entityName)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrConflict, entityName)
	}
	return nil
}
