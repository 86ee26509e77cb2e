package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/store"
)

const taskColumns = `
	id, title, description, type, points, award_points, status,
	creator_id, reserved_for, assignee_id, approver_id,
	due_date, completed_at, approved_at, rejected_at, rejection_reason,
	recurrence, template_id, reminded_at, metadata,
	version, created_at, updated_at`

// openStatuses is the SQL list of statuses a task can still be worked in.
const openStatuses = `('pending', 'claimed', 'in_progress')`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Type,
		task.Points,
		task.AwardPoints,
		task.Status,
		task.CreatorID,
		task.ReservedFor,
		task.AssigneeID,
		task.ApproverID,
		task.DueDate,
		task.CompletedAt,
		task.ApprovedAt,
		task.RejectedAt,
		task.RejectionReason,
		task.Recurrence,
		task.TemplateID,
		task.RemindedAt,
		nullableJSON(task.Metadata),
		task.Version,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if store.IsDuplicateError(mapped) {
			log.Debug("task already exists",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			return mapped
		}
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "create", "insert failed", mapped)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("type", string(task.Type)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, store.NewStoreError("task", "get", "query failed", MapError(err))
	}
	return task, nil
}

// Claim implements store.TaskStore.Claim
// The status and reservation checks live in the WHERE clause so that at most
// one concurrent claimant can match the row.
func (s *PostgresTaskStore) Claim(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = 'claimed', assignee_id = $2, version = version + 1, updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND (reserved_for IS NULL OR reserved_for = $2)
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, actorID, now.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("claim matched no row",
				slog.String("task_id", id.String()),
				slog.String("actor_id", actorID.String()))
			return nil, fmt.Errorf("%w: claim task %s", store.ErrConflict, id)
		}
		log.Error("failed to claim task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, store.NewStoreError("task", "claim", "update failed", MapError(err))
	}
	return task, nil
}

// UpdateTransition implements store.TaskStore.UpdateTransition
func (s *PostgresTaskStore) UpdateTransition(
	ctx context.Context,
	next *domain.Task,
	fromStatus domain.TaskStatus,
	fromVersion int,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $2, assignee_id = $3, approver_id = $4,
		    completed_at = $5, approved_at = $6, rejected_at = $7, rejection_reason = $8,
		    version = $9, updated_at = $10
		WHERE id = $1 AND status = $11 AND version = $12
	`
	result, err := s.db.ExecContext(ctx, query,
		next.ID,
		next.Status,
		next.AssigneeID,
		next.ApproverID,
		next.CompletedAt,
		next.ApprovedAt,
		next.RejectedAt,
		next.RejectionReason,
		next.Version,
		next.UpdatedAt,
		fromStatus,
		fromVersion,
	)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", next.ID.String()),
			slog.String("to_status", string(next.Status)))
		return store.NewStoreError("task", "transition", "update failed", MapError(err))
	}

	if err := checkConditionalWrite(result, "task"); err != nil {
		log.Debug("transition matched no row",
			slog.String("task_id", next.ID.String()),
			slog.String("from_status", string(fromStatus)),
			slog.Int("from_version", fromVersion))
		return err
	}
	return nil
}

// UpdateDetails implements store.TaskStore.UpdateDetails
func (s *PostgresTaskStore) UpdateDetails(ctx context.Context, task *domain.Task, fromVersion int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET title = $2, description = $3, points = $4, due_date = $5,
		    reserved_for = $6, metadata = $7, version = $8, updated_at = $9
		WHERE id = $1 AND version = $10 AND status IN ` + openStatuses
	result, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Points,
		task.DueDate,
		task.ReservedFor,
		nullableJSON(task.Metadata),
		task.Version,
		task.UpdatedAt,
		fromVersion,
	)
	if err != nil {
		log.Error("failed to update task details",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "update", "update failed", MapError(err))
	}
	return checkConditionalWrite(result, "task")
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID, fromVersion int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM tasks WHERE id = $1 AND version = $2 AND status IN ` + openStatuses
	result, err := s.db.ExecContext(ctx, query, id, fromVersion)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return store.NewStoreError("task", "delete", "delete failed", MapError(err))
	}
	if err := checkConditionalWrite(result, "task"); err != nil {
		return err
	}

	log.Debug("task deleted", slog.String("task_id", id.String()))
	return nil
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	if filter.AssigneeID != nil {
		conds = append(conds, "assignee_id = "+arg(*filter.AssigneeID))
	}
	if filter.Involving != nil {
		p := arg(*filter.Involving)
		conds = append(conds, fmt.Sprintf("(creator_id = %s OR assignee_id = %s OR reserved_for = %s)", p, p, p))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("task", "list", "count failed", MapError(err))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where +
		` ORDER BY created_at DESC, id ASC LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, 0, store.NewStoreError("task", "list", "query failed", MapError(err))
	}
	return tasks, total, nil
}

// ListRecurringTemplates implements store.TaskStore.ListRecurringTemplates
func (s *PostgresTaskStore) ListRecurringTemplates(ctx context.Context) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = 'approved' AND recurrence <> 'none'
		ORDER BY created_at ASC`

	tasks, err := s.queryTasks(ctx, query)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list recurring templates",
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", "list templates", "query failed", MapError(err))
	}
	return tasks, nil
}

// InstanceExists implements store.TaskStore.InstanceExists
func (s *PostgresTaskStore) InstanceExists(
	ctx context.Context,
	templateID uuid.UUID,
	dueDate, since time.Time,
) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM tasks WHERE template_id = $1 AND due_date = $2 AND created_at >= $3
	)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, templateID, dueDate.UTC(), since.UTC()).Scan(&exists); err != nil {
		return false, store.NewStoreError("task", "instance exists", "query failed", MapError(err))
	}
	return exists, nil
}

// ListDueSoon implements store.TaskStore.ListDueSoon
func (s *PostgresTaskStore) ListDueSoon(ctx context.Context, from, to, remindedBefore time.Time) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status IN ` + openStatuses + `
		  AND due_date BETWEEN $1 AND $2
		  AND (reminded_at IS NULL OR reminded_at < $3)
		ORDER BY due_date ASC, id ASC`

	tasks, err := s.queryTasks(ctx, query, from.UTC(), to.UTC(), remindedBefore.UTC())
	if err != nil {
		return nil, store.NewStoreError("task", "list due soon", "query failed", MapError(err))
	}
	return tasks, nil
}

// MarkReminded implements store.TaskStore.MarkReminded
func (s *PostgresTaskStore) MarkReminded(ctx context.Context, id uuid.UUID, at, remindedBefore time.Time) (bool, error) {
	query := `UPDATE tasks SET reminded_at = $2
		WHERE id = $1 AND (reminded_at IS NULL OR reminded_at < $3)`
	result, err := s.db.ExecContext(ctx, query, id, at.UTC(), remindedBefore.UTC())
	if err != nil {
		return false, store.NewStoreError("task", "mark reminded", "update failed", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                                              domain.Task
		reservedFor, assignee, approver, templateID       uuid.NullUUID
		dueDate, completedAt, approvedAt, rejectedAt, rem sql.NullTime
		metadata                                          []byte
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Type,
		&task.Points,
		&task.AwardPoints,
		&task.Status,
		&task.CreatorID,
		&reservedFor,
		&assignee,
		&approver,
		&dueDate,
		&completedAt,
		&approvedAt,
		&rejectedAt,
		&task.RejectionReason,
		&task.Recurrence,
		&templateID,
		&rem,
		&metadata,
		&task.Version,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ReservedFor = uuidPtr(reservedFor)
	task.AssigneeID = uuidPtr(assignee)
	task.ApproverID = uuidPtr(approver)
	task.TemplateID = uuidPtr(templateID)
	task.DueDate = timePtr(dueDate)
	task.CompletedAt = timePtr(completedAt)
	task.ApprovedAt = timePtr(approvedAt)
	task.RejectedAt = timePtr(rejectedAt)
	task.RemindedAt = timePtr(rem)
	if len(metadata) > 0 {
		task.Metadata = metadata
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func uuidPtr(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
