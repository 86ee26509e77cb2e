package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
)

// TaskFilter narrows a task listing. Zero values mean "no constraint".
type TaskFilter struct {
	Status     domain.TaskStatus
	Type       domain.TaskType
	AssigneeID *uuid.UUID
	// Involving matches tasks the actor created, is assigned to, or has
	// reserved for them.
	Involving *uuid.UUID
	Limit     int
	Offset    int
}

// TaskStore defines the interface for task persistence.
//
// Every write that changes lifecycle state is conditional: it names the
// status and version the caller read and reports ErrConflict when the stored
// row no longer matches. Implementations never hold locks across calls.
type TaskStore interface {
	// Create saves a new task. Returns ErrInstanceExists when a recurring
	// instance with the same template and due date already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Claim atomically moves a pending task to claimed with actorID as the
	// assignee, provided the task is unreserved or reserved for actorID.
	// Returns the updated task, or ErrConflict when no row matched.
	Claim(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*domain.Task, error)

	// UpdateTransition persists the lifecycle columns of next, conditional on
	// the row still having fromStatus and fromVersion.
	// Returns ErrConflict when no row matched.
	UpdateTransition(ctx context.Context, next *domain.Task, fromStatus domain.TaskStatus, fromVersion int) error

	// UpdateDetails persists the editable columns of task (title, description,
	// points, due date, reservation and metadata), conditional on fromVersion.
	// Returns ErrConflict when no row matched.
	UpdateDetails(ctx context.Context, task *domain.Task, fromVersion int) error

	// Delete removes a task that is still in a deletable status and at
	// fromVersion. Returns ErrConflict when no row matched.
	Delete(ctx context.Context, id uuid.UUID, fromVersion int) error

	// List returns tasks matching filter, newest first, and the total count
	// of matching rows ignoring pagination.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, int, error)

	// ListRecurringTemplates returns approved tasks whose recurrence is not none.
	ListRecurringTemplates(ctx context.Context) ([]*domain.Task, error)

	// InstanceExists reports whether templateID has an instance for dueDate
	// created at or after since.
	InstanceExists(ctx context.Context, templateID uuid.UUID, dueDate, since time.Time) (bool, error)

	// ListDueSoon returns open tasks due in [from, to] that were not reminded
	// at or after remindedBefore.
	ListDueSoon(ctx context.Context, from, to, remindedBefore time.Time) ([]*domain.Task, error)

	// MarkReminded records a reminder at at, unless another reminder was
	// recorded at or after remindedBefore. Returns false when it lost the race.
	MarkReminded(ctx context.Context, id uuid.UUID, at, remindedBefore time.Time) (bool, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
