package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/events"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/phrazzld/chorepoints/internal/store"
)

// Pagination bounds shared by task and ledger listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateTaskInput holds the caller-supplied fields for a new task.
type CreateTaskInput struct {
	Title       string
	Description string
	Type        domain.TaskType
	// Points defaults to the type's default when nil.
	Points *int
	// ReservedFor designates the only actor who may claim the task.
	ReservedFor *uuid.UUID
	DueDate     *time.Time
	Recurrence  domain.Recurrence
	Metadata    json.RawMessage
}

// UpdateTaskInput holds the editable fields of a task. Nil fields are left unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	// Points changes the display value only; the award amount is fixed at creation.
	Points       *int
	DueDate      *time.Time
	ClearDueDate bool
	Metadata     json.RawMessage
}

// TaskQuery selects a page of tasks.
type TaskQuery struct {
	Status     domain.TaskStatus
	Type       domain.TaskType
	AssigneeID *uuid.UUID
	Page       int
	Limit      int
}

// TaskPage is one page of a task listing, newest first.
type TaskPage struct {
	Tasks      []*domain.Task `json:"tasks"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// TaskService is the task lifecycle engine. Every operation re-reads the
// task and persists its change with a conditional write, so concurrent
// callers and multiple instances never overwrite each other.
type TaskService struct {
	tasks    store.TaskStore
	ledger   store.LedgerStore
	tx       store.Transactor
	authz    auth.Authorizer
	notifier events.Notifier
	cache    LeaderboardCache
	clock    func() time.Time
	logger   *slog.Logger
}

// NewTaskService creates a TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	ledger store.LedgerStore,
	tx store.Transactor,
	authz auth.Authorizer,
	notifier events.Notifier,
	log *slog.Logger,
	opts ...Option,
) (*TaskService, error) {
	switch {
	case tasks == nil:
		return nil, missingDependency("task", "task store")
	case ledger == nil:
		return nil, missingDependency("task", "ledger store")
	case tx == nil:
		return nil, missingDependency("task", "transactor")
	case authz == nil:
		return nil, missingDependency("task", "authorizer")
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}

	o := applyOptions(opts)
	return &TaskService{
		tasks:    tasks,
		ledger:   ledger,
		tx:       tx,
		authz:    authz,
		notifier: notifier,
		cache:    o.cache,
		clock:    o.clock,
		logger:   log.With(slog.String("component", "task_service")),
	}, nil
}

// CreateTask creates a pending task owned by actor.
func (s *TaskService) CreateTask(ctx context.Context, actor domain.Actor, in CreateTaskInput) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !s.authz.Authorize(ctx, actor, domain.PermissionCreateTask, nil) {
		return nil, domain.NewAuthorizationError(actor.ID, "create task", "missing create_task permission")
	}
	if in.ReservedFor != nil && *in.ReservedFor != actor.ID &&
		!s.authz.Authorize(ctx, actor, domain.PermissionReserveTask, nil) {
		return nil, domain.NewAuthorizationError(actor.ID, "reserve task", "only authorized actors may assign tasks to others")
	}

	task, err := domain.NewTask(domain.NewTaskParams{
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Points:      in.Points,
		CreatorID:   actor.ID,
		ReservedFor: in.ReservedFor,
		DueDate:     utc(in.DueDate),
		Recurrence:  in.Recurrence,
		Metadata:    in.Metadata,
	}, s.clock())
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return nil, translateStoreError("create task", "task", task.ID, err)
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("type", string(task.Type)),
		slog.Int("points", task.Points))

	if task.ReservedFor != nil && *task.ReservedFor != actor.ID {
		notify(ctx, s.notifier, log, events.NewNotification(*task.ReservedFor,
			"New Task Assigned",
			fmt.Sprintf("You have been assigned a new task: %s", task.Title),
			events.CategoryTaskAssigned).ForTask(task.ID))
	}
	return task, nil
}

// GetTask returns the current persisted task.
func (s *TaskService) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	return s.load(ctx, taskID)
}

// ListTasks returns a page of tasks matching q.
func (s *TaskService) ListTasks(ctx context.Context, q TaskQuery) (*TaskPage, error) {
	if q.Status != "" && !q.Status.IsValid() {
		return nil, domain.NewValidationError("status", "unknown status "+string(q.Status))
	}
	if q.Type != "" && !q.Type.IsValid() {
		return nil, domain.NewValidationError("type", "unknown task type "+string(q.Type))
	}
	return s.list(ctx, store.TaskFilter{Status: q.Status, Type: q.Type, AssigneeID: q.AssigneeID}, q.Page, q.Limit)
}

// ListMyTasks returns a page of tasks the actor created, holds or has reserved.
func (s *TaskService) ListMyTasks(ctx context.Context, actorID uuid.UUID, page, limit int) (*TaskPage, error) {
	return s.list(ctx, store.TaskFilter{Involving: &actorID}, page, limit)
}

func (s *TaskService) list(ctx context.Context, filter store.TaskFilter, page, limit int) (*TaskPage, error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, domain.NewPersistenceError("list tasks", err)
	}
	return &TaskPage{
		Tasks:      tasks,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages(total, limit),
	}, nil
}

// Claim assigns a pending task to actor. Of any number of concurrent
// claimants exactly one succeeds; the rest receive a StateConflictError.
func (s *TaskService) Claim(ctx context.Context, taskID uuid.UUID, actor domain.Actor) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	tr, err := domain.LookupTransition(current, domain.ActionClaim)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if _, err := tr.Apply(current, domain.TransitionInput{ActorID: actor.ID, Now: now}); err != nil {
		return nil, err
	}

	claimed, err := s.tasks.Claim(ctx, taskID, actor.ID, now.UTC())
	if err != nil {
		return nil, s.writeFailed(ctx, "claim task", taskID, domain.ActionClaim, err)
	}

	log.Info("task claimed",
		slog.String("task_id", taskID.String()),
		slog.String("actor_id", actor.ID.String()))
	return claimed, nil
}

// Start moves a claimed task to in_progress. Only the assignee may start it.
func (s *TaskService) Start(ctx context.Context, taskID uuid.UUID, actor domain.Actor) (*domain.Task, error) {
	next, _, err := s.transition(ctx, taskID, actor, domain.ActionStart, "")
	return next, err
}

// Complete moves an in-progress task to completed. Only the assignee may complete it.
func (s *TaskService) Complete(ctx context.Context, taskID uuid.UUID, actor domain.Actor) (*domain.Task, error) {
	next, _, err := s.transition(ctx, taskID, actor, domain.ActionComplete, "")
	return next, err
}

// Approve moves a completed task to approved and credits the assignee with
// the task's award points. The status change and the ledger entry commit in
// one transaction; a repeated approval fails with a StateConflictError.
func (s *TaskService) Approve(
	ctx context.Context,
	taskID uuid.UUID,
	approver domain.Actor,
) (*domain.Task, *domain.LedgerEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	next, current, err := s.prepare(ctx, taskID, approver, domain.ActionApprove, "")
	if err != nil {
		return nil, nil, err
	}

	award, err := domain.NewTaskAward(next, approver.ID, *next.ApprovedAt)
	if err != nil {
		return nil, nil, err
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.tasks.WithTx(tx).UpdateTransition(ctx, next, current.Status, current.Version); err != nil {
			return err
		}
		return s.ledger.WithTx(tx).Append(ctx, award)
	})
	if err != nil {
		if errors.Is(err, store.ErrTaskAwardExists) {
			return nil, nil, s.alreadyAwarded(ctx, taskID, current.Status)
		}
		log.Warn("approve transaction failed",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, nil, s.writeFailed(ctx, "approve task", taskID, domain.ActionApprove, err)
	}

	log.Info("task approved",
		slog.String("task_id", taskID.String()),
		slog.String("approver_id", approver.ID.String()),
		slog.String("assignee_id", award.ActorID.String()),
		slog.Int("points", award.Points))

	invalidateLeaderboard(ctx, s.cache, log)
	notify(ctx, s.notifier, log, events.NewNotification(award.ActorID,
		"Points Earned",
		fmt.Sprintf("You earned %d points for completing %q!", award.Points, next.Title),
		events.CategoryPointsEarned).ForTask(taskID))

	return next, award, nil
}

// alreadyAwarded builds the conflict returned when the ledger already holds
// an award for taskID, naming the existing entry when it can be read.
func (s *TaskService) alreadyAwarded(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	existing, err := s.ledger.AwardForTask(ctx, taskID)
	if err != nil {
		log.Warn("failed to read existing task award",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return domain.NewStateConflictError(taskID, domain.ActionApprove, status, "task has already been awarded")
	}

	log.Warn("task award already recorded",
		slog.String("task_id", taskID.String()),
		slog.String("entry_id", existing.ID.String()),
		slog.String("actor_id", existing.ActorID.String()))
	return domain.NewStateConflictError(taskID, domain.ActionApprove, status,
		fmt.Sprintf("task has already been awarded %d points on %s",
			existing.Points, existing.CreatedAt.UTC().Format(time.DateOnly)))
}

// Reject moves a completed task to rejected. The reason must not be blank.
// No points are awarded.
func (s *TaskService) Reject(
	ctx context.Context,
	taskID uuid.UUID,
	approver domain.Actor,
	reason string,
) (*domain.Task, error) {
	next, _, err := s.transition(ctx, taskID, approver, domain.ActionReject, reason)
	if err != nil {
		return nil, err
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	notify(ctx, s.notifier, log, events.NewNotification(*next.AssigneeID,
		"Task Rejected",
		fmt.Sprintf("Your task %q was rejected: %s", next.Title, next.RejectionReason),
		events.CategoryTaskRejected).ForTask(taskID))
	return next, nil
}

// UpdateTask edits an open task. The creator may always edit; others need
// the edit_any_task permission.
func (s *TaskService) UpdateTask(
	ctx context.Context,
	taskID uuid.UUID,
	actor domain.Actor,
	in UpdateTaskInput,
) (*domain.Task, error) {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !current.Status.IsDeletable() {
		return nil, domain.NewStateConflictError(taskID, domain.ActionEdit, current.Status, "only open tasks can be edited")
	}
	if current.CreatorID != actor.ID && !s.authz.Authorize(ctx, actor, domain.PermissionEditAnyTask, current) {
		return nil, domain.NewAuthorizationError(actor.ID, "edit task", "only the creator may edit this task")
	}

	updated := current.Clone()
	if in.Title != nil {
		updated.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updated.Description = strings.TrimSpace(*in.Description)
	}
	if in.Points != nil {
		updated.Points = *in.Points
	}
	if in.ClearDueDate {
		updated.DueDate = nil
	} else if in.DueDate != nil {
		updated.DueDate = utc(in.DueDate)
	}
	if in.Metadata != nil {
		updated.Metadata = in.Metadata
	}

	return s.saveDetails(ctx, current, updated, domain.ActionEdit)
}

// ReserveTask designates (or with nil clears) the only actor who may claim a
// pending task.
func (s *TaskService) ReserveTask(
	ctx context.Context,
	taskID uuid.UUID,
	actor domain.Actor,
	reservedFor *uuid.UUID,
) (*domain.Task, error) {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.TaskStatusPending {
		return nil, domain.NewStateConflictError(taskID, domain.ActionReserve, current.Status, "task must be pending")
	}
	if !s.authz.Authorize(ctx, actor, domain.PermissionReserveTask, current) {
		return nil, domain.NewAuthorizationError(actor.ID, "reserve task", "missing reserve_task permission")
	}

	updated := current.Clone()
	updated.ReservedFor = reservedFor
	next, err := s.saveDetails(ctx, current, updated, domain.ActionReserve)
	if err != nil {
		return nil, err
	}

	if reservedFor != nil {
		log := logger.FromContextOrDefault(ctx, s.logger)
		notify(ctx, s.notifier, log, events.NewNotification(*reservedFor,
			"New Task Assigned",
			fmt.Sprintf("You have been assigned a new task: %s", next.Title),
			events.CategoryTaskAssigned).ForTask(taskID))
	}
	return next, nil
}

// DeleteTask permanently removes an open task. The creator may always
// delete; others need the delete_any_task permission. Ledger entries that
// reference the task survive with the reference cleared.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uuid.UUID, actor domain.Actor) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	current, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if !current.Status.IsDeletable() {
		return domain.NewStateConflictError(taskID, domain.ActionDelete, current.Status,
			"only pending, claimed or in-progress tasks can be deleted")
	}
	if current.CreatorID != actor.ID && !s.authz.Authorize(ctx, actor, domain.PermissionDeleteAnyTask, current) {
		return domain.NewAuthorizationError(actor.ID, "delete task", "only the creator may delete this task")
	}

	if err := s.tasks.Delete(ctx, taskID, current.Version); err != nil {
		return s.writeFailed(ctx, "delete task", taskID, domain.ActionDelete, err)
	}

	log.Info("task deleted",
		slog.String("task_id", taskID.String()),
		slog.String("actor_id", actor.ID.String()))
	return nil
}

// transition runs a table-driven lifecycle edge that needs no ledger write.
func (s *TaskService) transition(
	ctx context.Context,
	taskID uuid.UUID,
	actor domain.Actor,
	action domain.Action,
	reason string,
) (*domain.Task, *domain.Task, error) {
	next, current, err := s.prepare(ctx, taskID, actor, action, reason)
	if err != nil {
		return nil, nil, err
	}

	if err := s.tasks.UpdateTransition(ctx, next, current.Status, current.Version); err != nil {
		return nil, nil, s.writeFailed(ctx, string(action)+" task", taskID, action, err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("task transitioned",
		slog.String("task_id", taskID.String()),
		slog.String("action", string(action)),
		slog.String("from", string(current.Status)),
		slog.String("to", string(next.Status)))
	return next, current, nil
}

// prepare re-reads the task, checks the transition and its permission, and
// returns the next state alongside the state it was derived from.
func (s *TaskService) prepare(
	ctx context.Context,
	taskID uuid.UUID,
	actor domain.Actor,
	action domain.Action,
	reason string,
) (*domain.Task, *domain.Task, error) {
	current, err := s.load(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	tr, err := domain.LookupTransition(current, action)
	if err != nil {
		return nil, nil, err
	}
	if tr.Permission != "" && !s.authz.Authorize(ctx, actor, tr.Permission, current) {
		return nil, nil, domain.NewAuthorizationError(actor.ID, string(action)+" task",
			"missing "+string(tr.Permission)+" permission")
	}
	next, err := tr.Apply(current, domain.TransitionInput{ActorID: actor.ID, Reason: reason, Now: s.clock()})
	if err != nil {
		return nil, nil, err
	}
	return next, current, nil
}

func (s *TaskService) saveDetails(
	ctx context.Context,
	current, updated *domain.Task,
	action domain.Action,
) (*domain.Task, error) {
	updated.Version = current.Version + 1
	updated.UpdatedAt = s.clock().UTC()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.tasks.UpdateDetails(ctx, updated, current.Version); err != nil {
		return nil, s.writeFailed(ctx, string(action)+" task", current.ID, action, err)
	}
	return updated, nil
}

func (s *TaskService) load(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, translateStoreError("get task", "task", taskID, err)
	}
	return task, nil
}

// writeFailed turns a failed conditional write into the error the caller
// should see. A lost compare-and-swap is resolved by re-reading the task:
// gone becomes NotFoundError, anything else a StateConflictError naming the
// status that won.
func (s *TaskService) writeFailed(
	ctx context.Context,
	op string,
	taskID uuid.UUID,
	action domain.Action,
	err error,
) error {
	if !store.IsConflictError(err) {
		return translateStoreError(op, "task", taskID, err)
	}

	latest, readErr := s.tasks.GetByID(ctx, taskID)
	if readErr != nil {
		return translateStoreError(op, "task", taskID, readErr)
	}
	return domain.NewStateConflictError(taskID, action, latest.Status, "task was changed concurrently")
}

func normalizePage(page, limit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if page < 1 {
		return 0, 0, domain.NewValidationError("page", "must be at least 1")
	}
	if limit < 1 || limit > MaxPageSize {
		return 0, 0, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	return page, limit, nil
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
