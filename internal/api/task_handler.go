package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/api/shared"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/service"
)

// TaskService is the subset of the task lifecycle engine the HTTP layer uses.
type TaskService interface {
	CreateTask(ctx context.Context, actor domain.Actor, in service.CreateTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	ListTasks(ctx context.Context, q service.TaskQuery) (*service.TaskPage, error)
	ListMyTasks(ctx context.Context, actorID uuid.UUID, page, limit int) (*service.TaskPage, error)
	UpdateTask(ctx context.Context, taskID uuid.UUID, actor domain.Actor, in service.UpdateTaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID, actor domain.Actor) error
	Claim(ctx context.Context, taskID uuid.UUID, actor domain.Actor) (*domain.Task, error)
	Start(ctx context.Context, taskID uuid.UUID, actor domain.Actor) (*domain.Task, error)
	Complete(ctx context.Context, taskID uuid.UUID, actor domain.Actor) (*domain.Task, error)
	Approve(ctx context.Context, taskID uuid.UUID, approver domain.Actor) (*domain.Task, *domain.LedgerEntry, error)
	Reject(ctx context.Context, taskID uuid.UUID, approver domain.Actor, reason string) (*domain.Task, error)
	ReserveTask(ctx context.Context, taskID uuid.UUID, actor domain.Actor, reservedFor *uuid.UUID) (*domain.Task, error)
}

var _ TaskService = (*service.TaskService)(nil)

// TaskHandler handles task endpoints.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks TaskService, log *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("task service cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{tasks: tasks, logger: log.With(slog.String("component", "task_handler"))}
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), actor, req.toInput())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// ListTasks handles GET /tasks with optional status, type, assignee_id,
// page and limit query parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	q := service.TaskQuery{
		Status: domain.TaskStatus(r.URL.Query().Get("status")),
		Type:   domain.TaskType(r.URL.Query().Get("type")),
	}
	if q.Status != "" && !q.Status.IsValid() {
		HandleAPIError(w, r, domain.NewValidationError("status", "unknown task status"), "")
		return
	}
	if q.Type != "" && !q.Type.IsValid() {
		HandleAPIError(w, r, domain.NewValidationError("type", "unknown task type"), "")
		return
	}

	var err error
	if q.AssigneeID, err = queryUUID(r, "assignee_id"); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if q.Page, q.Limit, err = pageParams(r); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.tasks.ListTasks(r.Context(), q)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// ListMyTasks handles GET /tasks/mine: tasks the caller created, holds or
// has reserved.
func (h *TaskHandler) ListMyTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	pageNum, limit, err := pageParams(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.tasks.ListMyTasks(r.Context(), actor.ID, pageNum, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	_, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// UpdateTask handles PUT /tasks/{id}.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.UpdateTask(r.Context(), taskID, actor, req.toInput())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), taskID, actor); err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClaimTask handles POST /tasks/{id}/claim.
func (h *TaskHandler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, "claim", h.tasks.Claim)
}

// StartTask handles POST /tasks/{id}/start.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, "start", h.tasks.Start)
}

// CompleteTask handles POST /tasks/{id}/complete.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, "complete", h.tasks.Complete)
}

func (h *TaskHandler) simpleTransition(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	fn func(context.Context, uuid.UUID, domain.Actor) (*domain.Task, error),
) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, err := fn(r.Context(), taskID, actor)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Debug("transition refused",
			slog.String("action", action),
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		HandleAPIError(w, r, err, "Failed to "+action+" task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// ApproveTask handles POST /tasks/{id}/approve.
func (h *TaskHandler) ApproveTask(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, award, err := h.tasks.Approve(r.Context(), taskID, actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to approve task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ApproveTaskResponse{Task: task, Award: award})
}

// RejectTask handles POST /tasks/{id}/reject.
func (h *TaskHandler) RejectTask(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RejectTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.Reject(r.Context(), taskID, actor, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reject task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// ReserveTask handles POST /tasks/{id}/reserve.
func (h *TaskHandler) ReserveTask(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ReserveTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.ReserveTask(r.Context(), taskID, actor, req.ReservedFor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reserve task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

func pageParams(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}
