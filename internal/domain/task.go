package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle position of a task.
type TaskStatus string

// Possible task status values. Approved and rejected are terminal.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusClaimed    TaskStatus = "claimed"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusApproved   TaskStatus = "approved"
	TaskStatusRejected   TaskStatus = "rejected"
)

// Field limits for tasks.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusClaimed, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusApproved, TaskStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusApproved || s == TaskStatusRejected
}

// IsDeletable reports whether a task in status s may be removed.
func (s TaskStatus) IsDeletable() bool {
	switch s {
	case TaskStatusPending, TaskStatusClaimed, TaskStatusInProgress:
		return true
	default:
		return false
	}
}

// hasAssignee reports whether a task in status s must carry an assignee.
func (s TaskStatus) hasAssignee() bool {
	return s != TaskStatusPending
}

// hasCompletion reports whether a task in status s must carry completed_at.
func (s TaskStatus) hasCompletion() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusApproved, TaskStatusRejected:
		return true
	default:
		return false
	}
}

// Task is a unit of household or team work that awards points once approved.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        TaskType  `json:"type"`

	// Points is the display value and may be edited.
	Points int `json:"points"`
	// AwardPoints is captured at creation and is the only value ever credited.
	AwardPoints int `json:"award_points"`

	Status TaskStatus `json:"status"`

	CreatorID uuid.UUID `json:"creator_id"`
	// ReservedFor restricts who may claim a pending task.
	ReservedFor *uuid.UUID `json:"reserved_for,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	ApproverID  *uuid.UUID `json:"approver_id,omitempty"`

	DueDate         *time.Time `json:"due_date,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	Recurrence Recurrence `json:"recurrence"`
	// TemplateID links a generated instance to the recurring task it came from.
	TemplateID *uuid.UUID `json:"template_id,omitempty"`
	RemindedAt *time.Time `json:"reminded_at,omitempty"`

	Metadata json.RawMessage `json:"metadata,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTaskParams holds the inputs for NewTask.
type NewTaskParams struct {
	Title       string
	Description string
	Type        TaskType
	// Points defaults to the type's default when nil.
	Points      *int
	CreatorID   uuid.UUID
	ReservedFor *uuid.UUID
	DueDate     *time.Time
	Recurrence  Recurrence
	TemplateID  *uuid.UUID
	Metadata    json.RawMessage
}

// NewTask creates a pending task with a fresh ID and validates it.
func NewTask(p NewTaskParams, now time.Time) (*Task, error) {
	if p.Recurrence == "" {
		p.Recurrence = RecurrenceNone
	}

	points := p.Type.DefaultPoints()
	if p.Points != nil {
		points = *p.Points
	}

	now = now.UTC()
	t := &Task{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		Type:        p.Type,
		Points:      points,
		AwardPoints: points,
		Status:      TaskStatusPending,
		CreatorID:   p.CreatorID,
		ReservedFor: p.ReservedFor,
		DueDate:     p.DueDate,
		Recurrence:  p.Recurrence,
		TemplateID:  p.TemplateID,
		Metadata:    p.Metadata,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks field constraints and the status-dependent invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty")
	}
	if t.Title == "" {
		return NewValidationError("title", "cannot be empty")
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return NewValidationError("title", "must be at most 200 characters")
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return NewValidationError("description", "must be at most 1000 characters")
	}
	if !t.Type.IsValid() {
		return NewValidationError("type", "unknown task type "+string(t.Type))
	}
	if err := ValidatePoints(t.Type, t.Points); err != nil {
		return err
	}
	if t.AwardPoints < 0 {
		return NewValidationError("award_points", "cannot be negative")
	}
	if t.CreatorID == uuid.Nil {
		return NewValidationError("creator_id", "cannot be empty")
	}
	if !t.Recurrence.IsValid() {
		return NewValidationError("recurrence", "unknown recurrence rule "+string(t.Recurrence))
	}
	if len(t.Metadata) > 0 && !isJSONObject(t.Metadata) {
		return NewValidationError("metadata", "must be a JSON object")
	}
	if !t.Status.IsValid() {
		return NewValidationError("status", "unknown status "+string(t.Status))
	}
	return t.checkInvariants()
}

// checkInvariants enforces the field-presence rules tied to status.
func (t *Task) checkInvariants() error {
	if t.Status.hasAssignee() != (t.AssigneeID != nil) {
		return NewValidationError("assignee_id", "must be set exactly when the task has been claimed")
	}
	if t.Status.hasCompletion() != (t.CompletedAt != nil) {
		return NewValidationError("completed_at", "must be set exactly when the task has been completed")
	}
	approved := t.Status == TaskStatusApproved
	if approved != (t.ApprovedAt != nil) || approved != (t.ApproverID != nil) {
		return NewValidationError("approver_id", "approver and approved_at must be set exactly when approved")
	}
	return nil
}

// ValidatePoints checks a display points value against the type's cap.
func ValidatePoints(tt TaskType, points int) error {
	if points < 0 {
		return NewValidationError("points", "cannot be negative")
	}
	if max := tt.MaxPoints(); max > 0 && points > max {
		return NewValidationError("points", "exceeds the maximum for this task type")
	}
	return nil
}

// IsTemplate reports whether the task seeds recurring instances.
func (t *Task) IsTemplate() bool {
	return t.Status == TaskStatusApproved && t.Recurrence != RecurrenceNone
}

// CanClaim reports whether actorID satisfies the claim reservation.
func (t *Task) CanClaim(actorID uuid.UUID) bool {
	return t.ReservedFor == nil || *t.ReservedFor == actorID
}

// IsAssignee reports whether actorID holds the task.
func (t *Task) IsAssignee(actorID uuid.UUID) bool {
	return t.AssigneeID != nil && *t.AssigneeID == actorID
}

// NotifyTarget returns who should hear about the task: the assignee if there
// is one, otherwise the reserved claimant.
func (t *Task) NotifyTarget() *uuid.UUID {
	if t.AssigneeID != nil {
		return t.AssigneeID
	}
	return t.ReservedFor
}

// Clone returns a deep copy so transitions never mutate a caller's value.
func (t *Task) Clone() *Task {
	c := *t
	c.ReservedFor = cloneUUID(t.ReservedFor)
	c.AssigneeID = cloneUUID(t.AssigneeID)
	c.ApproverID = cloneUUID(t.ApproverID)
	c.TemplateID = cloneUUID(t.TemplateID)
	c.DueDate = cloneTime(t.DueDate)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.ApprovedAt = cloneTime(t.ApprovedAt)
	c.RejectedAt = cloneTime(t.RejectedAt)
	c.RemindedAt = cloneTime(t.RemindedAt)
	if t.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), t.Metadata...)
	}
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	v := *ts
	return &v
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil
}
