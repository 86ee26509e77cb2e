package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Category groups notifications for the consuming client.
type Category string

// Notification categories.
const (
	CategoryTaskAssigned Category = "task_assigned"
	CategoryTaskDue      Category = "task_due"
	CategoryTaskRejected Category = "task_rejected"
	CategoryPointsEarned Category = "points_earned"
	CategorySystem       Category = "system"
)

// Notification is a message addressed to a single actor.
type Notification struct {
	// ID is a unique identifier for this notification
	ID uuid.UUID `json:"id"`

	// ActorID is the recipient
	ActorID uuid.UUID `json:"actor_id"`

	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Category Category `json:"category"`

	// TaskID references the task the notification is about, if any
	TaskID *uuid.UUID `json:"task_id,omitempty"`

	// CreatedAt is the timestamp when the notification was created
	CreatedAt time.Time `json:"created_at"`
}

// NewNotification creates a Notification with a fresh ID.
func NewNotification(actorID uuid.UUID, title, message string, category Category) *Notification {
	return &Notification{
		ID:        uuid.New(),
		ActorID:   actorID,
		Title:     title,
		Message:   message,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
}

// ForTask sets the referenced task and returns n.
func (n *Notification) ForTask(taskID uuid.UUID) *Notification {
	id := taskID
	n.TaskID = &id
	return n
}

// Marshal encodes the notification as JSON for transport.
func (n *Notification) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

// NotificationHandler defines an interface for components that deliver
// notifications, for example to a log or a message broker.
type NotificationHandler interface {
	// HandleNotification delivers the notification.
	// Returns an error if delivery fails.
	HandleNotification(ctx context.Context, n *Notification) error
}

// Notifier defines the interface services use to emit notifications. Callers
// treat it as fire-and-forget: a failure is logged and never undoes the
// operation that triggered it.
type Notifier interface {
	// Emit publishes the notification to all registered handlers.
	Emit(ctx context.Context, n *Notification) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Emit implements Notifier.
func (NopNotifier) Emit(context.Context, *Notification) error { return nil }
