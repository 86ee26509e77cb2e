// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds shared across the application. Every typed error below unwraps
// to exactly one of these, so callers can branch with errors.Is.
var (
	// ErrValidation is returned when input is malformed. No mutation was performed.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict is returned when a transition is illegal for the task's
	// persisted state, including a lost claim race.
	ErrStateConflict = errors.New("state conflict")

	// ErrUnauthorized is returned when the actor lacks the required relationship or role.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrNotFound is returned when a referenced task or actor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when the underlying storage fails.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateConflictError reports a transition that the task's current status does not allow.
type StateConflictError struct {
	TaskID  uuid.UUID
	Action  Action
	Current TaskStatus
	Message string
}

// NewStateConflictError creates a StateConflictError.
func NewStateConflictError(taskID uuid.UUID, action Action, current TaskStatus, message string) *StateConflictError {
	return &StateConflictError{TaskID: taskID, Action: action, Current: current, Message: message}
}

func (e *StateConflictError) Error() string {
	msg := fmt.Sprintf("%s: cannot %s task %s in status %s", ErrStateConflict, e.Action, e.TaskID, e.Current)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// ConflictError reports a write that clashes with existing state outside the
// task lifecycle, such as settling a week twice.
type ConflictError struct {
	Entity  string
	Message string
}

// NewConflictError creates a ConflictError.
func NewConflictError(entity, message string) *ConflictError {
	return &ConflictError{Entity: entity, Message: message}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrStateConflict, e.Entity, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrStateConflict }

// AuthorizationError reports an actor that may not perform an operation.
type AuthorizationError struct {
	ActorID uuid.UUID
	Action  string
	Message string
}

// NewAuthorizationError creates an AuthorizationError.
func NewAuthorizationError(actorID uuid.UUID, action, message string) *AuthorizationError {
	return &AuthorizationError{ActorID: actorID, Action: action, Message: message}
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: actor %s may not %s: %s", ErrUnauthorized, e.ActorID, e.Action, e.Message)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PersistenceError wraps a storage failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err. It returns nil when err is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s during %s: %v", ErrPersistence, e.Op, e.Err)
}

// Unwrap exposes both the kind and the storage cause.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
