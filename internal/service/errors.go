package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/store"
)

// ServiceError reports a service that could not be constructed or used
// because of a programming error, such as a missing dependency.
type ServiceError struct {
	// Service is the component that failed (e.g., "task", "ledger")
	Service string
	// Operation is the operation that failed (e.g., "create_service")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s failed: %s: %v", e.Service, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service %s failed: %s", e.Service, e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

func missingDependency(service, name string) error {
	return &ServiceError{Service: service, Operation: "create_service", Message: name + " cannot be nil"}
}

// isDomainError reports whether err already carries a domain error kind.
func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrStateConflict) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrPersistence)
}

// translateStoreError maps a store failure onto the domain error kinds.
// Errors that already carry a domain kind pass through unchanged.
func translateStoreError(op, entity string, id uuid.UUID, err error) error {
	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case store.IsNotFoundError(err):
		return domain.NewNotFoundError(entity, id)
	default:
		return domain.NewPersistenceError(op, err)
	}
}
