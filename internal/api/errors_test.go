package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"wrapped invalid token", fmt.Errorf("validate: %w", auth.ErrInvalidToken), http.StatusUnauthorized},
		{"validation", domain.NewValidationError("title", "cannot be empty"), http.StatusBadRequest},
		{"state conflict", domain.NewStateConflictError(id, domain.ActionApprove, domain.TaskStatusApproved, ""), http.StatusConflict},
		{"settlement conflict", domain.NewConflictError("settlement", "already settled"), http.StatusConflict},
		{"authorization", domain.NewAuthorizationError(id, "approve task", "no"), http.StatusForbidden},
		{"not found", domain.NewNotFoundError("task", id), http.StatusNotFound},
		{"persistence", domain.NewPersistenceError("append", errors.New("disk full")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"expired", auth.ErrExpiredToken, "Token expired"},
		{"invalid", auth.ErrInvalidRole, "Invalid token"},
		{"validation", domain.NewValidationError("reason", "cannot be blank"), "Invalid reason: cannot be blank"},
		{"validation without field", domain.NewValidationError("", "bad input"), "bad input"},
		{"conflict", domain.NewStateConflictError(id, domain.ActionApprove, domain.TaskStatusApproved, "already approved"),
			"Cannot approve a task that is approved: already approved"},
		{"settlement conflict", domain.NewConflictError("settlement", "the week starting 2026-03-02 is already settled"),
			"The week starting 2026-03-02 is already settled"},
		{"not found", domain.NewNotFoundError("task", id), "Task not found"},
		{"forbidden", domain.NewAuthorizationError(id, "delete task", "not the creator"),
			"You are not allowed to perform this action"},
		{"persistence hides cause", domain.NewPersistenceError("append", errors.New("pq: password=hunter2")),
			"An unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type payload struct {
		Title  string `validate:"required"`
		Points int    `validate:"gte=0"`
	}
	v := validator.New()

	assert.Equal(t, "Invalid title: required field", SanitizeValidationError(v.Struct(payload{Points: 1})))
	assert.Equal(t, "Invalid points: out of range", SanitizeValidationError(v.Struct(payload{Title: "x", Points: -1})))
	assert.Equal(t, "Invalid title: too long",
		SanitizeValidationError(fmt.Errorf("wrapped: %w", domain.NewValidationError("title", "too long"))))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("opaque")))
}
