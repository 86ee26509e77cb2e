package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/chorepoints/internal/api/shared"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service/auth"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes by error
// kind, so internal error types never reach clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrInvalidRole):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err. Validation and
// state conflict messages describe the caller's own input and are passed
// through; everything else is replaced by a fixed message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var (
		validationErr *domain.ValidationError
		conflictErr   *domain.StateConflictError
		clashErr      *domain.ConflictError
		notFoundErr   *domain.NotFoundError
	)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case MapErrorToStatusCode(err) == http.StatusUnauthorized:
		return "Invalid token"

	case errors.As(err, &validationErr):
		if validationErr.Field == "" {
			return validationErr.Message
		}
		return fmt.Sprintf("Invalid %s: %s", validationErr.Field, validationErr.Message)

	case errors.As(err, &conflictErr):
		msg := fmt.Sprintf("Cannot %s a task that is %s", conflictErr.Action, conflictErr.Current)
		if conflictErr.Message != "" {
			msg += ": " + conflictErr.Message
		}
		return msg

	case errors.As(err, &clashErr):
		return capitalize(clashErr.Message)

	case errors.As(err, &notFoundErr):
		return capitalize(notFoundErr.Entity) + " not found"

	case errors.Is(err, domain.ErrUnauthorized):
		return "You are not allowed to perform this action"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns request validator output into a
// user-friendly message naming the first failing field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return GetSafeErrorMessage(validationErr)
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gte", "lte", "ne":
		return "out of range"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "invalid id format"
	case "datetime":
		return "invalid date, expected YYYY-MM-DD"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the response for err. defaultMsg, when set,
// replaces the generic message for 500 responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}

	var opts []shared.ResponseOption
	if status == http.StatusForbidden || status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
