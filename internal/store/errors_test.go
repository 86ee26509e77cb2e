package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
		conflict  bool
	}{
		{name: "nil error"},
		{name: "generic error", err: errors.New("some error")},
		{name: "ErrNotFound", err: ErrNotFound, notFound: true},
		{name: "wrapped ErrTaskNotFound", err: fmt.Errorf("get: %w", ErrTaskNotFound), notFound: true},
		{name: "ErrLedgerEntryNotFound", err: ErrLedgerEntryNotFound, notFound: true},
		{name: "ErrTaskAwardExists", err: ErrTaskAwardExists, duplicate: true},
		{name: "wrapped ErrInstanceExists", err: fmt.Errorf("create: %w", ErrInstanceExists), duplicate: true},
		{name: "ErrConflict", err: ErrConflict, conflict: true},
		{
			name:     "StoreError wrapping conflict",
			err:      NewStoreError("task", "claim", "lost race", ErrConflict),
			conflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, IsDuplicateError(tt.err))
			assert.Equal(t, tt.conflict, IsConflictError(tt.err))
		})
	}
}

func TestStoreError(t *testing.T) {
	bare := NewStoreError("task", "delete", "row vanished", nil)
	assert.Equal(t, "delete operation on task failed: row vanished", bare.Error())
	assert.Nil(t, bare.Unwrap())

	cause := errors.New("connection reset")
	wrapped := NewStoreError("ledger entry", "append", "insert failed", cause)
	assert.Equal(t, "append operation on ledger entry failed: insert failed: connection reset", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	var target *StoreError
	assert.True(t, errors.As(fmt.Errorf("outer: %w", wrapped), &target))
	assert.Equal(t, "append", target.Operation)
}
