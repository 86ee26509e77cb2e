package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNewTask(t *testing.T) {
	t.Parallel()

	creator := uuid.New()
	reserved := uuid.New()
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	t.Run("explicit points", func(t *testing.T) {
		t.Parallel()

		task, err := NewTask(NewTaskParams{
			Title:       "  Take out recycling ",
			Description: "Blue bin",
			Type:        TaskTypeChore,
			Points:      intPtr(30),
			CreatorID:   creator,
			ReservedFor: &reserved,
		}, now)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.Equal(t, "Take out recycling", task.Title)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Equal(t, 30, task.Points)
		assert.Equal(t, 30, task.AwardPoints)
		assert.Equal(t, RecurrenceNone, task.Recurrence)
		assert.Nil(t, task.AssigneeID, "a pending task has no assignee")
		assert.Equal(t, reserved, *task.ReservedFor)
		assert.Equal(t, 1, task.Version)
		assert.Equal(t, now, task.CreatedAt)
	})

	t.Run("default points by type", func(t *testing.T) {
		t.Parallel()

		for _, tt := range TaskTypes() {
			task, err := NewTask(NewTaskParams{Title: "x", Type: tt, CreatorID: creator}, now)
			require.NoError(t, err)
			assert.Equal(t, tt.DefaultPoints(), task.Points, "type %s", tt)
			assert.Equal(t, tt.DefaultPoints(), task.AwardPoints, "type %s", tt)
		}
	})

	t.Run("zero points allowed", func(t *testing.T) {
		t.Parallel()

		task, err := NewTask(NewTaskParams{Title: "x", Type: TaskTypeBonus, Points: intPtr(0), CreatorID: creator}, now)
		require.NoError(t, err)
		assert.Equal(t, 0, task.AwardPoints)
	})
}

func TestNewTask_Validation(t *testing.T) {
	t.Parallel()

	creator := uuid.New()
	now := time.Now()

	tests := []struct {
		name   string
		params NewTaskParams
		field  string
	}{
		{
			name:   "empty title",
			params: NewTaskParams{Title: "   ", Type: TaskTypeChore, CreatorID: creator},
			field:  "title",
		},
		{
			name:   "title too long",
			params: NewTaskParams{Title: strings.Repeat("a", 201), Type: TaskTypeChore, CreatorID: creator},
			field:  "title",
		},
		{
			name: "description too long",
			params: NewTaskParams{
				Title: "ok", Description: strings.Repeat("d", 1001), Type: TaskTypeChore, CreatorID: creator,
			},
			field: "description",
		},
		{
			name:   "unknown type",
			params: NewTaskParams{Title: "ok", Type: "gardening", CreatorID: creator},
			field:  "type",
		},
		{
			name:   "negative points",
			params: NewTaskParams{Title: "ok", Type: TaskTypeChore, Points: intPtr(-1), CreatorID: creator},
			field:  "points",
		},
		{
			name:   "points above type maximum",
			params: NewTaskParams{Title: "ok", Type: TaskTypeChore, Points: intPtr(76), CreatorID: creator},
			field:  "points",
		},
		{
			name:   "missing creator",
			params: NewTaskParams{Title: "ok", Type: TaskTypeChore},
			field:  "creator_id",
		},
		{
			name:   "unknown recurrence",
			params: NewTaskParams{Title: "ok", Type: TaskTypeChore, CreatorID: creator, Recurrence: "hourly"},
			field:  "recurrence",
		},
		{
			name: "metadata not an object",
			params: NewTaskParams{
				Title: "ok", Type: TaskTypeChore, CreatorID: creator, Metadata: json.RawMessage(`[1,2]`),
			},
			field: "metadata",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			task, err := NewTask(tc.params, now)
			require.Error(t, err)
			assert.Nil(t, task)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestTask_Validate_Invariants(t *testing.T) {
	t.Parallel()

	base, err := NewTask(NewTaskParams{Title: "Dishes", Type: TaskTypeChore, CreatorID: uuid.New()}, time.Now())
	require.NoError(t, err)

	actor := uuid.New()
	now := time.Now().UTC()

	t.Run("claimed without assignee", func(t *testing.T) {
		task := base.Clone()
		task.Status = TaskStatusClaimed
		assert.ErrorIs(t, task.Validate(), ErrValidation)
	})

	t.Run("pending with assignee", func(t *testing.T) {
		task := base.Clone()
		task.AssigneeID = &actor
		assert.ErrorIs(t, task.Validate(), ErrValidation)
	})

	t.Run("completed without completed_at", func(t *testing.T) {
		task := base.Clone()
		task.Status = TaskStatusCompleted
		task.AssigneeID = &actor
		assert.ErrorIs(t, task.Validate(), ErrValidation)
	})

	t.Run("approved without approver", func(t *testing.T) {
		task := base.Clone()
		task.Status = TaskStatusApproved
		task.AssigneeID = &actor
		task.CompletedAt = &now
		task.ApprovedAt = &now
		assert.ErrorIs(t, task.Validate(), ErrValidation)
	})

	t.Run("rejected with approver", func(t *testing.T) {
		task := base.Clone()
		task.Status = TaskStatusRejected
		task.AssigneeID = &actor
		task.CompletedAt = &now
		task.ApproverID = &actor
		assert.ErrorIs(t, task.Validate(), ErrValidation)
	})

	t.Run("fully approved task is valid", func(t *testing.T) {
		task := base.Clone()
		task.Status = TaskStatusApproved
		task.AssigneeID = &actor
		task.CompletedAt = &now
		task.ApprovedAt = &now
		task.ApproverID = &actor
		assert.NoError(t, task.Validate())
	})
}

func TestTask_Clone(t *testing.T) {
	t.Parallel()

	actor := uuid.New()
	due := time.Now().UTC()
	task := &Task{ID: uuid.New(), AssigneeID: &actor, DueDate: &due, Metadata: json.RawMessage(`{"a":1}`)}

	c := task.Clone()
	*c.AssigneeID = uuid.New()
	*c.DueDate = due.Add(time.Hour)
	c.Metadata[1] = 'b'

	assert.Equal(t, actor, *task.AssigneeID)
	assert.Equal(t, due, *task.DueDate)
	assert.Equal(t, `{"a":1}`, string(task.Metadata))
}

func TestTaskStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskStatusApproved.IsTerminal())
	assert.True(t, TaskStatusRejected.IsTerminal())
	assert.False(t, TaskStatusCompleted.IsTerminal())

	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusClaimed, TaskStatusInProgress} {
		assert.True(t, s.IsDeletable(), "%s should be deletable", s)
	}
	for _, s := range []TaskStatus{TaskStatusCompleted, TaskStatusApproved, TaskStatusRejected} {
		assert.False(t, s.IsDeletable(), "%s should not be deletable", s)
	}
	assert.False(t, TaskStatus("archived").IsValid())
}

func TestTask_NotifyTarget(t *testing.T) {
	t.Parallel()

	reserved := uuid.New()
	assignee := uuid.New()

	task := &Task{}
	assert.Nil(t, task.NotifyTarget())

	task.ReservedFor = &reserved
	assert.Equal(t, reserved, *task.NotifyTarget())

	task.AssigneeID = &assignee
	assert.Equal(t, assignee, *task.NotifyTarget())
}
