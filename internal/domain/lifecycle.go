package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Action is a lifecycle operation requested by an actor.
type Action string

// Lifecycle actions.
const (
	ActionClaim    Action = "claim"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
)

// Actions that change a task outside the transition table.
const (
	ActionEdit    Action = "edit"
	ActionReserve Action = "reserve"
	ActionDelete  Action = "delete"
)

// TransitionInput carries the actor and optional data for a transition.
type TransitionInput struct {
	ActorID uuid.UUID
	Reason  string
	Now     time.Time
}

type guard func(t *Task, in TransitionInput) error

type effect func(t *Task, in TransitionInput)

// Transition is one legal edge of the task state machine.
type Transition struct {
	Action Action
	From   TaskStatus
	To     TaskStatus
	// Permission, when set, must be granted by an Authorizer before Apply.
	Permission Permission
	// Awards marks the edge whose persistence must append a task award in
	// the same transaction.
	Awards bool

	guards  []guard
	effects []effect
}

type transitionKey struct {
	from   TaskStatus
	action Action
}

var transitions = map[transitionKey]Transition{
	{TaskStatusPending, ActionClaim}: {
		Action:  ActionClaim,
		From:    TaskStatusPending,
		To:      TaskStatusClaimed,
		guards:  []guard{requireClaimable},
		effects: []effect{assignActor},
	},
	{TaskStatusClaimed, ActionStart}: {
		Action: ActionStart,
		From:   TaskStatusClaimed,
		To:     TaskStatusInProgress,
		guards: []guard{requireAssignee},
	},
	{TaskStatusInProgress, ActionComplete}: {
		Action:  ActionComplete,
		From:    TaskStatusInProgress,
		To:      TaskStatusCompleted,
		guards:  []guard{requireAssignee},
		effects: []effect{markCompleted},
	},
	{TaskStatusCompleted, ActionApprove}: {
		Action:     ActionApprove,
		From:       TaskStatusCompleted,
		To:         TaskStatusApproved,
		Permission: PermissionApproveTask,
		Awards:     true,
		effects:    []effect{markApproved},
	},
	{TaskStatusCompleted, ActionReject}: {
		Action:     ActionReject,
		From:       TaskStatusCompleted,
		To:         TaskStatusRejected,
		Permission: PermissionRejectTask,
		guards:     []guard{requireReason},
		effects:    []effect{markRejected},
	},
}

// LookupTransition returns the edge that action takes from the task's current
// status. When no such edge exists the error is a *StateConflictError.
func LookupTransition(task *Task, action Action) (Transition, error) {
	tr, ok := transitions[transitionKey{from: task.Status, action: action}]
	if !ok {
		msg := "no such transition"
		if task.Status.IsTerminal() {
			msg = "task is in a terminal state"
		} else if src, known := SourceStatus(action); known {
			msg = "task must be " + string(src)
		}
		return Transition{}, NewStateConflictError(task.ID, action, task.Status, msg)
	}
	return tr, nil
}

// SourceStatus returns the status an action must start from.
func SourceStatus(action Action) (TaskStatus, bool) {
	for k := range transitions {
		if k.action == action {
			return k.from, true
		}
	}
	return "", false
}

// Apply runs the edge's guards and effects against a copy of task and
// returns the copy. The input task is never modified. The caller persists the
// result conditionally on task.Status and task.Version.
func (tr Transition) Apply(task *Task, in TransitionInput) (*Task, error) {
	if task.Status != tr.From {
		return nil, NewStateConflictError(task.ID, tr.Action, task.Status, "task must be "+string(tr.From))
	}
	for _, g := range tr.guards {
		if err := g(task, in); err != nil {
			return nil, err
		}
	}

	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	in.Now = in.Now.UTC()

	next := task.Clone()
	next.Status = tr.To
	for _, e := range tr.effects {
		e(next, in)
	}
	next.Version = task.Version + 1
	next.UpdatedAt = in.Now

	if err := next.checkInvariants(); err != nil {
		return nil, err
	}
	return next, nil
}

func requireClaimable(t *Task, in TransitionInput) error {
	if !t.CanClaim(in.ActorID) {
		return NewAuthorizationError(in.ActorID, string(ActionClaim), "task is reserved for another actor")
	}
	return nil
}

func requireAssignee(t *Task, in TransitionInput) error {
	if !t.IsAssignee(in.ActorID) {
		return NewAuthorizationError(in.ActorID, "work on task", "actor is not the assignee")
	}
	return nil
}

func requireReason(_ *Task, in TransitionInput) error {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return NewValidationError("reason", "a rejection reason is required")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return NewValidationError("reason", "must be at most 500 characters")
	}
	return nil
}

func assignActor(t *Task, in TransitionInput) {
	actor := in.ActorID
	t.AssigneeID = &actor
}

func markCompleted(t *Task, in TransitionInput) {
	now := in.Now
	t.CompletedAt = &now
}

func markApproved(t *Task, in TransitionInput) {
	now := in.Now
	approver := in.ActorID
	t.ApprovedAt = &now
	t.ApproverID = &approver
}

func markRejected(t *Task, in TransitionInput) {
	now := in.Now
	t.RejectedAt = &now
	t.RejectionReason = strings.TrimSpace(in.Reason)
}
