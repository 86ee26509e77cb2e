package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EntryKind distinguishes why a ledger entry exists.
type EntryKind string

// Ledger entry kinds.
const (
	EntryKindTaskAward        EntryKind = "task_award"
	EntryKindManualAdjustment EntryKind = "manual_adjustment"
)

// IsValid reports whether k is a known kind.
func (k EntryKind) IsValid() bool {
	return k == EntryKindTaskAward || k == EntryKindManualAdjustment
}

// MaxReasonLength bounds ledger and rejection reasons, in characters.
const MaxReasonLength = 500

// awardReasonPrefix starts the reason of every task award.
const awardReasonPrefix = "Task approved: "

// LedgerEntry is an immutable record of a signed point-balance change.
type LedgerEntry struct {
	ID      uuid.UUID  `json:"id"`
	ActorID uuid.UUID  `json:"actor_id"`
	Points  int        `json:"points"`
	Kind    EntryKind  `json:"kind"`
	Reason  string     `json:"reason"`
	TaskID  *uuid.UUID `json:"task_id,omitempty"`
	// CreatedBy is the approver or the authority that made a manual adjustment.
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewTaskAward builds the single award entry appended when a task is approved.
func NewTaskAward(task *Task, approverID uuid.UUID, now time.Time) (*LedgerEntry, error) {
	if task.AssigneeID == nil {
		return nil, NewValidationError("assignee_id", "an award requires an assignee")
	}
	taskID := task.ID
	entry := &LedgerEntry{
		ID:        uuid.New(),
		ActorID:   *task.AssigneeID,
		Points:    task.AwardPoints,
		Kind:      EntryKindTaskAward,
		Reason:    clipReason(awardReasonPrefix + task.Title),
		TaskID:    &taskID,
		CreatedBy: &approverID,
		CreatedAt: now.UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// NewManualAdjustment builds an administrative correction entry.
func NewManualAdjustment(actorID uuid.UUID, points int, reason string, authorityID uuid.UUID, now time.Time) (*LedgerEntry, error) {
	if points == 0 {
		return nil, NewValidationError("points", "cannot be zero")
	}
	entry := &LedgerEntry{
		ID:        uuid.New(),
		ActorID:   actorID,
		Points:    points,
		Kind:      EntryKindManualAdjustment,
		Reason:    strings.TrimSpace(reason),
		CreatedBy: &authorityID,
		CreatedAt: now.UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Validate checks the entry's required fields.
func (e *LedgerEntry) Validate() error {
	if e.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty")
	}
	if e.ActorID == uuid.Nil {
		return NewValidationError("actor_id", "cannot be empty")
	}
	if !e.Kind.IsValid() {
		return NewValidationError("kind", "unknown entry kind "+string(e.Kind))
	}
	if e.Reason == "" {
		return NewValidationError("reason", "cannot be empty")
	}
	if utf8.RuneCountInString(e.Reason) > MaxReasonLength {
		return NewValidationError("reason", "must be at most 500 characters")
	}
	if e.Kind == EntryKindTaskAward && e.TaskID == nil {
		return NewValidationError("task_id", "a task award must reference its task")
	}
	return nil
}

// clipReason cuts s to MaxReasonLength characters.
func clipReason(s string) string {
	if utf8.RuneCountInString(s) <= MaxReasonLength {
		return s
	}
	return string([]rune(s)[:MaxReasonLength])
}

// LeaderboardWindow selects which ledger entries count toward a ranking.
type LeaderboardWindow string

// Supported windows.
const (
	WindowAllTime LeaderboardWindow = "all"
	WindowWeekly  LeaderboardWindow = "week"
	WindowMonthly LeaderboardWindow = "month"
)

// ParseLeaderboardWindow accepts the canonical names and common aliases.
func ParseLeaderboardWindow(s string) (LeaderboardWindow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all-time", "all_time":
		return WindowAllTime, nil
	case "week", "weekly":
		return WindowWeekly, nil
	case "month", "monthly":
		return WindowMonthly, nil
	default:
		return "", NewValidationError("window", "must be one of all, week, month")
	}
}

// Since returns the inclusive lower bound for the window, or nil for all-time.
func (w LeaderboardWindow) Since(now time.Time) *time.Time {
	var since time.Time
	switch w {
	case WindowWeekly:
		since = now.UTC().AddDate(0, 0, -7)
	case WindowMonthly:
		since = AddMonthsClamped(now.UTC(), -1)
	default:
		return nil
	}
	return &since
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	ActorID     uuid.UUID `json:"actor_id"`
	TotalPoints int64     `json:"total_points"`
}

// HistoryPage is a page of an actor's ledger, newest first.
type HistoryPage struct {
	Entries      []*LedgerEntry `json:"entries"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	TotalEntries int            `json:"total_entries"`
	TotalPages   int            `json:"total_pages"`
	CurrentTotal int64          `json:"current_total"`
}

// PointsStats summarises an actor's ledger over standard windows.
type PointsStats struct {
	ActorID     uuid.UUID `json:"actor_id"`
	WeekPoints  int64     `json:"week_points"`
	MonthPoints int64     `json:"month_points"`
	TotalPoints int64     `json:"total_points"`
}

// GenerationResult reports a recurring generation run.
type GenerationResult struct {
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
